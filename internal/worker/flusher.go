package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/juancollazo-ch/kitchen-status-sync/internal/models/serviceresponse"
)

const DefaultFlushInterval = 30 * time.Second

// Syncer es lo que el flusher necesita de la fachada.
type Syncer interface {
	Online() bool
	PendingCount() int
	Flush(ctx context.Context) (serviceresponse.FlushResult, error)
}

// Flusher vacía la cola offline en segundo plano: cuando se le avisa que
// volvió la conexión y cada interval mientras haya pendientes.
type Flusher struct {
	syncer   Syncer
	interval time.Duration
	trigger  chan struct{}
	wg       sync.WaitGroup
}

func NewFlusher(syncer Syncer, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	return &Flusher{
		syncer:   syncer,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Start lanza el loop; termina cuando se cancela ctx.
func (f *Flusher) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.loop(ctx)
}

// Wait bloquea hasta que el loop terminó.
func (f *Flusher) Wait() {
	f.wg.Wait()
}

// Trigger pide un flush inmediato. No bloquea: si ya hay uno pedido, se descarta.
func (f *Flusher) Trigger() {
	select {
	case f.trigger <- struct{}{}:
	default:
	}
}

func (f *Flusher) loop(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	zap.L().Info("background flusher started", zap.Duration("interval", f.interval))

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("background flusher stopped")
			return

		case <-f.trigger:
			f.flush(ctx, "reconnect")

		case <-ticker.C:
			f.flush(ctx, "interval")
		}
	}
}

func (f *Flusher) flush(ctx context.Context, reason string) {
	if !f.syncer.Online() || f.syncer.PendingCount() == 0 {
		return
	}

	result, err := f.syncer.Flush(ctx)
	if err != nil {
		zap.L().Error("background flush finished with errors",
			zap.String("reason", reason),
			zap.Int("remaining", result.Remaining),
			zap.Error(err),
		)
		return
	}

	zap.L().Debug("background flush finished",
		zap.String("reason", reason),
		zap.Int("synced", result.Synced),
		zap.Int("remaining", result.Remaining),
	)
}
