package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	apperrors "github.com/juancollazo-ch/kitchen-status-sync/internal/errors"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/logging"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/models"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/models/serviceresponse"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/remote"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/storage"
)

const (
	StorageKey           = "offline_status_queue"
	DefaultFlushAttempts = 2
)

// Sender es el transporte remoto que usa el flush.
type Sender interface {
	Send(ctx context.Context, kind models.EndpointKind, req models.StatusChangeRequest, opts ...remote.SendOption) (*remote.Response, error)
}

// Mirror aplica el estado confirmado en la base local.
type Mirror interface {
	Apply(ctx context.Context, orderDigits string, status models.Status, tenantID string)
}

// Queue guarda en almacenamiento durable los cambios de estado hechos sin red.
// Después de cada mutación se reescribe la lista completa, bajo el mismo lock,
// para que una escritura vieja nunca pise a una nueva.
type Queue struct {
	kv            storage.KV
	sender        Sender
	mirror        Mirror
	flushAttempts int
	now           func() time.Time

	mu       sync.Mutex
	items    []models.QueuedRequest
	flushing bool
}

func New(kv storage.KV, sender Sender, mirror Mirror) *Queue {
	return &Queue{
		kv:            kv,
		sender:        sender,
		mirror:        mirror,
		flushAttempts: DefaultFlushAttempts,
		now:           time.Now,
	}
}

// SetFlushAttempts cambia el presupuesto de intentos por entrada durante el flush.
func (q *Queue) SetFlushAttempts(n int) {
	if n > 0 {
		q.flushAttempts = n
	}
}

// Load lee la cola persistida. Si el contenido no se puede parsear (p. ej. una
// escritura interrumpida) se arranca con la cola vacía.
func (q *Queue) Load(ctx context.Context) error {
	raw, ok, err := q.kv.Get(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("load offline queue: %w", err)
	}

	var items []models.QueuedRequest
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			zap.L().Error("offline queue is corrupted, starting empty", zap.Error(err))
			items = nil
		}
	}

	q.mu.Lock()
	q.items = items
	q.mu.Unlock()

	zap.L().Info("offline queue loaded", zap.Int("pending", len(items)))
	return nil
}

// Enqueue agrega el request y persiste la cola. Desde el punto de vista del
// llamador nunca falla: un error de persistencia solo se registra.
func (q *Queue) Enqueue(ctx context.Context, kind models.EndpointKind, req models.StatusChangeRequest) models.QueuedRequest {
	now := q.now().UTC()
	item := models.QueuedRequest{
		ID:         fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		Endpoint:   kind,
		Payload:    req,
		EnqueuedAt: now,
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	pending := len(q.items)
	err := q.persistLocked(ctx)
	q.mu.Unlock()

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("failed to persist offline queue", zap.String("queue_id", item.ID), zap.Error(err))
	}

	logger.Info("status change queued for later sync",
		zap.String("queue_id", item.ID),
		zap.String("endpoint", string(kind)),
		zap.Int("pending", pending),
	)
	return item
}

// Flush intenta enviar cada entrada pendiente. Las que se confirman se aplican
// al espejo local y se eliminan; las que fallan con un 4xx terminal se
// abandonan; el resto queda en la cola con retry_count incrementado.
// Si ya hay un flush en curso, retorna Skipped sin hacer nada.
func (q *Queue) Flush(ctx context.Context) (serviceresponse.FlushResult, error) {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return serviceresponse.FlushResult{Skipped: true, Remaining: q.Len()}, nil
	}
	q.flushing = true
	pending := q.snapshotLocked()
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	var result serviceresponse.FlushResult
	var errs error

	for _, item := range pending {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		result.Attempted++

		itemCtx := logging.WithLoggingFields(ctx, item.Payload.TenantID, item.Payload.OrderNumber)
		logger := logging.L(itemCtx).With(
			zap.String("queue_id", item.ID),
			zap.String("endpoint", string(item.Endpoint)),
		)

		_, err := q.sender.Send(itemCtx, item.Endpoint, item.Payload, remote.WithMaxAttempts(q.flushAttempts))

		switch {
		case err == nil:
			digits := models.Canonicalize(item.Payload.OrderNumber).Digits
			q.mirror.Apply(itemCtx, digits, item.Payload.TargetStatus, item.Payload.TenantID)
			errs = multierr.Append(errs, q.remove(itemCtx, item.ID))
			result.Synced++
			logger.Info("queued status change synced")

		case apperrors.IsTerminal(err):
			errs = multierr.Append(errs, q.remove(itemCtx, item.ID))
			result.Abandoned++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.ID, err))
			logger.Error("queued status change abandoned", zap.Error(err))

		default:
			errs = multierr.Append(errs, q.bumpRetry(itemCtx, item.ID))
			result.Requeued++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.ID, err))
			logger.Warn("queued status change kept for next flush", zap.Error(err))
		}

		// Con el circuito abierto el resto fallaría igual sin llegar al host.
		if apperrors.IsCircuitOpen(err) {
			logging.L(ctx).Warn("website API unavailable, stopping flush", zap.Int("not_attempted", len(pending)-result.Attempted))
			break
		}
	}

	result.Remaining = q.Len()
	return result, errs
}

// DropTenant elimina las entradas de un restaurante. No se llama automáticamente.
func (q *Queue) DropTenant(ctx context.Context, tenantID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0:0]
	for _, item := range q.items {
		if item.Payload.TenantID != tenantID {
			kept = append(kept, item)
		}
	}
	dropped := len(q.items) - len(kept)
	if dropped == 0 {
		return 0, nil
	}

	q.items = kept
	return dropped, q.persistLocked(ctx)
}

// Len devuelve cuántas entradas hay pendientes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending devuelve una copia de las entradas pendientes.
func (q *Queue) Pending() []models.QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			break
		}
	}
	return q.persistLocked(ctx)
}

func (q *Queue) bumpRetry(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].RetryCount++
			break
		}
	}
	return q.persistLocked(ctx)
}

func (q *Queue) snapshotLocked() []models.QueuedRequest {
	return append([]models.QueuedRequest{}, q.items...)
}

func (q *Queue) persistLocked(ctx context.Context) error {
	items := q.items
	if items == nil {
		items = []models.QueuedRequest{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal offline queue: %w", err)
	}
	// La escritura no debe cortarse si el llamador canceló su request.
	if err := q.kv.Set(context.WithoutCancel(ctx), StorageKey, string(data)); err != nil {
		return fmt.Errorf("persist offline queue: %w", err)
	}
	return nil
}
