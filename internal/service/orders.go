package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/juancollazo-ch/kitchen-status-sync/internal/errors"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/logging"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/models"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/models/serviceresponse"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/queue"
)

// SyncService es el único punto de entrada de la UI. Decide si un cambio de
// estado va directo al sitio web o a la cola offline.
type SyncService struct {
	sender queue.Sender
	mirror queue.Mirror
	queue  *queue.Queue
	now    func() time.Time

	online atomic.Bool
	calls  singleflight.Group

	mu          sync.Mutex
	onReconnect []func()
}

func NewSyncService(sender queue.Sender, mirror queue.Mirror, q *queue.Queue, online bool) *SyncService {
	s := &SyncService{
		sender: sender,
		mirror: mirror,
		queue:  q,
		now:    time.Now,
	}
	s.online.Store(online)
	return s
}

// UpdateStatus envía approved, preparing o ready.
func (s *SyncService) UpdateStatus(ctx context.Context, tenantID, orderNumber string, status models.Status, notes string) serviceresponse.SyncResult {
	return s.execute(ctx, models.EndpointStatusUpdate, tenantID, orderNumber, status, notes, "")
}

func (s *SyncService) Dispatch(ctx context.Context, tenantID, orderNumber, notes string) serviceresponse.SyncResult {
	return s.execute(ctx, models.EndpointDispatch, tenantID, orderNumber, models.StatusDispatched, notes, "")
}

func (s *SyncService) Cancel(ctx context.Context, tenantID, orderNumber, reason, notes string) serviceresponse.SyncResult {
	return s.execute(ctx, models.EndpointCancel, tenantID, orderNumber, models.StatusCancelled, notes, reason)
}

// SetOnline actualiza la señal de conectividad. Al pasar de offline a online
// se avisa a los suscriptores (el flusher en segundo plano).
func (s *SyncService) SetOnline(online bool) {
	was := s.online.Swap(online)
	if was == online {
		return
	}

	zap.L().Info("connectivity changed", zap.Bool("online", online))
	if !online {
		return
	}

	s.mu.Lock()
	hooks := append([]func(){}, s.onReconnect...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (s *SyncService) Online() bool {
	return s.online.Load()
}

// OnReconnect registra fn para cuando se recupera la conexión.
func (s *SyncService) OnReconnect(fn func()) {
	s.mu.Lock()
	s.onReconnect = append(s.onReconnect, fn)
	s.mu.Unlock()
}

// Flush drena la cola offline. Sin conexión no se intenta nada.
func (s *SyncService) Flush(ctx context.Context) (serviceresponse.FlushResult, error) {
	if !s.Online() {
		zap.L().Info("flush skipped: device is offline", zap.Int("pending", s.queue.Len()))
		return serviceresponse.FlushResult{Skipped: true, Remaining: s.queue.Len()}, nil
	}

	result, err := s.queue.Flush(ctx)
	if result.Skipped {
		return result, err
	}

	zap.L().Info("offline queue flushed",
		zap.Int("attempted", result.Attempted),
		zap.Int("synced", result.Synced),
		zap.Int("requeued", result.Requeued),
		zap.Int("abandoned", result.Abandoned),
		zap.Int("remaining", result.Remaining),
	)
	return result, err
}

func (s *SyncService) PendingCount() int {
	return s.queue.Len()
}

func (s *SyncService) Pending() []models.QueuedRequest {
	return s.queue.Pending()
}

// ForgetTenant descarta lo pendiente de un restaurante (p. ej. al cerrar sesión).
func (s *SyncService) ForgetTenant(ctx context.Context, tenantID string) (int, error) {
	dropped, err := s.queue.DropTenant(ctx, tenantID)
	if err != nil {
		return dropped, err
	}
	if dropped > 0 {
		zap.L().Warn("queued status changes discarded", zap.String("tenant_id", tenantID), zap.Int("dropped", dropped))
	}
	return dropped, nil
}

func (s *SyncService) execute(ctx context.Context, kind models.EndpointKind, tenantID, orderNumber string, status models.Status, notes, reason string) serviceresponse.SyncResult {
	if tenantID == "" {
		err := apperrors.ErrNoTenant()
		return serviceresponse.Failed(err.StatusCode, err.Error())
	}

	digits := models.Canonicalize(orderNumber).Digits
	if digits == "" {
		err := apperrors.ErrInvalidStatus("order number is required", nil)
		return serviceresponse.Failed(err.StatusCode, err.Error())
	}

	req, err := models.NewStatusChangeRequest(kind, tenantID, orderNumber, status, notes, reason, s.now())
	if err != nil {
		appErr := apperrors.ErrInvalidStatus(string(status), err)
		return serviceresponse.Failed(appErr.StatusCode, appErr.Error())
	}

	ctx = logging.WithLoggingFields(ctx, tenantID, digits)

	if !s.Online() {
		s.queue.Enqueue(ctx, kind, req)
		return serviceresponse.QueuedForLater()
	}

	// Una vez invocado, el envío corre hasta terminar o agotar intentos aunque
	// el llamador se vaya; cada intento sigue acotado por su propio timeout.
	sendCtx := context.WithoutCancel(ctx)

	// Dos toques seguidos sobre la misma orden producen una sola llamada remota.
	key := strings.Join([]string{string(kind), tenantID, digits, string(req.TargetStatus), notes, reason}, "\x00")
	v, _, shared := s.calls.Do(key, func() (interface{}, error) {
		return s.send(sendCtx, kind, req, digits), nil
	})
	if shared {
		logging.L(ctx).Debug("duplicate status change coalesced", zap.String("endpoint", string(kind)))
	}
	return v.(serviceresponse.SyncResult)
}

func (s *SyncService) send(ctx context.Context, kind models.EndpointKind, req models.StatusChangeRequest, digits string) serviceresponse.SyncResult {
	logger := logging.L(ctx).With(
		zap.String("endpoint", string(kind)),
		zap.String("status", string(req.TargetStatus)),
	)

	resp, err := s.sender.Send(ctx, kind, req)
	if err != nil {
		logger.Error("status change failed", zap.Error(err))
		return serviceresponse.Failed(apperrors.GetStatusCode(err), err.Error())
	}

	s.mirror.Apply(ctx, digits, req.TargetStatus, req.TenantID)

	logger.Info("status change synchronized", zap.Int("status_code", resp.StatusCode))
	return serviceresponse.Succeeded(resp.Message, resp.Body)
}
