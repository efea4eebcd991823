package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/juancollazo-ch/kitchen-status-sync/internal/logging"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/models"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultTable      = "orders"
	columnOrderNumber = "order_number"
	columnTenant      = "restaurant_id"
)

// Updater escribe en el espejo local el estado ya confirmado por el sitio web.
// La confirmación remota es la autoritativa: un fallo aquí se registra y se descarta.
type Updater struct {
	ds    store.Datastore
	table string
	now   func() time.Time
}

func NewUpdater(ds store.Datastore) *Updater {
	return &Updater{
		ds:    ds,
		table: DefaultTable,
		now:   time.Now,
	}
}

// Apply actualiza la fila de la orden (forma sin '#') del restaurante indicado.
func (u *Updater) Apply(ctx context.Context, orderDigits string, status models.Status, tenantID string) {
	logger := logging.L(ctx).With(
		zap.String("order_digits", orderDigits),
		zap.String("status", string(status)),
	)

	if tenantID == "" {
		logger.Warn("local mirror update skipped: no active restaurant")
		return
	}

	if err := u.apply(ctx, orderDigits, status, tenantID); err != nil {
		logger.Error("local mirror update failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

func (u *Updater) apply(ctx context.Context, orderDigits string, status models.Status, tenantID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("datastore panic: %v", r)
		}
	}()

	now := u.now().UTC()
	fields := map[string]any{
		"status":     string(status),
		"updated_at": now,
	}
	if status == models.StatusDispatched {
		fields["dispatched_at"] = now
	}

	match := map[string]any{
		columnOrderNumber: orderDigits,
		columnTenant:      tenantID,
	}

	rows, err := u.ds.Update(ctx, u.table, match, fields)
	if err != nil {
		return err
	}
	if rows == 0 {
		zap.L().Warn("local mirror has no row for order",
			zap.String("order_digits", orderDigits),
			zap.String("tenant_id", tenantID),
		)
	}
	return nil
}
