package models

import (
	"fmt"
	"time"
)

// Status es el estado de una orden en el ciclo de vida de cocina.
type Status string

const (
	StatusApproved   Status = "approved"
	StatusPreparing  Status = "preparing"
	StatusReady      Status = "ready"
	StatusDispatched Status = "dispatched"
	StatusCancelled  Status = "cancelled"
)

// ActorKitchenApp identifica a la app de cocina como origen del cambio.
const ActorKitchenApp = "kitchen-app"

// IsUpdatable indica si el estado se envía por el endpoint genérico de status-update.
func (s Status) IsUpdatable() bool {
	switch s {
	case StatusApproved, StatusPreparing, StatusReady:
		return true
	}
	return false
}

// Valid indica si s es uno de los estados conocidos del ciclo de vida.
func (s Status) Valid() bool {
	return s.IsUpdatable() || s == StatusDispatched || s == StatusCancelled
}

// EndpointKind identifica la operación remota a la que apunta un request.
type EndpointKind string

const (
	EndpointStatusUpdate EndpointKind = "status-update"
	EndpointDispatch     EndpointKind = "dispatch"
	EndpointCancel       EndpointKind = "cancel"
)

// Path devuelve la ruta relativa a la base de la API del sitio web.
func (k EndpointKind) Path() string {
	switch k {
	case EndpointDispatch:
		return "/order-dispatch"
	case EndpointCancel:
		return "/order-cancel"
	default:
		return "/order-status-update"
	}
}

// StatusChangeRequest es la unidad de trabajo que se propaga al sitio web.
type StatusChangeRequest struct {
	OrderNumber  string    `json:"order_number"`
	TenantID     string    `json:"tenant_id"`
	TargetStatus Status    `json:"target_status"`
	IssuedAt     time.Time `json:"issued_at"`
	Actor        string    `json:"actor"`
	Notes        string    `json:"notes,omitempty"`
	CancelReason string    `json:"cancel_reason,omitempty"`
}

// NewStatusChangeRequest construye el request según el tipo de endpoint.
// Los campos que no aplican al estado destino quedan vacíos y se omiten en el payload.
func NewStatusChangeRequest(kind EndpointKind, tenantID, orderNumber string, status Status, notes, reason string, now time.Time) (StatusChangeRequest, error) {
	req := StatusChangeRequest{
		OrderNumber: orderNumber,
		TenantID:    tenantID,
		IssuedAt:    now.UTC(),
		Actor:       ActorKitchenApp,
		Notes:       notes,
	}

	switch kind {
	case EndpointStatusUpdate:
		if !status.IsUpdatable() {
			return StatusChangeRequest{}, fmt.Errorf("status %q cannot be sent as a status update", status)
		}
		req.TargetStatus = status
	case EndpointDispatch:
		req.TargetStatus = StatusDispatched
	case EndpointCancel:
		req.TargetStatus = StatusCancelled
		req.CancelReason = reason
	default:
		return StatusChangeRequest{}, fmt.Errorf("unknown endpoint kind %q", kind)
	}

	return req, nil
}

// QueuedRequest envuelve un StatusChangeRequest pendiente de confirmación remota.
type QueuedRequest struct {
	ID         string              `json:"id"`
	Endpoint   EndpointKind        `json:"endpoint"`
	Payload    StatusChangeRequest `json:"payload"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
	RetryCount int                 `json:"retry_count"`
}
