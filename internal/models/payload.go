package models

import "time"

// StatusPayload es el cuerpo JSON que espera la API del sitio web.
// Los campos propios de la cancelación se omiten en los demás endpoints.
type StatusPayload struct {
	OrderNumber       string  `json:"order_number"`
	OrderNumberDigits string  `json:"order_number_digits"`
	Status            string  `json:"status"`
	Timestamp         string  `json:"timestamp"`
	UpdatedBy         string  `json:"updated_by"`
	Notes             string  `json:"notes,omitempty"`
	CancelReason      string  `json:"cancel_reason,omitempty"`
	CancelledAt       *string `json:"cancelled_at,omitempty"`
}

// ToPayload convierte el request al cuerpo del endpoint usando la forma indicada
// para order_number. order_number_digits siempre lleva la forma sin '#'.
func (r StatusChangeRequest) ToPayload(form Form) StatusPayload {
	number := Canonicalize(r.OrderNumber)
	ts := r.IssuedAt.UTC().Format(time.RFC3339Nano)

	payload := StatusPayload{
		OrderNumber:       number.In(form),
		OrderNumberDigits: number.Digits,
		Status:            string(r.TargetStatus),
		Timestamp:         ts,
		UpdatedBy:         r.Actor,
		Notes:             r.Notes,
	}

	if r.TargetStatus == StatusCancelled {
		payload.CancelReason = r.CancelReason
		cancelledAt := ts
		payload.CancelledAt = &cancelledAt
	}

	return payload
}
