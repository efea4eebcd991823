package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/juancollazo-ch/kitchen-status-sync/internal/logging"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/models"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/models/serviceresponse"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/remote"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/validator"
)

// Syncer es la fachada que expone este puente HTTP a la UI.
type Syncer interface {
	UpdateStatus(ctx context.Context, tenantID, orderNumber string, status models.Status, notes string) serviceresponse.SyncResult
	Dispatch(ctx context.Context, tenantID, orderNumber, notes string) serviceresponse.SyncResult
	Cancel(ctx context.Context, tenantID, orderNumber, reason, notes string) serviceresponse.SyncResult
	Flush(ctx context.Context) (serviceresponse.FlushResult, error)
	SetOnline(online bool)
	Online() bool
	Pending() []models.QueuedRequest
}

type Handler struct {
	svc       Syncer
	validator *validator.RequestValidator
}

func New(svc Syncer) *Handler {
	return &Handler{
		svc:       svc,
		validator: validator.NewRequestValidator(),
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type QueueResponse struct {
	Online  bool                   `json:"online"`
	Pending int                    `json:"pending"`
	Items   []models.QueuedRequest `json:"items"`
}

type ConnectivityResponse struct {
	Online  bool `json:"online"`
	Pending int  `json:"pending"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeResult traduce el resultado de la fachada a HTTP. Un fallo sin código
// del sitio web (red, timeout, circuito abierto) o con 5xx se reporta como 502.
func writeResult(w http.ResponseWriter, result serviceresponse.SyncResult) {
	switch {
	case result.Success && result.Queued:
		writeJSON(w, http.StatusAccepted, result)
	case result.Success:
		writeJSON(w, http.StatusOK, result)
	case result.StatusCode >= 400 && result.StatusCode < 500:
		writeJSON(w, result.StatusCode, result)
	default:
		writeJSON(w, http.StatusBadGateway, result)
	}
}

// decodeBody acepta un body vacío como objeto vacío.
func decodeBody(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// orderScope lee y valida el restaurante y el número de orden del request.
func (h *Handler) orderScope(w http.ResponseWriter, r *http.Request) (tenantID, orderNumber string, ok bool) {
	tenantID = r.Header.Get(remote.HeaderTenant)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "no_active_restaurant", "X-Restaurant-ID header is required")
		return "", "", false
	}
	if err := h.validator.ValidateTenantID(tenantID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_restaurant", err.Error())
		return "", "", false
	}

	orderNumber = chi.URLParam(r, "orderNumber")
	if err := h.validator.ValidateOrderNumber(orderNumber); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_order_number", err.Error())
		return "", "", false
	}
	return tenantID, orderNumber, true
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, orderNumber, ok := h.orderScope(w, r)
	if !ok {
		return
	}

	var req models.StatusUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	status := models.Status(req.Status)
	if err := h.validator.ValidateStatus(status); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}
	if err := h.validator.ValidateText("notes", req.Notes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx := logging.WithLoggingFields(r.Context(), tenantID, orderNumber)
	writeResult(w, h.svc.UpdateStatus(ctx, tenantID, orderNumber, status, req.Notes))
}

func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	tenantID, orderNumber, ok := h.orderScope(w, r)
	if !ok {
		return
	}

	var req models.DispatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if err := h.validator.ValidateText("notes", req.Notes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx := logging.WithLoggingFields(r.Context(), tenantID, orderNumber)
	writeResult(w, h.svc.Dispatch(ctx, tenantID, orderNumber, req.Notes))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, orderNumber, ok := h.orderScope(w, r)
	if !ok {
		return
	}

	var req models.CancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	for field, value := range map[string]string{"reason": req.Reason, "notes": req.Notes} {
		if err := h.validator.ValidateText(field, value); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	ctx := logging.WithLoggingFields(r.Context(), tenantID, orderNumber)
	writeResult(w, h.svc.Cancel(ctx, tenantID, orderNumber, req.Reason, req.Notes))
}

func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Flush(r.Context())
	if err != nil {
		zap.L().Error("flush finished with errors", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectivityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Online == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "online is required")
		return
	}

	h.svc.SetOnline(*req.Online)
	writeJSON(w, http.StatusOK, ConnectivityResponse{Online: h.svc.Online(), Pending: len(h.svc.Pending())})
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	items := h.svc.Pending()
	writeJSON(w, http.StatusOK, QueueResponse{Online: h.svc.Online(), Pending: len(items), Items: items})
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Online  bool   `json:"online"`
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: "kitchen-status-sync",
		Version: "1.0.0",
		Online:  h.svc.Online(),
	})
}
