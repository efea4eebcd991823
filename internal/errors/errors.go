package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError representa un error de la sincronización con código HTTP y contexto
type AppError struct {
	Code       int                    `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Internal   error                  `json:"-"` // No se expone al cliente
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Fallback   bool                   `json:"-"` // Amerita reintentar con la otra forma del número de orden
	StatusCode int                    `json:"-"` // HTTP status code del sitio web (0 si no hubo respuesta)
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Details)
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", msg, e.Internal)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewAppError crea un nuevo error de aplicación
func NewAppError(statusCode int, code int, message string, internal error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Internal:   internal,
		StatusCode: statusCode,
		Metadata:   make(map[string]interface{}),
		Retryable:  false,
	}
}

// WithDetails agrega detalles adicionales al error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithMetadata agrega metadata al error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithRetryable marca el error como reintentable
func (e *AppError) WithRetryable(retryable bool) *AppError {
	e.Retryable = retryable
	return e
}

// WithFallback marca el error como candidato al reintento con la forma alternativa
func (e *AppError) WithFallback(fallback bool) *AppError {
	e.Fallback = fallback
	return e
}

const codeCircuitOpen = 10300

// Errores predefinidos para la API del sitio web
var (
	// Errores de transporte: sin respuesta HTTP
	ErrNetwork = func(err error) *AppError {
		return NewAppError(0, 10000, "Network error", err).
			WithRetryable(true)
	}

	ErrTimeout = func(err error) *AppError {
		return NewAppError(0, 10800, "Request timeout", err).
			WithRetryable(true)
	}

	ErrCircuitOpen = func(host string, err error) *AppError {
		return NewAppError(0, codeCircuitOpen, "Remote host temporarily unavailable", err).
			WithDetails(host).
			WithRetryable(true)
	}

	// Errores de cliente (4xx) y de servidor (5xx) del sitio web
	ErrRemoteStatus = func(statusCode int, message string) *AppError {
		return NewAppError(statusCode, statusCode*100, "Website API error", nil).
			WithDetails(fmt.Sprintf("status %d: %s", statusCode, message)).
			WithMetadata("remote_message", message).
			WithRetryable(isRetryableStatus(statusCode))
	}

	ErrExhausted = func(attempts int, last error) *AppError {
		appErr := NewAppError(GetStatusCode(last), 50900, fmt.Sprintf("All %d attempts exhausted", attempts), last).
			WithRetryable(true)
		return appErr
	}

	ErrEncode = func(err error) *AppError {
		return NewAppError(0, 50100, "Could not build website API request", err)
	}

	// Errores de validación locales, antes de cualquier I/O
	ErrNoTenant = func() *AppError {
		return NewAppError(http.StatusUnauthorized, 40100, "No active restaurant", nil)
	}

	ErrInvalidStatus = func(details string, err error) *AppError {
		return NewAppError(http.StatusUnprocessableEntity, 42200, "Invalid status change", err).
			WithDetails(details)
	}
)

// isRetryableStatus: 408, 429 y 5xx se reintentan; el resto de 4xx es terminal
func isRetryableStatus(statusCode int) bool {
	switch {
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= 500:
		return true
	}
	return false
}

// IsMissingFieldsMessage detecta el texto con el que el sitio web rechaza una cancelación incompleta
func IsMissingFieldsMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "required") || strings.Contains(lower, "missing")
}

// IsRetryable verifica si un error es reintentable
func IsRetryable(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// IsTerminal indica un error de cliente que no debe reintentarse nunca
func IsTerminal(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return !appErr.Retryable && appErr.StatusCode >= 400 && appErr.StatusCode < 500
}

// NeedsFormatFallback indica si el fallo amerita un intento con la otra forma del número
func NeedsFormatFallback(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Fallback
	}
	return false
}

// IsCircuitOpen indica si en la cadena hay un rechazo del circuit breaker,
// aunque venga envuelto en ErrExhausted.
func IsCircuitOpen(err error) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == codeCircuitOpen {
			return true
		}
		err = appErr.Internal
	}
	return false
}

// GetStatusCode obtiene el código HTTP de un error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 0
}
