package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/juancollazo-ch/kitchen-status-sync/internal/models"
)

const maxTextLength = 500

// RequestValidator valida los parámetros que llegan desde la UI antes de tocar la red.
type RequestValidator struct {
	orderNumberRegex *regexp.Regexp
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{
		// "100047", "#100047", "A-100047"
		orderNumberRegex: regexp.MustCompile(`^#?[0-9A-Za-z][0-9A-Za-z-]{0,31}$`),
	}
}

// ValidateOrderNumber acepta el número con o sin '#'.
func (v *RequestValidator) ValidateOrderNumber(number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return errors.New("order number is required")
	}
	if !v.orderNumberRegex.MatchString(number) {
		return errors.New("order number must be alphanumeric, optionally prefixed with '#'")
	}
	return nil
}

// ValidateTenantID evita que el header del restaurante se use para inyectar texto en logs o headers.
func (v *RequestValidator) ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return errors.New("X-Restaurant-ID header is required")
	}
	if strings.Contains(tenantID, "..") {
		return errors.New("restaurant id cannot contain '..'")
	}
	if strings.ContainsAny(tenantID, "<>\"';&|`$(){}[]\\\n\r\t /") {
		return errors.New("restaurant id contains invalid characters")
	}
	return nil
}

// ValidateStatus solo admite los estados del endpoint genérico.
func (v *RequestValidator) ValidateStatus(status models.Status) error {
	if status == "" {
		return errors.New("status is required")
	}
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	if !status.IsUpdatable() {
		return fmt.Errorf("status must be one of approved, preparing or ready, got %q", status)
	}
	return nil
}

// ValidateText limita notas y motivos de cancelación.
func (v *RequestValidator) ValidateText(field, value string) error {
	if len(value) > maxTextLength {
		return fmt.Errorf("%s must be at most %d characters", field, maxTextLength)
	}
	return nil
}
