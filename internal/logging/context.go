// internal/logging/context.go
package logging

import (
	"context"

	"github.com/juancollazo-ch/kitchen-status-sync/internal/contextkeys"
	"go.uber.org/zap"
)

// GetLoggingFieldsFromContext extrae los campos de logging (tenant_id, order_number, trace_id)
// del contexto y los devuelve como un slice de zap.Field.
func GetLoggingFieldsFromContext(ctx context.Context) []zap.Field {
	fields := []zap.Field{}
	if ctx == nil {
		return fields
	}
	if tid, ok := ctx.Value(contextkeys.TenantIDKey).(string); ok && tid != "" {
		fields = append(fields, zap.String("tenant_id", tid))
	}
	if num, ok := ctx.Value(contextkeys.OrderNumberKey).(string); ok && num != "" {
		fields = append(fields, zap.String("order_number", num))
	}
	if trace, ok := ctx.Value(contextkeys.TraceIDKey).(string); ok && trace != "" {
		fields = append(fields, zap.String("trace_id", trace))
	}
	return fields
}

// WithLoggingFields añade tenant_id y order_number al contexto si están presentes.
func WithLoggingFields(ctx context.Context, tenantID, orderNumber string) context.Context {
	if tenantID != "" {
		ctx = context.WithValue(ctx, contextkeys.TenantIDKey, tenantID)
	}
	if orderNumber != "" {
		ctx = context.WithValue(ctx, contextkeys.OrderNumberKey, orderNumber)
	}
	return ctx
}

// WithTraceID guarda el trace id de la request de la UI.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, contextkeys.TraceIDKey, traceID)
}

// L devuelve el logger global enriquecido con los campos del contexto.
func L(ctx context.Context) *zap.Logger {
	return zap.L().With(GetLoggingFieldsFromContext(ctx)...)
}
