package handlers

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/juancollazo-ch/kitchen-status-sync/internal/logging"
)

// NewRouter arma las rutas del puente local que consume la UI.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(WithLogging)

	r.Get("/health", h.HealthCheck)

	r.Route("/orders/{orderNumber}", func(r chi.Router) {
		r.Post("/status", h.UpdateStatus)
		r.Post("/dispatch", h.Dispatch)
		r.Post("/cancel", h.Cancel)
	})

	r.Route("/sync", func(r chi.Router) {
		r.Post("/flush", h.Flush)
		r.Put("/connectivity", h.SetConnectivity)
		r.Get("/queue", h.GetQueue)
	})

	return r
}

// WithLogging registra inicio y fin de cada request con un trace id.
func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := traceIDFromHeader(r.Header.Get("X-Cloud-Trace-Context"))
		if traceID == "" {
			traceID = fmt.Sprintf("%d-%d", start.UnixNano(), os.Getpid())
		}
		ctx := logging.WithTraceID(r.Context(), traceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		zap.L().Info("Request started",
			zap.String("trace_id", traceID),
			zap.String("httpRequest.requestMethod", r.Method),
			zap.String("httpRequest.requestUrl", r.URL.Path),
			zap.String("httpRequest.userAgent", r.UserAgent()),
		)

		next.ServeHTTP(ww, r.WithContext(ctx))

		duration := time.Since(start)
		zap.L().Info("Request completed",
			zap.String("trace_id", traceID),
			zap.String("httpRequest.requestMethod", r.Method),
			zap.String("httpRequest.requestUrl", r.URL.Path),
			zap.Int("httpRequest.status", ww.Status()),
			zap.Int64("httpRequest.latency.milliseconds", duration.Milliseconds()),
		)
	})
}

// Formato: TRACE_ID/SPAN_ID;o=TRACE_TRUE
func traceIDFromHeader(header string) string {
	if slashIdx := strings.IndexByte(header, '/'); slashIdx != -1 {
		return header[:slashIdx]
	}
	return header
}
