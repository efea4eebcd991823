package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "github.com/juancollazo-ch/kitchen-status-sync/internal/errors"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/logging"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/models"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/retry"
)

const (
	DefaultAttemptTimeout = 10 * time.Second

	HeaderTenant         = "X-Restaurant-ID"
	HeaderDigits         = "X-Order-Number-Digits"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRetryAttempt   = "X-Retry-Attempt"
)

// Config agrupa lo necesario para hablar con la API del sitio web.
type Config struct {
	BaseURL        string
	APIKey         string
	AttemptTimeout time.Duration
	Policy         retry.Policy
	HTTPClient     *http.Client
}

// Client envía los cambios de estado al sitio web, con reintentos y fallback
// de formato del número de orden.
type Client struct {
	http    *http.Client
	base    string
	host    string
	apiKey  string
	timeout time.Duration
	policy  retry.Policy
	formats *formatCache
	breaker *gobreaker.CircuitBreaker
	newKey  func() string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("website API base URL is required")
	}

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Hostname() == "" {
		return nil, fmt.Errorf("invalid website API base URL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// El timeout va por intento vía context, no en el cliente.
		httpClient = &http.Client{}
	}

	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}

	policy := cfg.Policy
	if policy.MaxAttempts == 0 && policy.BaseDelay == 0 {
		policy = retry.DefaultPolicy()
	}

	host := parsed.Hostname()

	return &Client{
		http:    httpClient,
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		host:    host,
		apiKey:  cfg.APIKey,
		timeout: timeout,
		policy:  policy,
		formats: newFormatCache(),
		breaker: newBreaker(host),
		newKey:  func() string { return uuid.NewString() },
	}, nil
}

// Solo los fallos transitorios abren el circuito: un 4xx significa que el host responde.
func newBreaker(host string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("website API circuit breaker state changed",
				zap.String("host", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Host devuelve el hostname de la API, clave de la preferencia de formato.
func (c *Client) Host() string {
	return c.host
}

// PreferredForm devuelve la forma que se intentará primero contra este host.
func (c *Client) PreferredForm() models.Form {
	return c.formats.preferred(c.host)
}

type sendOptions struct {
	maxAttempts int
}

// SendOption ajusta un envío puntual.
type SendOption func(*sendOptions)

// WithMaxAttempts reduce o amplía el presupuesto de intentos de un envío.
func WithMaxAttempts(n int) SendOption {
	return func(o *sendOptions) {
		o.maxAttempts = n
	}
}

// Send ejecuta un cambio de estado lógico contra el sitio web:
//  1. intenta con la forma preferida para el host, con backoff;
//  2. si el fallo es "no encontrado" (o "faltan campos" en cancel), hace
//     exactamente un intento con la forma alternativa;
//  3. recuerda la forma que funcionó.
//
// Si ambos fallan devuelve el error de la forma primaria.
func (c *Client) Send(ctx context.Context, kind models.EndpointKind, req models.StatusChangeRequest, opts ...SendOption) (*Response, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	policy := c.policy.WithMaxAttempts(o.maxAttempts)

	logger := logging.L(ctx).With(
		zap.String("endpoint", string(kind)),
		zap.String("status", string(req.TargetStatus)),
	)

	primary := c.formats.preferred(c.host)

	// Misma idempotency key para todos los reintentos del mismo body.
	key := c.newKey()
	var resp *Response
	err := retry.WithRetry(ctx, policy, func(attempt int) error {
		r, err := c.attempt(ctx, kind, req, primary, key, attempt)
		if err != nil {
			logger.Warn("website API attempt failed",
				zap.Int("attempt", attempt),
				zap.String("form", string(primary)),
				zap.Error(err),
			)
			return err
		}
		resp = r
		return nil
	})
	if err == nil {
		c.formats.remember(c.host, primary)
		return resp, nil
	}

	if !apperrors.NeedsFormatFallback(err) {
		logger.Error("website API call failed", zap.Error(err))
		return nil, err
	}

	fallback := primary.Alternate()
	logger.Info("retrying with alternate order number format",
		zap.String("from", string(primary)),
		zap.String("to", string(fallback)),
	)

	resp, fbErr := c.attempt(ctx, kind, req, fallback, c.newKey(), 1)
	if fbErr != nil {
		logger.Error("website API call failed in both formats",
			zap.NamedError("primary_error", err),
			zap.NamedError("fallback_error", fbErr),
		)
		return nil, err
	}

	c.formats.remember(c.host, fallback)
	return resp, nil
}

// attempt hace una única llamada HTTP con su propio timeout.
func (c *Client) attempt(ctx context.Context, kind models.EndpointKind, req models.StatusChangeRequest, form models.Form, key string, attempt int) (*Response, error) {
	payload, err := json.Marshal(req.ToPayload(form))
	if err != nil {
		return nil, apperrors.ErrEncode(err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.base+kind.Path(), bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.ErrEncode(err)
	}

	digits := models.Canonicalize(req.OrderNumber).Digits
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	httpReq.Header.Set(HeaderTenant, req.TenantID)
	httpReq.Header.Set(HeaderDigits, digits)
	httpReq.Header.Set(HeaderIdempotencyKey, key)
	httpReq.Header.Set(HeaderRetryAttempt, fmt.Sprintf("%d", attempt))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(attemptCtx, kind, httpReq)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.ErrCircuitOpen(c.host, err)
	}
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

func (c *Client) do(ctx context.Context, kind models.EndpointKind, httpReq *http.Request) (*Response, error) {
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.ErrTimeout(err)
		}
		return nil, apperrors.ErrNetwork(err)
	}
	defer resp.Body.Close()

	body, message, err := readBody(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.ErrTimeout(err)
		}
		return nil, apperrors.ErrNetwork(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if message == "" {
			message = "Order status synchronized"
		}
		return &Response{StatusCode: resp.StatusCode, Message: message, Body: body}, nil
	}

	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	appErr := apperrors.ErrRemoteStatus(resp.StatusCode, message)
	return nil, appErr.WithFallback(needsFallback(kind, resp.StatusCode, message))
}

// needsFallback: 404 en status-update/dispatch, o 400 "faltan campos" en cancel.
func needsFallback(kind models.EndpointKind, statusCode int, message string) bool {
	switch kind {
	case models.EndpointStatusUpdate, models.EndpointDispatch:
		return statusCode == http.StatusNotFound
	case models.EndpointCancel:
		return statusCode == http.StatusBadRequest && apperrors.IsMissingFieldsMessage(message)
	}
	return false
}
