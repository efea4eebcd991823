package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	apperrors "github.com/juancollazo-ch/kitchen-status-sync/internal/errors"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultJitter      = 0.2
)

// Policy decide si un intento fallido se reintenta y con qué espera.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      float64

	// Rand devuelve un valor uniforme en [0, 1). Por defecto math/rand.
	Rand func() float64
}

// DefaultPolicy: 3 intentos, base 1s, ±20% de jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Jitter:      DefaultJitter,
	}
}

// WithMaxAttempts devuelve una copia de la política con otro presupuesto de intentos.
func (p Policy) WithMaxAttempts(n int) Policy {
	if n > 0 {
		p.MaxAttempts = n
	}
	return p
}

// Decision es el resultado de evaluar un intento fallido.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide evalúa el intento número attempt (base 1) que terminó con err.
func (p Policy) Decide(attempt int, err error) Decision {
	if err == nil || !apperrors.IsRetryable(err) {
		return Decision{}
	}
	if attempt >= p.maxAttempts() {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.Delay(attempt)}
}

// Delay calcula 2^attempt * base con jitter uniforme de ±Jitter.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	exp := float64(base) * math.Pow(2, float64(attempt))

	random := rand.Float64
	if p.Rand != nil {
		random = p.Rand
	}
	factor := 1 + p.Jitter*(2*random()-1)

	return time.Duration(exp * factor)
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// WithRetry ejecuta fn hasta que tenga éxito, falle de forma terminal o se
// agote el presupuesto. fn recibe el número de intento (base 1).
// Si se agotan los intentos con un error reintentable, devuelve ErrExhausted.
func WithRetry(ctx context.Context, p Policy, fn func(attempt int) error) error {
	var err error
	limit := p.maxAttempts()

	for attempt := 1; attempt <= limit; attempt++ {
		// Verificar si el context expiró
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err = fn(attempt)
		if err == nil {
			return nil
		}

		decision := p.Decide(attempt, err)
		if !decision.Retry {
			break
		}

		if sleepErr := Sleep(ctx, decision.Delay); sleepErr != nil {
			return sleepErr
		}
	}

	if apperrors.IsRetryable(err) {
		return apperrors.ErrExhausted(limit, err)
	}
	return err
}

// Sleep espera d o hasta que el context se cancele.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
