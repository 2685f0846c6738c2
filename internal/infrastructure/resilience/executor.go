// Package resilience retries transient upstream failures and trips a circuit breaker
// per operation so a dead model server or broker fails fast.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// Outcome says whether a failed attempt may be repeated and whether it counts
// against the operation's breaker.
type Outcome struct {
	Retryable     bool
	RecordFailure bool
}

// Policy shapes one call site. The zero value retries transport failures up to the
// configured attempt count.
type Policy struct {
	// MaxAttempts caps attempts when positive. 1 disables retries.
	MaxAttempts int
	// Transient lists extra sentinel errors treated like network failures.
	Transient []error
	// Final lists sentinel errors that count against the breaker but are never repeated.
	Final []error
}

// Classify applies the transport rules and then the policy's sentinels.
func (p Policy) Classify(err error) Outcome {
	if err == nil {
		return Outcome{}
	}
	for _, sentinel := range p.Final {
		if errors.Is(err, sentinel) {
			return Outcome{RecordFailure: true}
		}
	}
	for _, sentinel := range p.Transient {
		if errors.Is(err, sentinel) {
			return Outcome{Retryable: true, RecordFailure: true}
		}
	}
	return Classify(err)
}

// MarkTemporary tags err with domain.ErrTemporary when the policy would have retried
// it, so callers above the executor can map it to "try again later".
func (p Policy) MarkTemporary(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if p.Classify(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

// HTTPStatusError is a non-2xx reply from an upstream HTTP service.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "upstream status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("%s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// Classify retries network failures, open breakers and transient HTTP statuses.
// Cancellation and deadlines are neither retried nor counted against the breaker.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Outcome{}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Outcome{Retryable: true, RecordFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if IsRetryableHTTPStatus(statusErr.StatusCode) {
			return Outcome{Retryable: true, RecordFailure: true}
		}
		return Outcome{}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Outcome{Retryable: true, RecordFailure: true}
	}
	return Outcome{RecordFailure: true}
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Do runs fn under the operation's breaker, repeating it while policy classifies the
// failure as retryable. A breaker keeps the policy of the first call for its operation.
func (e *Executor) Do(ctx context.Context, operation string, policy Policy, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if !e.cfg.BreakerEnabled {
		return e.retry(ctx, op, policy, fn)
	}
	_, err := e.breaker(op, policy).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, policy, fn)
	})
	return err
}

func (e *Executor) retry(ctx context.Context, operation string, policy Policy, fn func(context.Context) error) error {
	attempts := e.cfg.RetryMaxAttempts
	if policy.MaxAttempts > 0 {
		attempts = policy.MaxAttempts
	}
	backoff := e.cfg.RetryInitialBackoff

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= attempts || !policy.Classify(err).Retryable {
			return err
		}

		e.cfg.Observer.ObserveRetry(operation)
		slog.Warn("upstream_retry",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff_ms", float64(backoff.Microseconds())/1000.0,
			"error", err,
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*e.cfg.RetryMultiplier), e.cfg.RetryMaxBackoff)
	}
}

func (e *Executor) breaker(operation string, policy Policy) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !policy.Classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.cfg.Observer.ObserveBreakerState(name, to.String())
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = cb
	return cb
}
