package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/BadgerOps/tuner/internal/mirror"
	"github.com/BadgerOps/tuner/internal/safety"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMultiplier = 2.0
)

// MirrorSource resolves the mirror to send a request to.
// *mirror.SelectionCache implements it.
type MirrorSource interface {
	GetMirror(ctx context.Context, forceRefresh bool) (string, error)
}

// RequestFunc performs one request against the mirror c is bound to.
type RequestFunc func(ctx context.Context, c *Client) ([]byte, error)

// ExecutorOptions tunes retries. Zero values take the defaults, except
// MaxRetries where zero is meaningful; use DefaultMaxRetries explicitly.
type ExecutorOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	UserAgent  string
}

// Executor runs requests against the selected mirror. A failed attempt marks
// the mirror as suspect: the next attempt waits out an exponential backoff
// and then forces a fresh mirror selection.
type Executor struct {
	mirrors    MirrorSource
	httpClient *http.Client
	userAgent  string
	maxRetries int
	logger     *slog.Logger
	observer   mirror.Observer

	backoffFunc func(attempt int) time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor. httpClient is shared by every attempt; nil
// gets a hardened default.
func NewExecutor(mirrors MirrorSource, httpClient *http.Client, opts ExecutorOptions, logger *slog.Logger, observer mirror.Observer) *Executor {
	if httpClient == nil {
		httpClient = safety.NewHTTPClient(nil, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = mirror.NopObserver{}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Multiplier < 1 {
		opts.Multiplier = DefaultMultiplier
	}

	base, mult := opts.BaseDelay, opts.Multiplier
	return &Executor{
		mirrors:    mirrors,
		httpClient: httpClient,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		logger:     logger,
		observer:   observer,
		backoffFunc: func(attempt int) time.Duration {
			return BackoffDelay(attempt, base, mult)
		},
		sleep: sleepContext,
	}
}

// MaxRetries returns the retry budget used by Execute.
func (e *Executor) MaxRetries() int {
	return e.maxRetries
}

// Execute runs fn with the configured retry budget.
func (e *Executor) Execute(ctx context.Context, fn RequestFunc) ([]byte, error) {
	return e.ExecuteWithRetries(ctx, fn, e.maxRetries)
}

// ExecuteWithRetries runs fn up to maxRetries+1 times. The first attempt uses
// the cached mirror as-is; every retry forces re-selection. An empty payload
// counts as a failure. There is no overall deadline beyond ctx.
func (e *Executor) ExecuteWithRetries(ctx context.Context, fn RequestFunc, maxRetries int) ([]byte, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var errs, lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.backoffFunc(attempt)
			e.observer.RetryScheduled(attempt, delay, lastErr)
			if err := e.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("request cancelled during retry: %w", err)
			}
		}

		body, err := e.attempt(ctx, fn, attempt > 0)
		if err == nil {
			return body, nil
		}

		lastErr = err
		errs = multierr.Append(errs, fmt.Errorf("attempt %d: %w", attempt+1, err))
		e.logger.Debug("upstream attempt failed", "attempt", attempt+1, "error", err)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
	}

	return nil, &ExhaustedError{Attempts: maxRetries + 1, Last: lastErr, Errors: errs}
}

func (e *Executor) attempt(ctx context.Context, fn RequestFunc, forceRefresh bool) ([]byte, error) {
	m, err := e.mirrors.GetMirror(ctx, forceRefresh)
	if err != nil {
		return nil, fmt.Errorf("resolving mirror: %w", err)
	}

	body, err := fn(ctx, NewClient(m, e.httpClient, e.userAgent))
	if err != nil {
		return nil, fmt.Errorf("mirror %s: %w", m, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("mirror %s: %w", m, ErrEmptyResponse)
	}
	return body, nil
}

// BackoffDelay is base * multiplier^(attempt-1) for attempt >= 1.
func BackoffDelay(attempt int, base time.Duration, multiplier float64) time.Duration {
	if attempt < 1 {
		return 0
	}
	return time.Duration(float64(base) * math.Pow(multiplier, float64(attempt-1)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Last     error
	Errors   error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("upstream request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// AttemptErrors returns the error of every attempt in order.
func (e *ExhaustedError) AttemptErrors() []error {
	return multierr.Errors(e.Errors)
}
