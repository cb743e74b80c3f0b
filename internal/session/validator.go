// ABOUTME: Background token validation against the backend's /auth/me endpoint
// ABOUTME: Publishes token_expired on 401; other failures are retried next tick

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/compliai/internal/auth"
	"github.com/2389/compliai/internal/client"
	"github.com/2389/compliai/internal/events"
)

// DefaultValidationInterval is how often the credential is re-checked.
const DefaultValidationInterval = 5 * time.Minute

// Validation errors
var (
	ErrNoCredential       = errors.New("no credential")
	ErrValidationInFlight = errors.New("validation already in flight")
)

// IdentityChecker is the backend call used to test a credential.
type IdentityChecker interface {
	Me(ctx context.Context) (*client.User, error)
}

// Ticker delivers validation ticks.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every interval.
type TickerFactory func(interval time.Duration) Ticker

type timeTicker struct{ *time.Ticker }

func (t timeTicker) Chan() <-chan time.Time { return t.C }

func newTimeTicker(interval time.Duration) Ticker {
	return timeTicker{time.NewTicker(interval)}
}

// Validator periodically checks that the current credential is still accepted.
type Validator struct {
	api       IdentityChecker
	tokens    client.TokenSource
	bus       *events.Bus
	logger    *slog.Logger
	newTicker TickerFactory

	mu     sync.Mutex
	cancel context.CancelFunc // non-nil while running

	validating atomic.Bool
}

// NewValidator creates a stopped validator. Pass nil logger for default.
func NewValidator(api IdentityChecker, tokens client.TokenSource, bus *events.Bus, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		api:       api,
		tokens:    tokens,
		bus:       bus,
		logger:    logger.With("component", "validator"),
		newTicker: newTimeTicker,
	}
}

// SetTickerFactory replaces the ticker used by subsequent Start calls.
func (v *Validator) SetTickerFactory(f TickerFactory) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.newTicker = f
}

// Start validates once immediately and then every interval. A running
// validator is stopped first, so there is never more than one timer.
// interval <= 0 selects DefaultValidationInterval.
func (v *Validator) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultValidationInterval
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cancel != nil {
		v.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	ticker := v.newTicker(interval)

	v.logger.Debug("validation started", "interval", interval)
	go v.run(ctx, ticker)
}

// Stop cancels the timer. It does not wait for an in-flight request; that
// request's outcome is discarded. Safe to call when not running.
func (v *Validator) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cancel == nil {
		return
	}
	v.cancel()
	v.cancel = nil
	v.logger.Debug("validation stopped")
}

// IsRunning reports whether a timer is held.
func (v *Validator) IsRunning() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancel != nil
}

// Validate runs one validation step now. It returns ErrNoCredential or
// ErrValidationInFlight when skipped, and the backend error otherwise.
func (v *Validator) Validate(ctx context.Context) error {
	token := v.tokens.Token()
	if token == "" {
		return ErrNoCredential
	}
	if !v.validating.CompareAndSwap(false, true) {
		v.logger.Debug("validation skipped, previous call still in flight")
		return ErrValidationInFlight
	}
	defer v.validating.Store(false)

	_, err := v.api.Me(ctx)
	if err == nil {
		v.logger.Debug("credential valid", "token", auth.Fingerprint(token))
		return nil
	}

	// Stopped while the request was out: nobody is listening for this result.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if errors.Is(err, client.ErrUnauthorized) {
		v.logger.Warn("credential rejected by backend", "token", auth.Fingerprint(token))
		v.bus.Emit(events.KindTokenExpired, token)
		return err
	}

	v.logger.Warn("credential validation failed, will retry", "error", err)
	return err
}

func (v *Validator) run(ctx context.Context, ticker Ticker) {
	defer ticker.Stop()

	_ = v.Validate(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			_ = v.Validate(ctx)
		}
	}
}
