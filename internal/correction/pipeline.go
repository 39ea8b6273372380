package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/alkime/dictate/internal/notify"
	"github.com/alkime/dictate/internal/store"
)

const (
	// DefaultMinChars is the transcript length below which correction is
	// skipped entirely: short utterances rarely benefit and the per-call
	// latency is not worth it.
	DefaultMinChars = 30
	// DefaultFailureThreshold is the consecutive failure count that opens
	// the circuit.
	DefaultFailureThreshold = 3
	// DefaultOpenWindow is how long an open circuit blocks provider calls
	// before a half-open probe is allowed through.
	DefaultOpenWindow = 5 * time.Minute
)

// Config tunes the resilience pipeline.
type Config struct {
	MinChars         int
	FailureThreshold int
	OpenWindow       time.Duration
}

// WithDefaults returns a config with default values applied to zero fields.
func (c Config) WithDefaults() Config {
	if c.MinChars == 0 {
		c.MinChars = DefaultMinChars
	}

	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}

	if c.OpenWindow == 0 {
		c.OpenWindow = DefaultOpenWindow
	}

	return c
}

// Pipeline wraps a correction Provider so that an unreliable provider can
// never degrade dictation: every outcome is persisted, repeated failures
// open a circuit breaker, and on any trouble the original transcript is
// returned unchanged.
type Pipeline struct {
	provider Provider
	store    store.Store
	sink     notify.Sink
	cfg      Config
	log      *slog.Logger

	now func() time.Time // swapped in tests
}

// NewPipeline creates a resilience pipeline around provider.
func NewPipeline(
	provider Provider,
	st store.Store,
	sink notify.Sink,
	cfg Config,
	log *slog.Logger,
) *Pipeline {
	return &Pipeline{
		provider: provider,
		store:    st,
		sink:     sink,
		cfg:      cfg.WithDefaults(),
		log:      log,
		now:      time.Now,
	}
}

// ProviderID returns the breaker key of the wrapped provider.
func (p *Pipeline) ProviderID() string {
	return p.provider.ID()
}

// Correct produces a corrected transcript for the given transcription id.
//
// Correct never fails for provider or persistence trouble; it degrades to
// returning text unchanged. The only error return is an invalid argument
// (empty transcription id).
func (p *Pipeline) Correct(ctx context.Context, transcriptionID, text string) (string, error) {
	if transcriptionID == "" {
		return "", errors.New("transcription id cannot be empty")
	}

	if utf8.RuneCountInString(text) < p.cfg.MinChars {
		p.log.Debug("transcript below correction threshold, skipping",
			"transcriptionId", transcriptionID,
			"chars", utf8.RuneCountInString(text),
		)

		return text, nil
	}

	providerID := p.provider.ID()

	state, err := p.store.ReadBreakerState(ctx, providerID)
	if err != nil {
		// A store that cannot be read cannot record outcomes either, so
		// attempting a correction here would defeat the audit guarantee.
		p.log.Error("failed to read breaker state, skipping correction",
			"provider", providerID, "error", err)

		return text, nil
	}

	if state != nil && state.IsOpen {
		if state.OpenedAt == nil || p.now().Sub(*state.OpenedAt) < p.cfg.OpenWindow {
			// Open-circuit skips are not failures; nothing is persisted and
			// the failure counter stays put.
			p.log.Debug("correction circuit open, skipping",
				"provider", providerID, "transcriptionId", transcriptionID)

			return text, nil
		}

		// Window elapsed: this attempt runs as the half-open probe. The
		// breaker resets only once the probe's outcome is known.
		p.log.Info("correction circuit window elapsed, probing provider",
			"provider", providerID)
	}

	start := p.now()
	corrected, callErr := p.provider.CorrectText(ctx, text)
	elapsed := p.now().Sub(start)

	if callErr != nil && ctx.Err() != nil {
		// Cancelled mid-call: the attempt never completed, so it is neither
		// a success nor a failure and must not touch the breaker.
		p.log.Info("correction cancelled", "transcriptionId", transcriptionID)

		return text, nil
	}

	if callErr != nil {
		p.recordFailure(ctx, transcriptionID, providerID, callErr, elapsed)

		return text, nil
	}

	p.recordSuccess(ctx, transcriptionID, providerID, corrected, elapsed)

	return corrected, nil
}

// IsCircuitOpen reports whether the breaker currently blocks provider calls.
// An open breaker whose window has elapsed reports false, consistent with
// the half-open probe being allowed through.
func (p *Pipeline) IsCircuitOpen(ctx context.Context, providerID string) (bool, error) {
	state, err := p.store.ReadBreakerState(ctx, providerID)
	if err != nil {
		return false, fmt.Errorf("failed to read breaker state: %w", err)
	}

	if state == nil || !state.IsOpen || state.OpenedAt == nil {
		return false, nil
	}

	return p.now().Sub(*state.OpenedAt) < p.cfg.OpenWindow, nil
}

func (p *Pipeline) recordSuccess(
	ctx context.Context,
	transcriptionID, providerID, corrected string,
	elapsed time.Duration,
) {
	if err := p.store.AppendCorrectionSuccess(ctx, transcriptionID, corrected, elapsed); err != nil {
		p.log.Error("failed to persist correction success",
			"transcriptionId", transcriptionID, "error", err)
	}

	wasOpen := false

	_, err := p.store.UpdateBreakerState(ctx, providerID, func(state *store.BreakerState) error {
		wasOpen = state.IsOpen
		state.IsOpen = false
		state.ConsecutiveFailures = 0
		state.OpenedAt = nil

		return nil
	})
	if err != nil {
		p.log.Error("failed to reset breaker state",
			"provider", providerID, "error", err)

		return
	}

	// Open -> closed is the only path that emits a closed notification, so
	// it fires at most once per open episode.
	if wasOpen {
		p.log.Info("correction circuit closed", "provider", providerID)
		p.sink.NotifyCircuitClosed(providerID)
	}
}

func (p *Pipeline) recordFailure(
	ctx context.Context,
	transcriptionID, providerID string,
	callErr error,
	elapsed time.Duration,
) {
	p.log.Warn("correction failed, returning original transcript",
		"transcriptionId", transcriptionID, "error", callErr)

	if err := p.store.AppendCorrectionFailure(ctx, transcriptionID, callErr.Error(), elapsed); err != nil {
		p.log.Error("failed to persist correction failure",
			"transcriptionId", transcriptionID, "error", err)
	}

	now := p.now()
	tripped := false
	failures := 0

	_, err := p.store.UpdateBreakerState(ctx, providerID, func(state *store.BreakerState) error {
		if state.IsOpen {
			// Failed half-open probe: stay open and restart the window. The
			// counter stays frozen at the value that tripped the breaker.
			state.OpenedAt = &now
			failures = state.ConsecutiveFailures

			return nil
		}

		state.ConsecutiveFailures++
		failures = state.ConsecutiveFailures

		if state.ConsecutiveFailures >= p.cfg.FailureThreshold {
			state.IsOpen = true
			state.OpenedAt = &now
			tripped = true
		}

		return nil
	})
	if err != nil {
		p.log.Error("failed to update breaker state",
			"provider", providerID, "error", err)

		return
	}

	if tripped {
		p.log.Error("correction circuit opened",
			"provider", providerID, "consecutiveFailures", failures)
		p.sink.NotifyCircuitOpened(providerID, failures, callErr.Error())
		p.sink.Notify(fmt.Sprintf(
			"Transcript correction via %s is failing and has been suspended (%d consecutive failures): %s",
			providerID, failures, callErr.Error(),
		))
	}
}
