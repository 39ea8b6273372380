package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkime/dictate/internal/store"
)

// fakeProvider counts calls and answers from a script of results.
type fakeProvider struct {
	id     string
	result string
	err    error
	calls  int
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) CorrectText(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}

	return f.result, nil
}

// memStore is an in-memory store.Store for pipeline tests.
type memStore struct {
	breakers  map[string]*store.BreakerState
	successes []store.CorrectionSuccess
	failures  []store.CorrectionFailure

	readErr  error
	writeErr error
}

func newMemStore() *memStore {
	return &memStore{breakers: map[string]*store.BreakerState{}}
}

func (m *memStore) AppendCorrectionSuccess(
	_ context.Context, transcriptionID, correctedText string, duration time.Duration,
) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.successes = append(m.successes, store.CorrectionSuccess{
		TranscriptionID: transcriptionID,
		CorrectedText:   correctedText,
		DurationMs:      duration.Milliseconds(),
	})

	return nil
}

func (m *memStore) AppendCorrectionFailure(
	_ context.Context, transcriptionID, errorMessage string, duration time.Duration,
) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.failures = append(m.failures, store.CorrectionFailure{
		TranscriptionID: transcriptionID,
		ErrorMessage:    errorMessage,
		DurationMs:      duration.Milliseconds(),
	})

	return nil
}

func (m *memStore) ReadBreakerState(_ context.Context, providerID string) (*store.BreakerState, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}

	state, ok := m.breakers[providerID]
	if !ok {
		return nil, nil
	}

	copied := *state

	return &copied, nil
}

func (m *memStore) UpdateBreakerState(
	_ context.Context, providerID string, mutate func(*store.BreakerState) error,
) (*store.BreakerState, error) {
	if m.writeErr != nil {
		return nil, m.writeErr
	}

	state, ok := m.breakers[providerID]
	if !ok {
		state = &store.BreakerState{ProviderID: providerID}
	}

	copied := *state
	if err := mutate(&copied); err != nil {
		return nil, err
	}

	m.breakers[providerID] = &copied
	result := copied

	return &result, nil
}

func (m *memStore) RecentOutcomes(context.Context, int) ([]store.Outcome, error) {
	return nil, nil
}

// countingSink records notification calls.
type countingSink struct {
	opened   []string
	closed   []string
	messages []string
}

func (c *countingSink) NotifyCircuitOpened(providerID string, failureCount int, lastError string) {
	c.opened = append(c.opened, fmt.Sprintf("%s/%d/%s", providerID, failureCount, lastError))
}

func (c *countingSink) NotifyCircuitClosed(providerID string) {
	c.closed = append(c.closed, providerID)
}

func (c *countingSink) Notify(message string) {
	c.messages = append(c.messages, message)
}

const longText = "This sentence is exactly sixty characters long for testing.."

func newTestPipeline(provider *fakeProvider, st *memStore, sink *countingSink) *Pipeline {
	return NewPipeline(provider, st, sink, Config{}, slog.Default())
}

func TestPipeline_ShortTextSkipsEverything(t *testing.T) {
	provider := &fakeProvider{id: "anthropic", result: "corrected"}
	st := newMemStore()
	sink := &countingSink{}
	p := newTestPipeline(provider, st, sink)

	got, err := p.Correct(context.Background(), "t-1", "ahoj")
	require.NoError(t, err)

	assert.Equal(t, "ahoj", got)
	assert.Zero(t, provider.calls, "provider must not be invoked for short text")
	assert.Empty(t, st.successes)
	assert.Empty(t, st.failures)
	assert.Empty(t, st.breakers, "no breaker row may be written for a skipped call")
}

func TestPipeline_EmptyTranscriptionIDFailsFast(t *testing.T) {
	p := newTestPipeline(&fakeProvider{id: "anthropic"}, newMemStore(), &countingSink{})

	_, err := p.Correct(context.Background(), "", longText)
	require.Error(t, err)
}

func TestPipeline_SuccessReturnsCorrectedAndPersistsOneRecord(t *testing.T) {
	provider := &fakeProvider{id: "anthropic", result: "Corrected transcript."}
	st := newMemStore()
	sink := &countingSink{}
	p := newTestPipeline(provider, st, sink)

	got, err := p.Correct(context.Background(), "t-1", longText)
	require.NoError(t, err)

	assert.Equal(t, "Corrected transcript.", got)
	assert.Equal(t, 1, provider.calls)
	require.Len(t, st.successes, 1)
	assert.Equal(t, "t-1", st.successes[0].TranscriptionID)
	assert.Empty(t, st.failures)

	breaker := st.breakers["anthropic"]
	require.NotNil(t, breaker)
	assert.False(t, breaker.IsOpen)
	assert.Zero(t, breaker.ConsecutiveFailures)
	assert.Nil(t, breaker.OpenedAt)
	assert.Empty(t, sink.closed, "no closed notification when the circuit was never open")
}

func TestPipeline_FailureReturnsOriginalAndPersistsOneRecord(t *testing.T) {
	provider := &fakeProvider{id: "anthropic", err: errors.New("provider down")}
	st := newMemStore()
	p := newTestPipeline(provider, st, &countingSink{})

	got, err := p.Correct(context.Background(), "t-1", longText)
	require.NoError(t, err, "provider failures must not surface to the caller")

	assert.Equal(t, longText, got)
	require.Len(t, st.failures, 1)
	assert.Equal(t, "provider down", st.failures[0].ErrorMessage)
	assert.Empty(t, st.successes)
	assert.Equal(t, 1, st.breakers["anthropic"].ConsecutiveFailures)
	assert.False(t, st.breakers["anthropic"].IsOpen)
}

func TestPipeline_ThreeFailuresOpenCircuitOnce(t *testing.T) {
	provider := &fakeProvider{id: "anthropic", err: errors.New("provider down")}
	st := newMemStore()
	sink := &countingSink{}
	p := newTestPipeline(provider, st, sink)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		got, err := p.Correct(ctx, fmt.Sprintf("t-%d", i), longText)
		require.NoError(t, err)
		assert.Equal(t, longText, got)
	}

	breaker := st.breakers["anthropic"]
	require.NotNil(t, breaker)
	assert.True(t, breaker.IsOpen)
	assert.Equal(t, 3, breaker.ConsecutiveFailures)
	require.NotNil(t, breaker.OpenedAt)

	require.Len(t, sink.opened, 1, "opened notification must fire exactly once")
	assert.Equal(t, "anthropic/3/provider down", sink.opened[0])
	assert.Len(t, sink.messages, 1, "secondary alert must fire with the opened notification")

	// 4th call inside the open window: provider skipped, count frozen.
	got, err := p.Correct(ctx, "t-4", longText)
	require.NoError(t, err)
	assert.Equal(t, longText, got)
	assert.Equal(t, 3, provider.calls, "open circuit must short-circuit the provider")
	assert.Equal(t, 3, st.breakers["anthropic"].ConsecutiveFailures)
	assert.Len(t, st.failures, 3, "open-circuit skip must not be persisted as a failure")
	assert.Len(t, sink.opened, 1, "no duplicate opened notification")
}

func TestPipeline_ProbeSuccessClosesCircuit(t *testing.T) {
	provider := &fakeProvider{id: "anthropic", err: errors.New("provider down")}
	st := newMemStore()
	sink := &countingSink{}
	p := newTestPipeline(provider, st, sink)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := p.Correct(ctx, fmt.Sprintf("t-%d", i), longText)
		require.NoError(t, err)
	}
	require.True(t, st.breakers["anthropic"].IsOpen)

	// Jump past the open window and let the provider recover.
	p.now = func() time.Time { return time.Now().Add(DefaultOpenWindow + time.Minute) }
	provider.err = nil
	provider.result = "Recovered correction."

	got, err := p.Correct(ctx, "t-probe", longText)
	require.NoError(t, err)
	assert.Equal(t, "Recovered correction.", got)
	assert.Equal(t, 4, provider.calls, "exactly one probe attempt")

	breaker := st.breakers["anthropic"]
	assert.False(t, breaker.IsOpen)
	assert.Zero(t, breaker.ConsecutiveFailures)
	assert.Nil(t, breaker.OpenedAt)
	require.Len(t, sink.closed, 1, "closed notification must fire exactly once")
	assert.Equal(t, "anthropic", sink.closed[0])
}

func TestPipeline_ProbeFailureRefreshesWindow(t *testing.T) {
	provider := &fakeProvider{id: "anthropic", err: errors.New("still down")}
	st := newMemStore()
	sink := &countingSink{}
	p := newTestPipeline(provider, st, sink)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := p.Correct(ctx, fmt.Sprintf("t-%d", i), longText)
		require.NoError(t, err)
	}
	firstOpenedAt := *st.breakers["anthropic"].OpenedAt

	probeTime := time.Now().Add(DefaultOpenWindow + time.Minute)
	p.now = func() time.Time { return probeTime }

	got, err := p.Correct(ctx, "t-probe", longText)
	require.NoError(t, err)
	assert.Equal(t, longText, got)
	assert.Equal(t, 4, provider.calls)

	breaker := st.breakers["anthropic"]
	assert.True(t, breaker.IsOpen, "failed probe keeps the circuit open")
	assert.Equal(t, 3, breaker.ConsecutiveFailures, "failed probe must not change the counter")
	require.NotNil(t, breaker.OpenedAt)
	assert.True(t, breaker.OpenedAt.After(firstOpenedAt), "failed probe must restart the open window")
	assert.Len(t, sink.opened, 1, "failed probe must not re-notify")

	// Next call right after the failed probe is inside the fresh window.
	_, err = p.Correct(ctx, "t-after", longText)
	require.NoError(t, err)
	assert.Equal(t, 4, provider.calls, "window restart must block the next call")
}

func TestPipeline_SuccessAfterFailuresResetsCounter(t *testing.T) {
	provider := &fakeProvider{id: "anthropic", err: errors.New("flaky")}
	st := newMemStore()
	p := newTestPipeline(provider, st, &countingSink{})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		_, err := p.Correct(ctx, fmt.Sprintf("t-%d", i), longText)
		require.NoError(t, err)
	}
	require.Equal(t, 2, st.breakers["anthropic"].ConsecutiveFailures)

	provider.err = nil
	provider.result = "ok " + longText

	_, err := p.Correct(ctx, "t-3", longText)
	require.NoError(t, err)
	assert.Zero(t, st.breakers["anthropic"].ConsecutiveFailures)
	assert.False(t, st.breakers["anthropic"].IsOpen)
}

func TestPipeline_CancellationIsNotAnOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	provider := &cancellingProvider{cancel: cancel}
	st := newMemStore()
	sink := &countingSink{}
	p := newTestPipeline(&fakeProvider{id: "anthropic"}, st, sink)
	p.provider = provider

	got, err := p.Correct(ctx, "t-1", longText)
	require.NoError(t, err)

	assert.Equal(t, longText, got)
	assert.Empty(t, st.successes, "cancelled attempt must not record a success")
	assert.Empty(t, st.failures, "cancelled attempt must not record a failure")
	assert.Empty(t, st.breakers, "cancelled attempt must not touch the breaker")
}

// cancellingProvider cancels the caller's context mid-call and returns its error.
type cancellingProvider struct {
	cancel context.CancelFunc
}

func (c *cancellingProvider) ID() string { return "anthropic" }

func (c *cancellingProvider) CorrectText(ctx context.Context, _ string) (string, error) {
	c.cancel()
	return "", ctx.Err()
}

func TestPipeline_StoreReadFailureDegradesToOriginal(t *testing.T) {
	provider := &fakeProvider{id: "anthropic", result: "corrected"}
	st := newMemStore()
	st.readErr = errors.New("disk gone")
	p := newTestPipeline(provider, st, &countingSink{})

	got, err := p.Correct(context.Background(), "t-1", longText)
	require.NoError(t, err)
	assert.Equal(t, longText, got)
	assert.Zero(t, provider.calls, "unreadable store must skip the provider")
}

func TestPipeline_StoreWriteFailureStillReturnsCorrected(t *testing.T) {
	provider := &fakeProvider{id: "anthropic", result: "corrected " + longText}
	st := newMemStore()
	st.writeErr = errors.New("disk full")
	p := newTestPipeline(provider, st, &countingSink{})

	got, err := p.Correct(context.Background(), "t-1", longText)
	require.NoError(t, err)
	assert.Equal(t, "corrected "+longText, got)
}

func TestPipeline_IsCircuitOpen(t *testing.T) {
	provider := &fakeProvider{id: "anthropic", err: errors.New("down")}
	st := newMemStore()
	p := newTestPipeline(provider, st, &countingSink{})
	ctx := context.Background()

	open, err := p.IsCircuitOpen(ctx, "anthropic")
	require.NoError(t, err)
	assert.False(t, open, "absent row reads as closed")

	for i := 1; i <= 3; i++ {
		_, err := p.Correct(ctx, fmt.Sprintf("t-%d", i), longText)
		require.NoError(t, err)
	}

	open, err = p.IsCircuitOpen(ctx, "anthropic")
	require.NoError(t, err)
	assert.True(t, open)

	// Elapsed window reports not-blocking, matching the allowed probe.
	p.now = func() time.Time { return time.Now().Add(DefaultOpenWindow + time.Minute) }
	open, err = p.IsCircuitOpen(ctx, "anthropic")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestPipeline_LongTextLengthGuard(t *testing.T) {
	// Sanity-check the fixture used across these tests.
	require.GreaterOrEqual(t, len(strings.TrimSpace(longText)), DefaultMinChars)
	require.Equal(t, 60, len(longText))
}
