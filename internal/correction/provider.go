// Package correction improves raw dictation transcripts with an LLM pass,
// guarded by a length-based skip policy and a persisted circuit breaker.
package correction

import "context"

// Provider performs one blocking text-correction call. Calls may take
// arbitrary time and may fail transiently; the pipeline owns retrying policy
// (it does not retry, it breaks the circuit).
type Provider interface {
	// ID is the stable provider identity used as the circuit breaker key.
	ID() string
	CorrectText(ctx context.Context, text string) (string, error)
}
