// Package store persists circuit breaker state and the append-only logs of
// transcript correction outcomes.
package store

import (
	"context"
	"time"
)

// BreakerState is the durable circuit breaker record, one row per
// correction provider identity. Rows are created lazily on the first write
// for a provider and never deleted (retained for audit).
type BreakerState struct {
	ProviderID          string     `gorm:"primaryKey;column:provider_id"`
	IsOpen              bool       `gorm:"column:is_open"`
	ConsecutiveFailures int        `gorm:"column:consecutive_failures"`
	OpenedAt            *time.Time `gorm:"column:opened_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime"`
}

// CorrectionSuccess is one successful correction attempt. Write-once.
type CorrectionSuccess struct {
	ID              uint   `gorm:"primaryKey"`
	TranscriptionID string `gorm:"column:transcription_id;index"`
	CorrectedText   string `gorm:"column:corrected_text"`
	DurationMs      int64  `gorm:"column:duration_ms"`
	CreatedAt       time.Time
}

// CorrectionFailure is one failed correction attempt. Write-once.
type CorrectionFailure struct {
	ID              uint   `gorm:"primaryKey"`
	TranscriptionID string `gorm:"column:transcription_id;index"`
	ErrorMessage    string `gorm:"column:error_message"`
	DurationMs      int64  `gorm:"column:duration_ms"`
	CreatedAt       time.Time
}

// Outcome is a read model merging both outcome logs for status surfaces.
type Outcome struct {
	TranscriptionID string    `json:"transcriptionId"`
	Success         bool      `json:"success"`
	Detail          string    `json:"detail"` // corrected text or error message
	DurationMs      int64     `json:"durationMs"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Store is the persistence contract the correction pipeline and the status
// server depend on.
type Store interface {
	AppendCorrectionSuccess(ctx context.Context, transcriptionID, correctedText string, duration time.Duration) error
	AppendCorrectionFailure(ctx context.Context, transcriptionID, errorMessage string, duration time.Duration) error

	// ReadBreakerState returns nil when no row exists for the provider.
	ReadBreakerState(ctx context.Context, providerID string) (*BreakerState, error)

	// UpdateBreakerState runs mutate against the provider's current row (a
	// fresh zero-value row when absent) and persists the result. The whole
	// read-modify-write is serialized per provider; concurrent callers never
	// observe or produce a lost update.
	UpdateBreakerState(ctx context.Context, providerID string, mutate func(*BreakerState) error) (*BreakerState, error)

	// RecentOutcomes returns up to limit outcomes, newest first.
	RecentOutcomes(ctx context.Context, limit int) ([]Outcome, error)
}
