package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB implements Store on a SQLite database via GORM.
type DB struct {
	gormDB *gorm.DB
	log    *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema.
func Open(path string, log *slog.Logger) (*DB, error) {
	gormDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := gormDB.AutoMigrate(&BreakerState{}, &CorrectionSuccess{}, &CorrectionFailure{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	log.Debug("database opened", "path", path)

	return &DB{gormDB: gormDB, log: log}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	sqlDB, err := d.gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	return sqlDB.Close()
}

// AppendCorrectionSuccess records one successful correction attempt.
func (d *DB) AppendCorrectionSuccess(
	ctx context.Context,
	transcriptionID, correctedText string,
	duration time.Duration,
) error {
	rec := CorrectionSuccess{
		TranscriptionID: transcriptionID,
		CorrectedText:   correctedText,
		DurationMs:      duration.Milliseconds(),
	}

	if err := d.gormDB.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to append correction success: %w", err)
	}

	return nil
}

// AppendCorrectionFailure records one failed correction attempt.
func (d *DB) AppendCorrectionFailure(
	ctx context.Context,
	transcriptionID, errorMessage string,
	duration time.Duration,
) error {
	rec := CorrectionFailure{
		TranscriptionID: transcriptionID,
		ErrorMessage:    errorMessage,
		DurationMs:      duration.Milliseconds(),
	}

	if err := d.gormDB.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to append correction failure: %w", err)
	}

	return nil
}

// ReadBreakerState returns the breaker row for the provider, or nil when the
// provider has never had a correction attempt recorded.
func (d *DB) ReadBreakerState(ctx context.Context, providerID string) (*BreakerState, error) {
	var state BreakerState

	err := d.gormDB.WithContext(ctx).First(&state, "provider_id = ?", providerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read breaker state for %s: %w", providerID, err)
	}

	return &state, nil
}

// UpdateBreakerState applies mutate to the provider's row inside one
// transaction, creating the row lazily on first write. SQLite serializes
// writers, so the transaction gives the atomic read-modify-write the breaker
// requires.
func (d *DB) UpdateBreakerState(
	ctx context.Context,
	providerID string,
	mutate func(*BreakerState) error,
) (*BreakerState, error) {
	var result BreakerState

	err := d.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state BreakerState

		err := tx.First(&state, "provider_id = ?", providerID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			state = BreakerState{ProviderID: providerID}
		case err != nil:
			return fmt.Errorf("failed to read breaker state for %s: %w", providerID, err)
		}

		if err := mutate(&state); err != nil {
			return err
		}

		if err := tx.Save(&state).Error; err != nil {
			return fmt.Errorf("failed to write breaker state for %s: %w", providerID, err)
		}

		result = state

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// RecentOutcomes merges both outcome logs, newest first.
func (d *DB) RecentOutcomes(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 20
	}

	var successes []CorrectionSuccess
	if err := d.gormDB.WithContext(ctx).
		Order("created_at desc").Limit(limit).Find(&successes).Error; err != nil {
		return nil, fmt.Errorf("failed to read correction successes: %w", err)
	}

	var failures []CorrectionFailure
	if err := d.gormDB.WithContext(ctx).
		Order("created_at desc").Limit(limit).Find(&failures).Error; err != nil {
		return nil, fmt.Errorf("failed to read correction failures: %w", err)
	}

	outcomes := make([]Outcome, 0, len(successes)+len(failures))
	for _, s := range successes {
		outcomes = append(outcomes, Outcome{
			TranscriptionID: s.TranscriptionID,
			Success:         true,
			Detail:          s.CorrectedText,
			DurationMs:      s.DurationMs,
			CreatedAt:       s.CreatedAt,
		})
	}
	for _, f := range failures {
		outcomes = append(outcomes, Outcome{
			TranscriptionID: f.TranscriptionID,
			Success:         false,
			Detail:          f.ErrorMessage,
			DurationMs:      f.DurationMs,
			CreatedAt:       f.CreatedAt,
		})
	}

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].CreatedAt.After(outcomes[j].CreatedAt)
	})

	if len(outcomes) > limit {
		outcomes = outcomes[:limit]
	}

	return outcomes, nil
}
