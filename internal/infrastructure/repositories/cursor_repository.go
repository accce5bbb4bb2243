package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
)

// cursorRowID is the fixed primary key of the singleton scanner cursor row
const cursorRowID = 1

// CursorRepository persists the scanner's single-row cursor state
type CursorRepository struct {
	db *sqlx.DB
}

// NewCursorRepository creates a new cursor repository
func NewCursorRepository(db *sqlx.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// GetOrCreate returns the cursor row, creating it at initialBlock on first run
func (r *CursorRepository) GetOrCreate(ctx context.Context, initialBlock uint64) (*entities.ScannerCursor, error) {
	insert := `
		INSERT INTO scanner_cursor (id, last_scanned_block, scan_in_progress, consecutive_error_count, updated_at)
		VALUES ($1, $2, FALSE, 0, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, cursorRowID, initialBlock, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to initialize scanner cursor: %w", err)
	}

	query := `
		SELECT id, last_scanned_block, scan_in_progress, last_scan_timestamp,
		       consecutive_error_count, last_error_message, updated_at
		FROM scanner_cursor
		WHERE id = $1
	`
	var cursor entities.ScannerCursor
	if err := r.db.GetContext(ctx, &cursor, query, cursorRowID); err != nil {
		return nil, fmt.Errorf("failed to get scanner cursor: %w", err)
	}

	return &cursor, nil
}

// Get returns the cursor row, or nil when the scanner has never run
func (r *CursorRepository) Get(ctx context.Context) (*entities.ScannerCursor, error) {
	query := `
		SELECT id, last_scanned_block, scan_in_progress, last_scan_timestamp,
		       consecutive_error_count, last_error_message, updated_at
		FROM scanner_cursor
		WHERE id = $1
	`
	var cursor entities.ScannerCursor
	err := r.db.GetContext(ctx, &cursor, query, cursorRowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scanner cursor: %w", err)
	}
	return &cursor, nil
}

// Advance moves the cursor forward after a fully successful batch and resets
// the error counter. The WHERE clause keeps the cursor monotonic even if two
// writers ever raced.
func (r *CursorRepository) Advance(ctx context.Context, toBlock uint64) error {
	query := `
		UPDATE scanner_cursor
		SET last_scanned_block = $2,
		    scan_in_progress = FALSE,
		    last_scan_timestamp = $3,
		    consecutive_error_count = 0,
		    last_error_message = NULL,
		    updated_at = $3
		WHERE id = $1 AND last_scanned_block < $2
	`
	if _, err := r.db.ExecContext(ctx, query, cursorRowID, toBlock, time.Now()); err != nil {
		return fmt.Errorf("failed to advance scanner cursor: %w", err)
	}
	return nil
}

// TouchScanTimestamp records a tick that had nothing to scan
func (r *CursorRepository) TouchScanTimestamp(ctx context.Context) error {
	query := `
		UPDATE scanner_cursor
		SET scan_in_progress = FALSE, last_scan_timestamp = $2, updated_at = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, cursorRowID, time.Now()); err != nil {
		return fmt.Errorf("failed to touch scan timestamp: %w", err)
	}
	return nil
}

// SetScanInProgress flips the persisted in-progress flag
func (r *CursorRepository) SetScanInProgress(ctx context.Context, inProgress bool) error {
	query := `
		UPDATE scanner_cursor
		SET scan_in_progress = $2, updated_at = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, cursorRowID, inProgress, time.Now()); err != nil {
		return fmt.Errorf("failed to set scan in progress: %w", err)
	}
	return nil
}

// RecordError notes a failed batch without advancing the cursor, so the same
// range is retried on the next tick
func (r *CursorRepository) RecordError(ctx context.Context, message string) error {
	query := `
		UPDATE scanner_cursor
		SET scan_in_progress = FALSE,
		    consecutive_error_count = consecutive_error_count + 1,
		    last_error_message = $2,
		    updated_at = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, cursorRowID, message, time.Now()); err != nil {
		return fmt.Errorf("failed to record scan error: %w", err)
	}
	return nil
}
