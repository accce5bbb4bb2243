package entities

import (
	"time"
)

// ScannerCursor is the single persisted row of scanner state. Owned
// exclusively by the scan loop; survives process restarts.
type ScannerCursor struct {
	ID                    int        `json:"id" db:"id"` // always 1
	LastScannedBlock      uint64     `json:"last_scanned_block" db:"last_scanned_block"`
	ScanInProgress        bool       `json:"scan_in_progress" db:"scan_in_progress"`
	LastScanTimestamp     *time.Time `json:"last_scan_timestamp,omitempty" db:"last_scan_timestamp"`
	ConsecutiveErrorCount int        `json:"consecutive_error_count" db:"consecutive_error_count"`
	LastErrorMessage      *string    `json:"last_error_message,omitempty" db:"last_error_message"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}
