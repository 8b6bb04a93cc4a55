// Package timeguard detects system clock manipulation aimed at extending
// time-limited licenses. It persists a small encrypted state file between
// runs and cross-checks the wall clock against several independent signals:
// the previous check time, a monotonic high-water mark, the OS monotonic
// clock, accumulated runtime, and the modification times of system files
// that normally only move forward.
//
// Detection is best effort. When the state file cannot be read or written
// the guard keeps working with what it has and reports the problem as a
// degraded signal rather than blocking the host application.
package timeguard

// TimeState is the persisted clock history. All timestamps are Unix epoch
// seconds; durations are seconds. The state round-trips through JSON inside
// the encrypted container, so field names are part of the on-disk format.
type TimeState struct {
	// CreatedTime is when the state was first written; never updated.
	CreatedTime float64 `json:"created_time"`

	// LastCheckTime is the wall clock at the most recent check.
	LastCheckTime float64 `json:"last_check_time"`

	// LastMonotonic is the monotonic reading at the most recent check.
	// Monotonic readings are only comparable within one process lifetime,
	// so this field is informational across restarts.
	LastMonotonic float64 `json:"last_monotonic"`

	// TotalRuntime accumulates observed process runtime across all checks.
	TotalRuntime float64 `json:"total_runtime"`

	// MaxTimeWatermark is the highest wall-clock value ever observed.
	// It never decreases.
	MaxTimeWatermark float64 `json:"max_time_watermark"`

	// CheckCount counts checks performed since CreatedTime.
	CheckCount int64 `json:"check_count"`

	// ReferenceFiles is the snapshot of reference file timestamps taken
	// at the last check.
	ReferenceFiles []ReferenceFile `json:"reference_files"`
}

// ReferenceFile records one reference file's timestamps at snapshot time,
// in epoch seconds. Only the modification time participates in checks; the
// change time is recorded as corroborating evidence for manual inspection.
type ReferenceFile struct {
	Path  string  `json:"path"`
	MTime float64 `json:"mtime"`
	CTime float64 `json:"ctime"`
}
