package timeguard

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

const (
	// DefaultTolerance absorbs NTP corrections, DST bookkeeping and other
	// legitimate clock adjustments before a change counts as tampering.
	DefaultTolerance = 5 * time.Minute

	// sessionDriftMinimum is how long a session must have run before the
	// monotonic-vs-wall drift check engages; very short sessions do not
	// accumulate enough signal to judge.
	sessionDriftMinimum = 60.0

	// runtimeSlack is the allowance, in seconds, by which accumulated
	// runtime may exceed elapsed wall-clock time before it counts as
	// evidence of a rolled-back clock.
	runtimeSlack = 3600.0
)

// Result is the outcome of one tamper check.
type Result struct {
	// Valid is true when no check produced evidence of manipulation.
	Valid bool

	// Diagnostics describes each failed check in operator-readable form.
	// Empty when Valid.
	Diagnostics []string

	// Degraded lists non-fatal problems encountered during the check,
	// such as unreadable or unwritable state. Detection quality is
	// reduced but the result is still usable.
	Degraded []string
}

// Options configures a Detector. Zero values select production defaults.
type Options struct {
	Clock          Clock
	Tolerance      time.Duration
	ReferencePaths []string
	Logger         *slog.Logger
}

// Detector runs the clock-tamper checks against persisted state. A single
// Detector is meant to live for the whole process: it anchors a session
// baseline (wall clock plus monotonic reading) at construction and rebases
// it after every check, so each check covers the window since the previous
// one.
type Detector struct {
	mu        sync.Mutex
	store     *Store
	clock     Clock
	tolerance float64
	refPaths  []string
	logger    *slog.Logger

	sessionStartWall float64
	sessionStartMono time.Duration
}

// NewDetector creates a Detector over the given store.
func NewDetector(store *Store, opts Options) *Detector {
	clock := opts.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	refPaths := opts.ReferencePaths
	if refPaths == nil {
		refPaths = DefaultReferencePaths()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{
		store:            store,
		clock:            clock,
		tolerance:        tolerance.Seconds(),
		refPaths:         refPaths,
		logger:           logger.With(slog.String("component", "timeguard")),
		sessionStartWall: epochSeconds(clock.Now()),
		sessionStartMono: clock.Monotonic(),
	}
}

// Check runs all tamper checks, persists the updated state, and rebases
// the session baseline. On the first run it records a baseline and reports
// valid; there is nothing yet to compare against.
//
// The checks are independent and every failure is reported, so an operator
// sees the full picture rather than the first trip wire.
func (d *Detector) Check() Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := epochSeconds(d.clock.Now())
	mono := d.clock.Monotonic()

	var degraded []string
	state, err := d.store.Load()
	if err != nil {
		degraded = append(degraded, fmt.Sprintf("time state unreadable, history reset: %v", err))
		d.logger.Debug("time state unreadable", slog.String("error", err.Error()))
	}

	if state == nil {
		state = &TimeState{
			CreatedTime:      now,
			LastCheckTime:    now,
			LastMonotonic:    mono.Seconds(),
			MaxTimeWatermark: now,
			CheckCount:       1,
			ReferenceFiles:   snapshotReferences(d.refPaths),
		}
		if err := d.store.Save(state); err != nil {
			degraded = append(degraded, fmt.Sprintf("time state not persisted: %v", err))
			d.logger.Warn("time state not persisted", slog.String("error", err.Error()))
		}
		return Result{Valid: true, Degraded: degraded}
	}

	var diags []string

	if now < state.LastCheckTime-d.tolerance {
		diags = append(diags, fmt.Sprintf(
			"system clock moved back %.0f seconds since the last check", state.LastCheckTime-now))
	}

	if now < state.MaxTimeWatermark-d.tolerance {
		diags = append(diags, fmt.Sprintf(
			"system clock is %.0f seconds behind the recorded high-water mark", state.MaxTimeWatermark-now))
	}

	sessionElapsed := (mono - d.sessionStartMono).Seconds()
	if sessionElapsed > sessionDriftMinimum {
		expected := d.sessionStartWall + sessionElapsed
		if drift := math.Abs(now - expected); drift > d.tolerance {
			diags = append(diags, fmt.Sprintf(
				"wall clock drifted %.0f seconds against the monotonic clock this session", drift))
		}
	}

	totalRuntime := state.TotalRuntime + math.Max(0, sessionElapsed)
	wallElapsed := now - state.CreatedTime
	if totalRuntime > wallElapsed+runtimeSlack {
		diags = append(diags, fmt.Sprintf(
			"accumulated runtime %.0fs exceeds wall-clock time %.0fs since first run", totalRuntime, wallElapsed))
	}

	currentRefs := snapshotReferences(d.refPaths)
	freshMTimes := make(map[string]float64, len(currentRefs))
	for _, ref := range currentRefs {
		freshMTimes[ref.Path] = ref.MTime
	}
	for _, old := range state.ReferenceFiles {
		newMTime, ok := freshMTimes[old.Path]
		if ok && newMTime < old.MTime-d.tolerance {
			diags = append(diags, fmt.Sprintf(
				"modification time of %s moved backward", old.Path))
			break
		}
	}

	state.LastCheckTime = now
	state.LastMonotonic = mono.Seconds()
	state.TotalRuntime = totalRuntime
	if now > state.MaxTimeWatermark {
		state.MaxTimeWatermark = now
	}
	state.CheckCount++
	if len(currentRefs) > 0 {
		state.ReferenceFiles = currentRefs
	}

	// Saved even when checks fail: the watermark must survive a detected
	// rollback so later checks still see the pre-rollback high point.
	if err := d.store.Save(state); err != nil {
		degraded = append(degraded, fmt.Sprintf("time state not persisted: %v", err))
		d.logger.Warn("time state not persisted", slog.String("error", err.Error()))
	}

	d.sessionStartWall = now
	d.sessionStartMono = mono

	if len(diags) > 0 {
		d.logger.Warn("clock tampering suspected",
			slog.Int("signals", len(diags)),
			slog.Int64("check_count", state.CheckCount))
	}

	return Result{Valid: len(diags) == 0, Diagnostics: diags, Degraded: degraded}
}

// Reset discards the persisted history. The next check starts a fresh
// baseline.
func (d *Detector) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.Reset()
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
