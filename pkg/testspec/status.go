package testspec

import "time"

// Result is the outcome recorded for a finished (or not-yet-finished)
// test run.
type Result string

const (
	ResultPass    Result = "pass"
	ResultFail    Result = "fail"
	ResultDiff    Result = "diff"
	ResultTimeout Result = "timeout"
	ResultNotrun  Result = "notrun"
	ResultNotdone Result = "notdone"
	ResultSkip    Result = "skip"
)

// Status is the mutable execution record attached to a TestSpec.
type Status struct {
	StartTime time.Time
	EndTime   time.Time
	Runtime   float64 // seconds

	Result  Result
	ExitRaw string // exit code, stored as a string to allow non-numeric codes

	SkipReason      string
	SkipByParameter bool
}

// Skip marks the test inactive with the given reason. "skip by
// parameter" is tracked separately from other reasons because analyze
// tests are exempt from the runtime-config parameter check (spec.md
// §4.3) but not from other skip reasons.
func (s *Status) Skip(reason string, byParameter bool) {
	s.SkipReason = reason
	s.SkipByParameter = byParameter
	s.Result = ResultSkip
}

// IsSkipped reports whether this test has any skip reason recorded.
func (s *Status) IsSkipped() bool {
	return s.SkipReason != ""
}

// MarkStarted records the start time and clears any prior terminal result.
func (s *Status) MarkStarted(start time.Time) {
	s.StartTime = start
	s.EndTime = time.Time{}
	s.Runtime = 0
	s.Result = ResultNotdone
}

// MarkDone records the end time, runtime and result of a finished run.
func (s *Status) MarkDone(end time.Time, result Result, exitRaw string) {
	s.EndTime = end
	if !s.StartTime.IsZero() {
		s.Runtime = end.Sub(s.StartTime).Seconds()
	}
	s.Result = result
	s.ExitRaw = exitRaw
}

// IsDone reports whether the test has reached a terminal state: it ran
// to completion (however it turned out) or was skipped before running.
func (s *Status) IsDone() bool {
	switch s.Result {
	case ResultPass, ResultFail, ResultDiff, ResultTimeout, ResultNotrun, ResultSkip:
		return true
	default:
		return false
	}
}

// IsNotDone reports the complementary state to IsDone: currently running
// or not yet started.
func (s *Status) IsNotDone() bool {
	return !s.IsDone()
}

// GetRuntime returns the recorded runtime, or the given default if the
// test has not yet produced one.
func (s *Status) GetRuntime(def float64) float64 {
	if s.Runtime > 0 {
		return s.Runtime
	}
	return def
}
