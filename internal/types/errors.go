package types

import "errors"

var (
	// ErrConflictCheck is never fatal: the job proceeds as if no record existed.
	ErrConflictCheck = errors.New("conflict check failed")

	ErrFetch     = errors.New("fetch failed")
	ErrTranscode = errors.New("transcode failed")
	ErrAnalysis  = errors.New("analysis failed")
	ErrPersist   = errors.New("persist failed")

	// ErrStaleDecision is returned for a decision with no matching suspended job.
	ErrStaleDecision = errors.New("stale decision")
)
