package tracking

import (
	"time"

	"changewindow-tracker/internal/domain"
)

// ControlPatch is a partial update to an ActivityControl row. Nil fields are
// "not supplied" and do not override the existing value. StatusText carries
// the caller's free-text status (e.g. a spreadsheet sync); it is consumed by
// ApplyUpdate for transition detection and is never persisted itself.
type ControlPatch struct {
	StatusText   *string
	RealStart    *time.Time
	RealEnd      *time.Time
	DelayMinutes *int
	Notes        *string
	IsMilestone  *bool
	Archived     *bool
	IsRollback   *bool
}

// merge returns existing with every supplied patch field applied.
func merge(existing domain.ActivityControl, p ControlPatch) domain.ActivityControl {
	out := existing
	if p.RealStart != nil {
		out.RealStart = p.RealStart
	}
	if p.RealEnd != nil {
		out.RealEnd = p.RealEnd
	}
	if p.DelayMinutes != nil {
		out.DelayMinutes = p.DelayMinutes
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.IsMilestone != nil {
		out.IsMilestone = *p.IsMilestone
	}
	if p.Archived != nil {
		out.Archived = *p.Archived
	}
	if p.IsRollback != nil {
		out.IsRollback = *p.IsRollback
	}
	return out
}

// UpdateResult is what ApplyUpdate hands back to the orchestration layer: the
// augmented patch to persist plus the detected transition, if any.
type UpdateResult struct {
	Patch      ControlPatch
	Previous   Status
	Next       Status
	Transition bool
}

// ApplyUpdate is the update state machine. Given the current control row, the
// planned end of the matching activity and an incoming patch, it decides
// whether the patch implies a status transition and augments the patch with
// the auto-filled fields:
//
//   - RealStart is stamped with now() on a not-started → in-execution
//     transition, but only when the merged state still has no RealStart.
//   - RealEnd is stamped with now() on a transition to Completed, again only
//     when still unset.
//   - DelayMinutes is recomputed from plannedEnd whenever the outgoing patch
//     carries a RealEnd and the caller did not set a delay explicitly.
//
// A free-text StatusText that normalizes to a known label different from the
// previous status overrides the computed status for transition detection;
// unrecognized text is ignored. Transition detection is status-level, not
// field-level.
//
// RealStart and RealEnd are monotonic through this path: once set they are
// never cleared or overwritten, which makes replays of the same patch against
// the already-persisted state no-ops. now must be injected by the caller so
// the machine stays deterministic under test.
func ApplyUpdate(existing domain.ActivityControl, plannedEnd *time.Time, patch ControlPatch, now func() time.Time) UpdateResult {
	callerSetDelay := patch.DelayMinutes != nil

	previous := DeriveStatus(existing)
	merged := merge(existing, patch)
	next := DeriveStatus(merged)

	if patch.StatusText != nil {
		if normalized, ok := NormalizeStatusText(*patch.StatusText); ok && normalized != previous {
			next = normalized
		}
	}

	transition := next != previous
	if transition {
		if previous.IsNotStarted() && next.IsInExecution() && merged.RealStart == nil {
			t := now()
			patch.RealStart = &t
			merged.RealStart = &t
		}
		if next == StatusCompleted && previous != StatusCompleted && merged.RealEnd == nil {
			t := now()
			patch.RealEnd = &t
			merged.RealEnd = &t
		}
	}

	if patch.RealEnd != nil && !callerSetDelay {
		if d := DelayMinutes(plannedEnd, *patch.RealEnd); d != nil {
			patch.DelayMinutes = d
		}
	}

	return UpdateResult{
		Patch:      patch,
		Previous:   previous,
		Next:       next,
		Transition: transition,
	}
}
