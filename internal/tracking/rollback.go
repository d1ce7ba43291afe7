package tracking

import "changewindow-tracker/internal/domain"

// ClosingIndex returns the index of the group's closing activity: the one
// with the highest Seq. Ties (which the seq-uniqueness invariant should make
// impossible) are broken deterministically by keeping the first occurrence in
// slice order. ok is false for an empty group.
func ClosingIndex(group []domain.PlannedActivity) (int, bool) {
	if len(group) == 0 {
		return 0, false
	}
	closing := 0
	for i := 1; i < len(group); i++ {
		if group[i].Seq > group[closing].Seq {
			closing = i
		}
	}
	return closing, true
}

// VisibleActivities selects the subset of a group's activities that every
// consumer is allowed to see given the group's rollback flag. The closing
// activity is always visible; every other activity is visible exactly when
// its rollback-path flag matches rollbackActive (main path while rollback is
// inactive, rollback path while it is active).
//
// The same partition must be applied at every place a group's activities are
// listed: handlers, statistics and report building all go through here.
func VisibleActivities(group []domain.PlannedActivity, rollbackActive bool) []domain.PlannedActivity {
	visible := make([]domain.PlannedActivity, 0, len(group))
	closing, ok := ClosingIndex(group)
	if !ok {
		return visible
	}
	for i, a := range group {
		if i == closing || a.IsRollback == rollbackActive {
			visible = append(visible, a)
		}
	}
	return visible
}
