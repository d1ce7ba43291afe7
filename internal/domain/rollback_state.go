package domain

import "time"

// RollbackState says whether a group is currently executing its rollback path.
// Missing rows default to inactive; the flag is only ever toggled by an
// explicit operator action, never derived.
type RollbackState struct {
	GroupID        string    `json:"group_id"`
	RollbackActive bool      `json:"rollback_active"`
	UpdatedAt      time.Time `json:"updated_at"`
}
