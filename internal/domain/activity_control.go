package domain

import "time"

// ActivityControl is the mutable execution record of one planned activity.
// There is at most one control row per (seq, group_id, activity_id); rows are
// upserted, never duplicated. Status is always derived from these fields and
// never persisted as source of truth.
//
// RealStart, RealEnd and DelayMinutes are mutated exclusively by the update
// pipeline (service.TrackerService.UpdateActivity).
type ActivityControl struct {
	ID           string     `json:"id"`
	Seq          int        `json:"seq"`
	GroupID      string     `json:"group_id"`
	ActivityID   string     `json:"activity_id"`
	RealStart    *time.Time `json:"real_start"`
	RealEnd      *time.Time `json:"real_end"`
	DelayMinutes *int       `json:"delay_minutes"`
	Notes        string     `json:"notes"`
	IsMilestone  bool       `json:"is_milestone"`
	Archived     bool       `json:"archived"`
	IsRollback   bool       `json:"is_rollback"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
