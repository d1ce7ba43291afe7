package domain

import "time"

// PlannedActivity is one row of the imported change-window plan.
// Rows are owned by the import pipeline and read-only everywhere else.
type PlannedActivity struct {
	ID             string     `json:"id"`
	Seq            int        `json:"seq"`
	GroupID        string     `json:"group_id"`
	Title          string     `json:"title"`
	Team           string     `json:"team"`
	PlannedStart   *time.Time `json:"planned_start"`
	PlannedEnd     *time.Time `json:"planned_end"`
	PlannedMinutes int        `json:"planned_minutes"`
	IsRollback     bool       `json:"is_rollback"`
	SourceFile     string     `json:"source_file"`
	ImportedAt     time.Time  `json:"imported_at"`
	LastSyncedAt   *time.Time `json:"last_synced_at"`
}
