// Package repository wraps all PostgreSQL access behind narrow interfaces so
// the service layer can be tested without a database.
package repository

import (
	"context"
	"errors"
	"time"

	"changewindow-tracker/internal/domain"
	"changewindow-tracker/internal/tracking"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// PlannedPatch is a partial update to a planned activity. Nil fields are left
// untouched.
type PlannedPatch struct {
	Title          *string
	Team           *string
	PlannedStart   *time.Time
	PlannedEnd     *time.Time
	PlannedMinutes *int
	IsRollback     *bool
	LastSyncedAt   *time.Time
}

// PlannedRepository persists the imported change-window plan.
type PlannedRepository interface {
	ListAll(ctx context.Context) ([]domain.PlannedActivity, error)
	GetBySeq(ctx context.Context, groupID string, seq int) (*domain.PlannedActivity, error)
	Create(ctx context.Context, a *domain.PlannedActivity) (string, error)
	Update(ctx context.Context, id string, patch PlannedPatch) error
	Delete(ctx context.Context, id string) error
	// ReplaceAll swaps the whole plan for the imported one and returns the
	// number of rows written.
	ReplaceAll(ctx context.Context, rows []domain.PlannedActivity) (int, error)
	// ListUnsynced returns the rows of the given groups whose last_synced_at
	// predates cutoff (or was never set). Used by the sync client to prune
	// activities that disappeared from the workbook.
	ListUnsynced(ctx context.Context, cutoff time.Time, groups []string) ([]domain.PlannedActivity, error)
}

// ControlRepository persists activity execution records.
type ControlRepository interface {
	Get(ctx context.Context, groupID string, seq int) (*domain.ActivityControl, error)
	ListAll(ctx context.Context) ([]domain.ActivityControl, error)
	Upsert(ctx context.Context, c *domain.ActivityControl) error
	// Seed inserts a row only when the key is absent. A concurrent update may
	// have inserted and already mutated the row between the caller's missed
	// Get and this call, so unlike Upsert a lost insert must leave the
	// existing row untouched.
	Seed(ctx context.Context, c *domain.ActivityControl) error
	// Relink backfills activity_id on rows that lost their planned reference,
	// which happens when a plan re-import replaces the planned rows out from
	// under surviving control records.
	Relink(ctx context.Context, groupID string, seq int, activityID string) error
	// UpdateWithLock runs apply against the current row inside a transaction
	// that holds a row lock (SELECT ... FOR UPDATE), then persists the patch
	// apply returns. This is the serialized read-modify-write contract the
	// update state machine depends on: concurrent updates to the same
	// (group, seq) key queue on the row lock, updates to different keys run
	// in parallel.
	UpdateWithLock(ctx context.Context, groupID string, seq int, apply func(existing domain.ActivityControl) (tracking.ControlPatch, error)) (*domain.ActivityControl, error)
	Delete(ctx context.Context, groupID string, seq int) error
}

// RollbackRepository persists per-group rollback flags.
type RollbackRepository interface {
	// Get returns the group's state, defaulting to inactive when no row
	// exists.
	Get(ctx context.Context, groupID string) (domain.RollbackState, error)
	GetAll(ctx context.Context) (map[string]domain.RollbackState, error)
	Set(ctx context.Context, groupID string, active bool) error
}
