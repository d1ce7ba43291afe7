package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"changewindow-tracker/internal/domain"
	"changewindow-tracker/internal/tracking"

	"github.com/google/uuid"
)

// PostgresControlRepository is the ControlRepository implementation backed by
// the activity_control table.
type PostgresControlRepository struct {
	db *sql.DB
}

func NewPostgresControlRepository(db *sql.DB) *PostgresControlRepository {
	return &PostgresControlRepository{db: db}
}

var _ ControlRepository = (*PostgresControlRepository)(nil)

const controlColumns = `
	id::text,
	seq,
	group_id,
	activity_id::text,
	real_start,
	real_end,
	delay_minutes,
	notes,
	is_milestone,
	archived,
	is_rollback,
	created_at,
	updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanControl(row rowScanner) (*domain.ActivityControl, error) {
	var c domain.ActivityControl
	var activityID sql.NullString
	var realStart, realEnd sql.NullTime
	var delay sql.NullInt64

	if err := row.Scan(
		&c.ID,
		&c.Seq,
		&c.GroupID,
		&activityID,
		&realStart,
		&realEnd,
		&delay,
		&c.Notes,
		&c.IsMilestone,
		&c.Archived,
		&c.IsRollback,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if activityID.Valid {
		c.ActivityID = activityID.String
	}
	if realStart.Valid {
		t := realStart.Time
		c.RealStart = &t
	}
	if realEnd.Valid {
		t := realEnd.Time
		c.RealEnd = &t
	}
	if delay.Valid {
		d := int(delay.Int64)
		c.DelayMinutes = &d
	}
	return &c, nil
}

func (r *PostgresControlRepository) Get(ctx context.Context, groupID string, seq int) (*domain.ActivityControl, error) {
	query := `
		SELECT ` + controlColumns + `
		FROM activity_control
		WHERE group_id = $1 AND seq = $2
		ORDER BY activity_id DESC NULLS LAST
		LIMIT 1
	`

	c, err := scanControl(r.db.QueryRowContext(ctx, query, groupID, seq))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get activity control: %w", err)
	}
	return c, nil
}

func (r *PostgresControlRepository) ListAll(ctx context.Context) ([]domain.ActivityControl, error) {
	query := `
		SELECT ` + controlColumns + `
		FROM activity_control
		ORDER BY group_id, seq
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity controls: %w", err)
	}
	defer rows.Close()

	var controls []domain.ActivityControl
	for rows.Next() {
		c, err := scanControl(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity control: %w", err)
		}
		controls = append(controls, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity controls: %w", err)
	}
	return controls, nil
}

func (r *PostgresControlRepository) Upsert(ctx context.Context, c *domain.ActivityControl) error {
	if c.GroupID == "" {
		return fmt.Errorf("group_id is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	var activityID any
	if c.ActivityID != "" {
		activityID = c.ActivityID
	}

	query := `
		INSERT INTO activity_control (
			id, seq, group_id, activity_id,
			real_start, real_end, delay_minutes, notes,
			is_milestone, archived, is_rollback
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (seq, group_id, activity_id) DO UPDATE SET
			real_start    = EXCLUDED.real_start,
			real_end      = EXCLUDED.real_end,
			delay_minutes = EXCLUDED.delay_minutes,
			notes         = EXCLUDED.notes,
			is_milestone  = EXCLUDED.is_milestone,
			archived      = EXCLUDED.archived,
			is_rollback   = EXCLUDED.is_rollback,
			updated_at    = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Seq, c.GroupID, activityID,
		c.RealStart, c.RealEnd, c.DelayMinutes, c.Notes,
		c.IsMilestone, c.Archived, c.IsRollback,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert activity control: %w", err)
	}
	return nil
}

func (r *PostgresControlRepository) Seed(ctx context.Context, c *domain.ActivityControl) error {
	if c.GroupID == "" {
		return fmt.Errorf("group_id is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	var activityID any
	if c.ActivityID != "" {
		activityID = c.ActivityID
	}

	// DO NOTHING, not DO UPDATE: a concurrent first update may have won the
	// insert and stamped real timestamps already, and those must survive.
	query := `
		INSERT INTO activity_control (
			id, seq, group_id, activity_id,
			real_start, real_end, delay_minutes, notes,
			is_milestone, archived, is_rollback
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (seq, group_id, activity_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Seq, c.GroupID, activityID,
		c.RealStart, c.RealEnd, c.DelayMinutes, c.Notes,
		c.IsMilestone, c.Archived, c.IsRollback,
	)
	if err != nil {
		return fmt.Errorf("failed to seed activity control: %w", err)
	}
	return nil
}

func (r *PostgresControlRepository) Relink(ctx context.Context, groupID string, seq int, activityID string) error {
	query := `
		UPDATE activity_control
		SET activity_id = $3, updated_at = NOW()
		WHERE group_id = $1 AND seq = $2 AND activity_id IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, groupID, seq, activityID); err != nil {
		return fmt.Errorf("failed to relink activity control: %w", err)
	}
	return nil
}

func (r *PostgresControlRepository) UpdateWithLock(ctx context.Context, groupID string, seq int, apply func(existing domain.ActivityControl) (tracking.ControlPatch, error)) (*domain.ActivityControl, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT ` + controlColumns + `
		FROM activity_control
		WHERE group_id = $1 AND seq = $2
		ORDER BY activity_id DESC NULLS LAST
		LIMIT 1
		FOR UPDATE
	`

	existing, err := scanControl(tx.QueryRowContext(ctx, query, groupID, seq))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock activity control: %w", err)
	}

	patch, err := apply(*existing)
	if err != nil {
		return nil, err
	}

	set := []string{"updated_at = NOW()"}
	args := []any{existing.ID}
	argN := 2

	add := func(column string, value any) {
		set = append(set, fmt.Sprintf("%s = $%d", column, argN))
		args = append(args, value)
		argN++
	}

	updated := *existing
	if patch.RealStart != nil {
		add("real_start", *patch.RealStart)
		updated.RealStart = patch.RealStart
	}
	if patch.RealEnd != nil {
		add("real_end", *patch.RealEnd)
		updated.RealEnd = patch.RealEnd
	}
	if patch.DelayMinutes != nil {
		add("delay_minutes", *patch.DelayMinutes)
		updated.DelayMinutes = patch.DelayMinutes
	}
	if patch.Notes != nil {
		add("notes", *patch.Notes)
		updated.Notes = *patch.Notes
	}
	if patch.IsMilestone != nil {
		add("is_milestone", *patch.IsMilestone)
		updated.IsMilestone = *patch.IsMilestone
	}
	if patch.Archived != nil {
		add("archived", *patch.Archived)
		updated.Archived = *patch.Archived
	}
	if patch.IsRollback != nil {
		add("is_rollback", *patch.IsRollback)
		updated.IsRollback = *patch.IsRollback
	}

	updateQuery := `UPDATE activity_control SET ` + strings.Join(set, ", ") + ` WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to update activity control: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit activity control update: %w", err)
	}
	return &updated, nil
}

func (r *PostgresControlRepository) Delete(ctx context.Context, groupID string, seq int) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM activity_control WHERE group_id = $1 AND seq = $2`,
		groupID, seq,
	)
	if err != nil {
		return fmt.Errorf("failed to delete activity control: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
