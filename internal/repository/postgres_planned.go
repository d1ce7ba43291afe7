package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"changewindow-tracker/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresPlannedRepository is the PlannedRepository implementation backed by
// the planned_activities table.
type PostgresPlannedRepository struct {
	db *sql.DB
}

func NewPostgresPlannedRepository(db *sql.DB) *PostgresPlannedRepository {
	return &PostgresPlannedRepository{db: db}
}

var _ PlannedRepository = (*PostgresPlannedRepository)(nil)

const plannedColumns = `
	id::text,
	seq,
	group_id,
	title,
	team,
	planned_start,
	planned_end,
	planned_minutes,
	is_rollback,
	source_file,
	imported_at,
	last_synced_at
`

func scanPlanned(row rowScanner) (*domain.PlannedActivity, error) {
	var a domain.PlannedActivity
	var team sql.NullString
	var plannedStart, plannedEnd, lastSynced sql.NullTime

	if err := row.Scan(
		&a.ID,
		&a.Seq,
		&a.GroupID,
		&a.Title,
		&team,
		&plannedStart,
		&plannedEnd,
		&a.PlannedMinutes,
		&a.IsRollback,
		&a.SourceFile,
		&a.ImportedAt,
		&lastSynced,
	); err != nil {
		return nil, err
	}

	if team.Valid {
		a.Team = team.String
	}
	if plannedStart.Valid {
		t := plannedStart.Time
		a.PlannedStart = &t
	}
	if plannedEnd.Valid {
		t := plannedEnd.Time
		a.PlannedEnd = &t
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		a.LastSyncedAt = &t
	}
	return &a, nil
}

func (r *PostgresPlannedRepository) ListAll(ctx context.Context) ([]domain.PlannedActivity, error) {
	query := `
		SELECT ` + plannedColumns + `
		FROM planned_activities
		ORDER BY group_id, seq
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list planned activities: %w", err)
	}
	defer rows.Close()

	var activities []domain.PlannedActivity
	for rows.Next() {
		a, err := scanPlanned(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan planned activity: %w", err)
		}
		activities = append(activities, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate planned activities: %w", err)
	}
	return activities, nil
}

func (r *PostgresPlannedRepository) GetBySeq(ctx context.Context, groupID string, seq int) (*domain.PlannedActivity, error) {
	query := `
		SELECT ` + plannedColumns + `
		FROM planned_activities
		WHERE group_id = $1 AND seq = $2
	`

	a, err := scanPlanned(r.db.QueryRowContext(ctx, query, groupID, seq))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get planned activity: %w", err)
	}
	return a, nil
}

func (r *PostgresPlannedRepository) Create(ctx context.Context, a *domain.PlannedActivity) (string, error) {
	if a.GroupID == "" || a.Title == "" {
		return "", fmt.Errorf("group_id and title are required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	query := `
		INSERT INTO planned_activities (
			id, seq, group_id, title, team,
			planned_start, planned_end, planned_minutes,
			is_rollback, source_file, last_synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id::text
	`

	var team any
	if a.Team != "" {
		team = a.Team
	}

	var id string
	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.Seq, a.GroupID, a.Title, team,
		a.PlannedStart, a.PlannedEnd, a.PlannedMinutes,
		a.IsRollback, a.SourceFile, a.LastSyncedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create planned activity: %w", err)
	}
	return id, nil
}

func (r *PostgresPlannedRepository) Update(ctx context.Context, id string, patch PlannedPatch) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}

	set := []string{}
	args := []any{id}
	argN := 2

	add := func(column string, value any) {
		set = append(set, fmt.Sprintf("%s = $%d", column, argN))
		args = append(args, value)
		argN++
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Team != nil {
		add("team", *patch.Team)
	}
	if patch.PlannedStart != nil {
		add("planned_start", *patch.PlannedStart)
	}
	if patch.PlannedEnd != nil {
		add("planned_end", *patch.PlannedEnd)
	}
	if patch.PlannedMinutes != nil {
		add("planned_minutes", *patch.PlannedMinutes)
	}
	if patch.IsRollback != nil {
		add("is_rollback", *patch.IsRollback)
	}
	if patch.LastSyncedAt != nil {
		add("last_synced_at", *patch.LastSyncedAt)
	}

	if len(set) == 0 {
		return nil
	}

	query := `UPDATE planned_activities SET ` + strings.Join(set, ", ") + ` WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update planned activity: %w", err)
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

func (r *PostgresPlannedRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM planned_activities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete planned activity: %w", err)
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

func (r *PostgresPlannedRepository) ReplaceAll(ctx context.Context, activities []domain.PlannedActivity) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM planned_activities`); err != nil {
		return 0, fmt.Errorf("failed to clear planned activities: %w", err)
	}

	query := `
		INSERT INTO planned_activities (
			id, seq, group_id, title, team,
			planned_start, planned_end, planned_minutes,
			is_rollback, source_file
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	written := 0
	for i := range activities {
		a := &activities[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		var team any
		if a.Team != "" {
			team = a.Team
		}
		if _, err := tx.ExecContext(ctx, query,
			a.ID, a.Seq, a.GroupID, a.Title, team,
			a.PlannedStart, a.PlannedEnd, a.PlannedMinutes,
			a.IsRollback, a.SourceFile,
		); err != nil {
			return 0, fmt.Errorf("failed to insert planned activity seq %d group %s: %w", a.Seq, a.GroupID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit plan replacement: %w", err)
	}
	return written, nil
}

func (r *PostgresPlannedRepository) ListUnsynced(ctx context.Context, cutoff time.Time, groups []string) ([]domain.PlannedActivity, error) {
	if len(groups) == 0 {
		return []domain.PlannedActivity{}, nil
	}

	query := `
		SELECT ` + plannedColumns + `
		FROM planned_activities
		WHERE group_id = ANY($1)
		  AND (last_synced_at IS NULL OR last_synced_at < $2)
		ORDER BY group_id, seq
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(groups), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced activities: %w", err)
	}
	defer rows.Close()

	var activities []domain.PlannedActivity
	for rows.Next() {
		a, err := scanPlanned(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan planned activity: %w", err)
		}
		activities = append(activities, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unsynced activities: %w", err)
	}
	return activities, nil
}
