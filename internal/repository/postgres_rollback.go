package repository

import (
	"context"
	"database/sql"
	"fmt"

	"changewindow-tracker/internal/domain"
)

// PostgresRollbackRepository is the RollbackRepository implementation backed
// by the group_rollback_states table.
type PostgresRollbackRepository struct {
	db *sql.DB
}

func NewPostgresRollbackRepository(db *sql.DB) *PostgresRollbackRepository {
	return &PostgresRollbackRepository{db: db}
}

var _ RollbackRepository = (*PostgresRollbackRepository)(nil)

func (r *PostgresRollbackRepository) Get(ctx context.Context, groupID string) (domain.RollbackState, error) {
	query := `
		SELECT group_id, rollback_active, updated_at
		FROM group_rollback_states
		WHERE group_id = $1`

	var s domain.RollbackState
	err := r.db.QueryRowContext(ctx, query, groupID).Scan(&s.GroupID, &s.RollbackActive, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		// A group with no stored flag is in the default plan-visible mode.
		return domain.RollbackState{GroupID: groupID, RollbackActive: false}, nil
	}
	if err != nil {
		return domain.RollbackState{}, fmt.Errorf("get rollback state: %w", err)
	}
	return s, nil
}

func (r *PostgresRollbackRepository) GetAll(ctx context.Context) (map[string]domain.RollbackState, error) {
	query := `
		SELECT group_id, rollback_active, updated_at
		FROM group_rollback_states`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rollback states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]domain.RollbackState)
	for rows.Next() {
		var s domain.RollbackState
		if err := rows.Scan(&s.GroupID, &s.RollbackActive, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rollback state: %w", err)
		}
		states[s.GroupID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollback states: %w", err)
	}
	return states, nil
}

func (r *PostgresRollbackRepository) Set(ctx context.Context, groupID string, active bool) error {
	query := `
		INSERT INTO group_rollback_states (group_id, rollback_active, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (group_id) DO UPDATE SET
			rollback_active = EXCLUDED.rollback_active,
			updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, groupID, active); err != nil {
		return fmt.Errorf("set rollback state: %w", err)
	}
	return nil
}
