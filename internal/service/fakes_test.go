package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"changewindow-tracker/internal/domain"
	"changewindow-tracker/internal/events"
	"changewindow-tracker/internal/repository"
	"changewindow-tracker/internal/tracking"
)

// In-memory repository fakes so the service tests exercise the real update
// pipeline without a database.

func key(groupID string, seq int) string {
	return fmt.Sprintf("%s:%d", groupID, seq)
}

type fakePlannedRepo struct {
	mu   sync.Mutex
	rows map[string]domain.PlannedActivity // keyed by id
}

func newFakePlannedRepo() *fakePlannedRepo {
	return &fakePlannedRepo{rows: make(map[string]domain.PlannedActivity)}
}

var _ repository.PlannedRepository = (*fakePlannedRepo)(nil)

func (f *fakePlannedRepo) ListAll(ctx context.Context) ([]domain.PlannedActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PlannedActivity, 0, len(f.rows))
	for _, a := range f.rows {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakePlannedRepo) GetBySeq(ctx context.Context, groupID string, seq int) (*domain.PlannedActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.rows {
		if a.GroupID == groupID && a.Seq == seq {
			row := a
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakePlannedRepo) Create(ctx context.Context, a *domain.PlannedActivity) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	f.rows[a.ID] = *a
	return a.ID, nil
}

func (f *fakePlannedRepo) Update(ctx context.Context, id string, patch repository.PlannedPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.Title != nil {
		a.Title = *patch.Title
	}
	if patch.Team != nil {
		a.Team = *patch.Team
	}
	if patch.PlannedStart != nil {
		a.PlannedStart = patch.PlannedStart
	}
	if patch.PlannedEnd != nil {
		a.PlannedEnd = patch.PlannedEnd
	}
	if patch.PlannedMinutes != nil {
		a.PlannedMinutes = *patch.PlannedMinutes
	}
	if patch.IsRollback != nil {
		a.IsRollback = *patch.IsRollback
	}
	if patch.LastSyncedAt != nil {
		a.LastSyncedAt = patch.LastSyncedAt
	}
	f.rows[id] = a
	return nil
}

func (f *fakePlannedRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakePlannedRepo) ReplaceAll(ctx context.Context, rows []domain.PlannedActivity) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = make(map[string]domain.PlannedActivity, len(rows))
	for _, a := range rows {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		f.rows[a.ID] = a
	}
	return len(rows), nil
}

func (f *fakePlannedRepo) ListUnsynced(ctx context.Context, cutoff time.Time, groups []string) ([]domain.PlannedActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inGroups := func(g string) bool {
		for _, candidate := range groups {
			if candidate == g {
				return true
			}
		}
		return false
	}
	var out []domain.PlannedActivity
	for _, a := range f.rows {
		if !inGroups(a.GroupID) {
			continue
		}
		if a.LastSyncedAt == nil || a.LastSyncedAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeControlRepo struct {
	mu   sync.Mutex
	rows map[string]domain.ActivityControl
	// getMisses makes the next N Get calls report ErrNotFound regardless of
	// stored rows, mimicking a reader that raced a concurrent insert.
	getMisses int
}

func newFakeControlRepo() *fakeControlRepo {
	return &fakeControlRepo{rows: make(map[string]domain.ActivityControl)}
}

var _ repository.ControlRepository = (*fakeControlRepo)(nil)

func (f *fakeControlRepo) Get(ctx context.Context, groupID string, seq int) (*domain.ActivityControl, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getMisses > 0 {
		f.getMisses--
		return nil, repository.ErrNotFound
	}
	c, ok := f.rows[key(groupID, seq)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	row := c
	return &row, nil
}

func (f *fakeControlRepo) ListAll(ctx context.Context) ([]domain.ActivityControl, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ActivityControl, 0, len(f.rows))
	for _, c := range f.rows {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeControlRepo) Upsert(ctx context.Context, c *domain.ActivityControl) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	f.rows[key(c.GroupID, c.Seq)] = *c
	return nil
}

func (f *fakeControlRepo) Seed(ctx context.Context, c *domain.ActivityControl) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[key(c.GroupID, c.Seq)]; ok {
		return nil
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	f.rows[key(c.GroupID, c.Seq)] = *c
	return nil
}

func (f *fakeControlRepo) Relink(ctx context.Context, groupID string, seq int, activityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[key(groupID, seq)]
	if !ok || c.ActivityID != "" {
		return nil
	}
	c.ActivityID = activityID
	f.rows[key(groupID, seq)] = c
	return nil
}

func (f *fakeControlRepo) UpdateWithLock(ctx context.Context, groupID string, seq int, apply func(existing domain.ActivityControl) (tracking.ControlPatch, error)) (*domain.ActivityControl, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.rows[key(groupID, seq)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	patch, err := apply(existing)
	if err != nil {
		return nil, err
	}
	if patch.RealStart != nil {
		existing.RealStart = patch.RealStart
	}
	if patch.RealEnd != nil {
		existing.RealEnd = patch.RealEnd
	}
	if patch.DelayMinutes != nil {
		existing.DelayMinutes = patch.DelayMinutes
	}
	if patch.Notes != nil {
		existing.Notes = *patch.Notes
	}
	if patch.IsMilestone != nil {
		existing.IsMilestone = *patch.IsMilestone
	}
	if patch.Archived != nil {
		existing.Archived = *patch.Archived
	}
	if patch.IsRollback != nil {
		existing.IsRollback = *patch.IsRollback
	}
	f.rows[key(groupID, seq)] = existing
	row := existing
	return &row, nil
}

func (f *fakeControlRepo) Delete(ctx context.Context, groupID string, seq int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[key(groupID, seq)]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, key(groupID, seq))
	return nil
}

type fakeRollbackRepo struct {
	mu     sync.Mutex
	states map[string]domain.RollbackState
}

func newFakeRollbackRepo() *fakeRollbackRepo {
	return &fakeRollbackRepo{states: make(map[string]domain.RollbackState)}
}

var _ repository.RollbackRepository = (*fakeRollbackRepo)(nil)

func (f *fakeRollbackRepo) Get(ctx context.Context, groupID string) (domain.RollbackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[groupID]; ok {
		return s, nil
	}
	return domain.RollbackState{GroupID: groupID, RollbackActive: false}, nil
}

func (f *fakeRollbackRepo) GetAll(ctx context.Context) (map[string]domain.RollbackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.RollbackState, len(f.states))
	for k, v := range f.states {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRollbackRepo) Set(ctx context.Context, groupID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[groupID] = domain.RollbackState{GroupID: groupID, RollbackActive: active}
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.TransitionEvent
}

var _ events.Publisher = (*fakePublisher)(nil)

func (f *fakePublisher) PublishTransition(ctx context.Context, event events.TransitionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) published() []events.TransitionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.TransitionEvent(nil), f.events...)
}
