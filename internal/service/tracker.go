// Package service orchestrates the tracker: it merges planned and control
// rows, runs updates through the state machine inside the locking
// transaction, applies the rollback partition everywhere activities are
// listed, and publishes transition events.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"changewindow-tracker/internal/domain"
	"changewindow-tracker/internal/events"
	"changewindow-tracker/internal/importer"
	"changewindow-tracker/internal/repository"
	"changewindow-tracker/internal/tracking"
)

var (
	// ErrActivityExists is returned by Create when the (group, seq) key is
	// already taken.
	ErrActivityExists = errors.New("activity already exists")
	// ErrInvalidActivity is returned when a new activity misses the minimum
	// required fields.
	ErrInvalidActivity = errors.New("invalid activity")
	// ErrUnknownGroup is returned for group names outside the configured set.
	ErrUnknownGroup = errors.New("unknown group")
)

// rollbackCache is the slice of store.RollbackCache the service needs. Nil is
// allowed; the service then always reads Postgres.
type rollbackCache interface {
	Get(ctx context.Context, groupID string) (bool, bool)
	Put(ctx context.Context, groupID string, active bool)
	Invalidate(ctx context.Context, groupID string)
}

// TrackerService is the application core behind the HTTP handlers.
type TrackerService struct {
	planned  repository.PlannedRepository
	controls repository.ControlRepository
	rollback repository.RollbackRepository
	cache    rollbackCache
	events   events.Publisher
	parser   *importer.Parser
	groups   []string
	logger   *zap.Logger
	now      func() time.Time
}

func NewTrackerService(
	planned repository.PlannedRepository,
	controls repository.ControlRepository,
	rollback repository.RollbackRepository,
	cache rollbackCache,
	publisher events.Publisher,
	parser *importer.Parser,
	groups []string,
	logger *zap.Logger,
) *TrackerService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &TrackerService{
		planned:  planned,
		controls: controls,
		rollback: rollback,
		cache:    cache,
		events:   publisher,
		parser:   parser,
		groups:   groups,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNow replaces the clock. Tests only.
func (s *TrackerService) SetNow(now func() time.Time) {
	s.now = now
}

func (s *TrackerService) knownGroup(groupID string) bool {
	for _, g := range s.groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// ActivityView is one merged planned+control row with its derived status.
type ActivityView struct {
	Activity  domain.PlannedActivity  `json:"activity"`
	Control   *domain.ActivityControl `json:"control,omitempty"`
	Status    tracking.Status         `json:"status"`
	IsClosing bool                    `json:"is_closing"`
}

// GroupView is one group's visible activities under its rollback flag.
type GroupView struct {
	GroupID        string         `json:"group_id"`
	RollbackActive bool           `json:"rollback_active"`
	Activities     []ActivityView `json:"activities"`
}

// rollbackActive resolves a group's flag, cache first.
func (s *TrackerService) rollbackActive(ctx context.Context, groupID string) (bool, error) {
	if s.cache != nil {
		if active, ok := s.cache.Get(ctx, groupID); ok {
			return active, nil
		}
	}
	state, err := s.rollback.Get(ctx, groupID)
	if err != nil {
		return false, err
	}
	if s.cache != nil {
		s.cache.Put(ctx, groupID, state.RollbackActive)
	}
	return state.RollbackActive, nil
}

// loadGroups reads the whole plan and control table and indexes them for the
// read paths. Control rows are keyed by seq within their group.
func (s *TrackerService) loadGroups(ctx context.Context) (map[string][]domain.PlannedActivity, map[string]map[int]domain.ActivityControl, error) {
	plannedRows, err := s.planned.ListAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list planned activities: %w", err)
	}
	controlRows, err := s.controls.ListAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list activity controls: %w", err)
	}

	byGroup := make(map[string][]domain.PlannedActivity)
	for _, a := range plannedRows {
		byGroup[a.GroupID] = append(byGroup[a.GroupID], a)
	}
	for _, g := range byGroup {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Seq < g[j].Seq })
	}

	controls := make(map[string]map[int]domain.ActivityControl)
	for _, c := range controlRows {
		if controls[c.GroupID] == nil {
			controls[c.GroupID] = make(map[int]domain.ActivityControl)
		}
		controls[c.GroupID][c.Seq] = c
	}
	return byGroup, controls, nil
}

// viewGroup builds the visible ActivityViews of one group. The rollback
// partition and the closing-activity recomputation both happen here so every
// listing call site shares them.
func viewGroup(groupID string, group []domain.PlannedActivity, controls map[int]domain.ActivityControl, rollbackActive bool) GroupView {
	view := GroupView{
		GroupID:        groupID,
		RollbackActive: rollbackActive,
		Activities:     []ActivityView{},
	}

	closingSeq := -1
	if idx, ok := tracking.ClosingIndex(group); ok {
		closingSeq = group[idx].Seq
	}

	for _, a := range tracking.VisibleActivities(group, rollbackActive) {
		av := ActivityView{Activity: a, IsClosing: a.Seq == closingSeq}
		if c, ok := controls[a.Seq]; ok {
			control := c
			av.Control = &control
			av.Status = tracking.DeriveStatus(control)
		} else {
			av.Status = tracking.DeriveStatus(domain.ActivityControl{})
		}
		view.Activities = append(view.Activities, av)
	}
	return view
}

// ListActivities returns every configured group's visible activities.
func (s *TrackerService) ListActivities(ctx context.Context) ([]GroupView, error) {
	byGroup, controls, err := s.loadGroups(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]GroupView, 0, len(s.groups))
	for _, groupID := range s.groups {
		active, err := s.rollbackActive(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve rollback state for %s: %w", groupID, err)
		}
		views = append(views, viewGroup(groupID, byGroup[groupID], controls[groupID], active))
	}
	return views, nil
}

// GetActivity returns one merged row regardless of the rollback partition;
// direct key access is an operator drill-down, not a listing.
func (s *TrackerService) GetActivity(ctx context.Context, groupID string, seq int) (*ActivityView, error) {
	if !s.knownGroup(groupID) {
		return nil, ErrUnknownGroup
	}
	planned, err := s.planned.GetBySeq(ctx, groupID, seq)
	if err != nil {
		return nil, err
	}

	view := &ActivityView{Activity: *planned}
	control, err := s.controls.Get(ctx, groupID, seq)
	switch {
	case err == nil:
		view.Control = control
		view.Status = tracking.DeriveStatus(*control)
	case errors.Is(err, repository.ErrNotFound):
		view.Status = tracking.DeriveStatus(domain.ActivityControl{})
	default:
		return nil, err
	}
	return view, nil
}

// UpdateRequest carries one PUT: optional planned-side fields plus the
// control patch fed to the update state machine.
type UpdateRequest struct {
	GroupID string `json:"group_id"`
	Seq     int    `json:"seq"`

	Title          *string    `json:"title,omitempty"`
	Team           *string    `json:"team,omitempty"`
	PlannedStart   *time.Time `json:"planned_start,omitempty"`
	PlannedEnd     *time.Time `json:"planned_end,omitempty"`
	PlannedMinutes *int       `json:"planned_minutes,omitempty"`
	IsRollback     *bool      `json:"is_rollback,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`

	StatusText   *string    `json:"status,omitempty"`
	RealStart    *time.Time `json:"real_start,omitempty"`
	RealEnd      *time.Time `json:"real_end,omitempty"`
	DelayMinutes *int       `json:"delay_minutes,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	IsMilestone  *bool      `json:"is_milestone,omitempty"`
	Archived     *bool      `json:"archived,omitempty"`
}

// UpdateOutcome reports what an update did.
type UpdateOutcome struct {
	Control    *domain.ActivityControl `json:"control"`
	Previous   tracking.Status         `json:"previous_status"`
	Status     tracking.Status         `json:"status"`
	Transition bool                    `json:"transition"`
	Created    bool                    `json:"created"`
}

// UpdateActivity is the write pipeline: upsert the planned side, ensure a
// control row exists, then run the state machine against the row-locked
// control record. A detected transition is published to the event stream;
// publish failures are logged and swallowed.
func (s *TrackerService) UpdateActivity(ctx context.Context, req UpdateRequest) (*UpdateOutcome, error) {
	if !s.knownGroup(req.GroupID) {
		return nil, ErrUnknownGroup
	}

	planned, created, err := s.upsertPlanned(ctx, req)
	if err != nil {
		return nil, err
	}

	existing, err := s.controls.Get(ctx, req.GroupID, req.Seq)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Insert-if-absent: a concurrent first update to the same key may
		// land its row (and stamped timestamps) between the Get above and
		// this call, and a plain upsert would wipe them outside the row lock.
		seed := &domain.ActivityControl{
			Seq:        req.Seq,
			GroupID:    req.GroupID,
			ActivityID: planned.ID,
			IsRollback: planned.IsRollback,
		}
		if err := s.controls.Seed(ctx, seed); err != nil {
			return nil, fmt.Errorf("failed to seed activity control: %w", err)
		}
	case err != nil:
		return nil, err
	case existing.ActivityID == "":
		// The row survived a plan re-import and lost its planned reference.
		if err := s.controls.Relink(ctx, req.GroupID, req.Seq, planned.ID); err != nil {
			return nil, fmt.Errorf("failed to relink activity control: %w", err)
		}
	}

	patch := tracking.ControlPatch{
		StatusText:   req.StatusText,
		RealStart:    req.RealStart,
		RealEnd:      req.RealEnd,
		DelayMinutes: req.DelayMinutes,
		Notes:        req.Notes,
		IsMilestone:  req.IsMilestone,
		Archived:     req.Archived,
		IsRollback:   req.IsRollback,
	}

	var result tracking.UpdateResult
	updated, err := s.controls.UpdateWithLock(ctx, req.GroupID, req.Seq, func(existing domain.ActivityControl) (tracking.ControlPatch, error) {
		result = tracking.ApplyUpdate(existing, planned.PlannedEnd, patch, s.now)
		return result.Patch, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update activity control: %w", err)
	}

	if result.Transition {
		event := events.TransitionEvent{
			GroupID:    req.GroupID,
			Seq:        req.Seq,
			From:       result.Previous,
			To:         result.Next,
			OccurredAt: s.now(),
		}
		if err := s.events.PublishTransition(ctx, event); err != nil {
			s.logger.Warn("failed to publish transition event",
				zap.String("group_id", req.GroupID),
				zap.Int("seq", req.Seq),
				zap.Error(err),
			)
		}
	}

	return &UpdateOutcome{
		Control:    updated,
		Previous:   result.Previous,
		Status:     result.Next,
		Transition: result.Transition,
		Created:    created,
	}, nil
}

// upsertPlanned applies the planned-side fields of an update, creating the
// row when the key is new. Brand-new rows need a title and at least one
// planned timestamp.
func (s *TrackerService) upsertPlanned(ctx context.Context, req UpdateRequest) (*domain.PlannedActivity, bool, error) {
	planned, err := s.planned.GetBySeq(ctx, req.GroupID, req.Seq)
	if err == nil {
		patch := repository.PlannedPatch{
			Title:          req.Title,
			Team:           req.Team,
			PlannedStart:   req.PlannedStart,
			PlannedEnd:     req.PlannedEnd,
			PlannedMinutes: req.PlannedMinutes,
			IsRollback:     req.IsRollback,
			LastSyncedAt:   req.LastSyncedAt,
		}
		if patch != (repository.PlannedPatch{}) {
			if err := s.planned.Update(ctx, planned.ID, patch); err != nil {
				return nil, false, fmt.Errorf("failed to update planned activity: %w", err)
			}
			planned, err = s.planned.GetBySeq(ctx, req.GroupID, req.Seq)
			if err != nil {
				return nil, false, err
			}
		}
		return planned, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	if req.Title == nil || *req.Title == "" {
		return nil, false, fmt.Errorf("%w: new activity needs a title", ErrInvalidActivity)
	}
	if req.PlannedStart == nil && req.PlannedEnd == nil {
		return nil, false, fmt.Errorf("%w: new activity needs a planned start or end", ErrInvalidActivity)
	}

	fresh := &domain.PlannedActivity{
		ID:           uuid.NewString(),
		Seq:          req.Seq,
		GroupID:      req.GroupID,
		Title:        *req.Title,
		PlannedStart: req.PlannedStart,
		PlannedEnd:   req.PlannedEnd,
		ImportedAt:   s.now(),
		LastSyncedAt: req.LastSyncedAt,
	}
	if req.Team != nil {
		fresh.Team = *req.Team
	}
	if req.PlannedMinutes != nil {
		fresh.PlannedMinutes = *req.PlannedMinutes
	}
	if req.IsRollback != nil {
		fresh.IsRollback = *req.IsRollback
	}
	if _, err := s.planned.Create(ctx, fresh); err != nil {
		return nil, false, fmt.Errorf("failed to create planned activity: %w", err)
	}
	return fresh, true, nil
}

// CreateActivity is the explicit POST: it refuses to touch an existing key.
func (s *TrackerService) CreateActivity(ctx context.Context, req UpdateRequest) (*ActivityView, error) {
	if !s.knownGroup(req.GroupID) {
		return nil, ErrUnknownGroup
	}
	if _, err := s.planned.GetBySeq(ctx, req.GroupID, req.Seq); err == nil {
		return nil, ErrActivityExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	planned, _, err := s.upsertPlanned(ctx, req)
	if err != nil {
		return nil, err
	}

	control := &domain.ActivityControl{
		Seq:        req.Seq,
		GroupID:    req.GroupID,
		ActivityID: planned.ID,
		IsRollback: planned.IsRollback,
	}
	if req.IsMilestone != nil {
		control.IsMilestone = *req.IsMilestone
	}
	if err := s.controls.Upsert(ctx, control); err != nil {
		return nil, fmt.Errorf("failed to create activity control: %w", err)
	}

	return &ActivityView{
		Activity: *planned,
		Control:  control,
		Status:   tracking.DeriveStatus(*control),
	}, nil
}

// DeleteActivity removes the control record and, when withPlanned is set, the
// planned row as well.
func (s *TrackerService) DeleteActivity(ctx context.Context, groupID string, seq int, withPlanned bool) error {
	if !s.knownGroup(groupID) {
		return ErrUnknownGroup
	}
	if err := s.controls.Delete(ctx, groupID, seq); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if !withPlanned {
		return nil
	}
	planned, err := s.planned.GetBySeq(ctx, groupID, seq)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.planned.Delete(ctx, planned.ID)
}

// RollbackState reads one group's flag from Postgres, bypassing the cache so
// operators always see the stored truth.
func (s *TrackerService) RollbackState(ctx context.Context, groupID string) (domain.RollbackState, error) {
	if !s.knownGroup(groupID) {
		return domain.RollbackState{}, ErrUnknownGroup
	}
	return s.rollback.Get(ctx, groupID)
}

// RollbackStates returns the flag of every configured group, including the
// implicit inactive default.
func (s *TrackerService) RollbackStates(ctx context.Context) ([]domain.RollbackState, error) {
	stored, err := s.rollback.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	states := make([]domain.RollbackState, 0, len(s.groups))
	for _, groupID := range s.groups {
		if state, ok := stored[groupID]; ok {
			states = append(states, state)
		} else {
			states = append(states, domain.RollbackState{GroupID: groupID, RollbackActive: false})
		}
	}
	return states, nil
}

// SetRollbackState flips a group's flag and invalidates its cache entry.
func (s *TrackerService) SetRollbackState(ctx context.Context, groupID string, active bool) (domain.RollbackState, error) {
	if !s.knownGroup(groupID) {
		return domain.RollbackState{}, ErrUnknownGroup
	}
	if err := s.rollback.Set(ctx, groupID, active); err != nil {
		return domain.RollbackState{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, groupID)
	}
	s.logger.Info("rollback state changed",
		zap.String("group_id", groupID),
		zap.Bool("rollback_active", active),
	)
	return s.rollback.Get(ctx, groupID)
}

// ImportSummary reports the outcome of a workbook import.
type ImportSummary struct {
	Sheets   []string `json:"sheets"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
}

// ImportWorkbook replaces the plan with the workbook contents and seeds or
// refreshes the matching control rows. Rows carrying real timestamps or a
// status text are run through the regular update pipeline so a re-imported
// workbook also records execution progress.
func (s *TrackerService) ImportWorkbook(ctx context.Context, r io.Reader, sourceFile string) (*ImportSummary, error) {
	parsed, err := s.parser.Parse(r)
	if err != nil {
		return nil, err
	}
	if len(parsed.Rows) == 0 {
		return &ImportSummary{Sheets: parsed.Sheets, Skipped: parsed.Skipped}, nil
	}

	now := s.now()
	plannedRows := make([]domain.PlannedActivity, 0, len(parsed.Rows))
	for _, row := range parsed.Rows {
		plannedRows = append(plannedRows, domain.PlannedActivity{
			ID:             uuid.NewString(),
			Seq:            row.Seq,
			GroupID:        row.GroupID,
			Title:          row.Title,
			Team:           row.Team,
			PlannedStart:   row.PlannedStart,
			PlannedEnd:     row.PlannedEnd,
			PlannedMinutes: row.PlannedMinutes,
			IsRollback:     row.IsRollback,
			SourceFile:     sourceFile,
			ImportedAt:     now,
		})
	}

	imported, err := s.planned.ReplaceAll(ctx, plannedRows)
	if err != nil {
		return nil, fmt.Errorf("failed to replace planned activities: %w", err)
	}

	for i, row := range parsed.Rows {
		milestone := row.IsMilestone
		req := UpdateRequest{
			GroupID:     row.GroupID,
			Seq:         row.Seq,
			IsMilestone: &milestone,
		}
		if row.StatusText != "" {
			status := row.StatusText
			req.StatusText = &status
		}
		if row.RealStart != nil {
			req.RealStart = row.RealStart
		}
		if row.RealEnd != nil {
			req.RealEnd = row.RealEnd
		}
		req.IsRollback = &plannedRows[i].IsRollback

		if _, err := s.UpdateActivity(ctx, req); err != nil {
			s.logger.Warn("failed to apply imported control data",
				zap.String("group_id", row.GroupID),
				zap.Int("seq", row.Seq),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("workbook imported",
		zap.String("source_file", sourceFile),
		zap.Strings("sheets", parsed.Sheets),
		zap.Int("imported", imported),
		zap.Int("skipped", parsed.Skipped),
	)
	return &ImportSummary{Sheets: parsed.Sheets, Imported: imported, Skipped: parsed.Skipped}, nil
}

// UnsyncedActivities lists planned rows not touched by the sync client since
// cutoff, so the client can prune rows that left the workbook.
func (s *TrackerService) UnsyncedActivities(ctx context.Context, cutoff time.Time, groups []string) ([]domain.PlannedActivity, error) {
	if len(groups) == 0 {
		groups = s.groups
	}
	for _, g := range groups {
		if !s.knownGroup(g) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, g)
		}
	}
	return s.planned.ListUnsynced(ctx, cutoff, groups)
}
