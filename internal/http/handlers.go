package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"changewindow-tracker/internal/domain"
	"changewindow-tracker/internal/repository"
	"changewindow-tracker/internal/service"
)

const maxBodyBytes = 1 << 20

// pinger is the slice of *sql.DB the health endpoint needs.
type pinger interface {
	PingContext(ctx context.Context) error
}

// TrackerHandler serves the tracker API on top of the service layer.
type TrackerHandler struct {
	svc    *service.TrackerService
	db     pinger
	logger *zap.Logger
}

func NewTrackerHandler(svc *service.TrackerService, db pinger, logger *zap.Logger) *TrackerHandler {
	return &TrackerHandler{svc: svc, db: db, logger: logger}
}

func (h *TrackerHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownGroup), errors.Is(err, service.ErrInvalidActivity):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case errors.Is(err, service.ErrActivityExists):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail("not found"))
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}

// Health reports service liveness and database reachability.
func (h *TrackerHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, status)
}

// ListActivities serves the merged, partitioned activity listing.
func (h *TrackerHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListActivities(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(views))
}

// GetActivity serves one activity by group and seq.
func (h *TrackerHandler) GetActivity(w http.ResponseWriter, r *http.Request, groupID string, seq int) {
	view, err := h.svc.GetActivity(r.Context(), groupID, seq)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

// UpdateActivity runs the PUT pipeline.
func (h *TrackerHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if req.GroupID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("group_id is required"))
		return
	}

	outcome, err := h.svc.UpdateActivity(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(outcome))
}

// CreateActivity handles the explicit POST; duplicates get 409.
func (h *TrackerHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if req.GroupID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("group_id is required"))
		return
	}

	view, err := h.svc.CreateActivity(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(view))
}

// DeleteActivity removes a control row; ?planned=true removes the planned
// row too.
func (h *TrackerHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group_id")
	seqStr := r.URL.Query().Get("seq")
	if groupID == "" || seqStr == "" {
		writeJSON(w, http.StatusBadRequest, Fail("group_id and seq are required"))
		return
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("seq must be an integer"))
		return
	}
	withPlanned := r.URL.Query().Get("planned") == "true"

	if err := h.svc.DeleteActivity(r.Context(), groupID, seq, withPlanned); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": true}))
}

// Statistics serves per-group and overall status counts.
func (h *TrackerHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Statistics(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(stats))
}

// SummaryMessage serves the consolidated report text.
func (h *TrackerHandler) SummaryMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.BuildSummaryMessage(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"message": msg}))
}

// DetailedMessage serves the per-group follow-up report text.
func (h *TrackerHandler) DetailedMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.BuildDetailedMessage(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"message": msg}))
}

// RollbackStates lists every group's flag.
func (h *TrackerHandler) RollbackStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.svc.RollbackStates(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(states))
}

// GetRollbackState serves one group's flag.
func (h *TrackerHandler) GetRollbackState(w http.ResponseWriter, r *http.Request, groupID string) {
	state, err := h.svc.RollbackState(r.Context(), groupID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(state))
}

// SetRollbackState flips one group's flag.
func (h *TrackerHandler) SetRollbackState(w http.ResponseWriter, r *http.Request, groupID string) {
	var body struct {
		RollbackActive *bool `json:"rollback_active"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil || body.RollbackActive == nil {
		writeJSON(w, http.StatusBadRequest, Fail("rollback_active is required"))
		return
	}

	state, err := h.svc.SetRollbackState(r.Context(), groupID, *body.RollbackActive)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(state))
}

// ImportWorkbook accepts a multipart Excel upload and replaces the plan.
func (h *TrackerHandler) ImportWorkbook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("file field is required"))
		return
	}
	defer file.Close()

	summary, err := h.svc.ImportWorkbook(r.Context(), file, header.Filename)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}

// UnsyncedActivities lists planned rows not synced since the cutoff.
func (h *TrackerHandler) UnsyncedActivities(w http.ResponseWriter, r *http.Request) {
	sinceStr := r.URL.Query().Get("since")
	if sinceStr == "" {
		writeJSON(w, http.StatusBadRequest, Fail("since is required"))
		return
	}
	since, err := time.Parse(time.RFC3339, sinceStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("since must be RFC3339"))
		return
	}

	var groups []string
	if raw := r.URL.Query().Get("groups"); raw != "" {
		for _, g := range strings.Split(raw, ",") {
			if g = strings.TrimSpace(g); g != "" {
				groups = append(groups, g)
			}
		}
	}

	rows, err := h.svc.UnsyncedActivities(r.Context(), since, groups)
	if err != nil {
		h.fail(w, err)
		return
	}
	if rows == nil {
		rows = []domain.PlannedActivity{}
	}
	writeJSON(w, http.StatusOK, Ok(rows))
}
