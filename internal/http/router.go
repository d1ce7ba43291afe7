package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Router wraps the standard library http.ServeMux; no third-party routing
// dependency is needed for this surface.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, Fail("method not allowed"))
}

// RegisterTrackerRoutes wires every tracker endpoint, with role checks per
// operation: reads need viewer, writes change_lead, destructive operations
// admin.
func (r *Router) RegisterTrackerRoutes(h *TrackerHandler, auth *Authenticator) {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Health(w, req)
	})

	r.Handle("/api/v1/activities", auth.Require(RoleViewer, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.ListActivities(w, req)
	}))

	// /api/v1/activities/unsynced and /api/v1/activities/{group}/{seq}
	r.Handle("/api/v1/activities/", auth.Require(RoleViewer, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/activities/")
		if rest == "unsynced" {
			h.UnsyncedActivities(w, req)
			return
		}
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" {
			writeJSON(w, http.StatusNotFound, Fail("not found"))
			return
		}
		seq, err := strconv.Atoi(parts[1])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("seq must be an integer"))
			return
		}
		h.GetActivity(w, req, parts[0], seq)
	}))

	r.Handle("/api/v1/activity", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPut:
			auth.Require(RoleChangeLead, h.UpdateActivity)(w, req)
		case http.MethodPost:
			auth.Require(RoleChangeLead, h.CreateActivity)(w, req)
		case http.MethodDelete:
			auth.Require(RoleAdmin, h.DeleteActivity)(w, req)
		default:
			methodNotAllowed(w)
		}
	})

	r.Handle("/api/v1/statistics", auth.Require(RoleViewer, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Statistics(w, req)
	}))

	r.Handle("/api/v1/message", auth.Require(RoleViewer, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.SummaryMessage(w, req)
	}))

	r.Handle("/api/v1/message/detailed", auth.Require(RoleViewer, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.DetailedMessage(w, req)
	}))

	r.Handle("/api/v1/rollback-states", auth.Require(RoleViewer, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.RollbackStates(w, req)
	}))

	r.Handle("/api/v1/rollback-state/", func(w http.ResponseWriter, req *http.Request) {
		groupID := strings.TrimPrefix(req.URL.Path, "/api/v1/rollback-state/")
		if groupID == "" || strings.Contains(groupID, "/") {
			writeJSON(w, http.StatusNotFound, Fail("not found"))
			return
		}
		switch req.Method {
		case http.MethodGet:
			auth.Require(RoleViewer, func(w http.ResponseWriter, req *http.Request) {
				h.GetRollbackState(w, req, groupID)
			})(w, req)
		case http.MethodPut:
			auth.Require(RoleChangeLead, func(w http.ResponseWriter, req *http.Request) {
				h.SetRollbackState(w, req, groupID)
			})(w, req)
		default:
			methodNotAllowed(w)
		}
	})

	r.Handle("/api/v1/import", auth.Require(RoleChangeLead, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.ImportWorkbook(w, req)
	}))
}
