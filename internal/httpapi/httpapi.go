// Package httpapi exposes the orchestration engine over HTTP. Control
// operations are plain JSON request/response, build execution streams one
// JSON object per event so clients render incrementally.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/featden/featd/internal/app/agentsession"
	"github.com/featden/featd/internal/app/build"
	"github.com/featden/featd/internal/app/checkpoint"
	"github.com/featden/featd/internal/app/plan"
	"github.com/featden/featd/internal/app/publish"
	"github.com/featden/featd/internal/app/sandboxlifecycle"
	"github.com/featden/featd/internal/app/session"
	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/workspace"
)

const (
	headerOrgID  = "X-Org-ID"
	headerUserID = "X-User-ID"
)

// ServerConfig is the configuration for the HTTP API server.
type ServerConfig struct {
	Sessions     *session.Service
	Plans        *plan.Service
	Builds       *build.Service
	Checkpoints  *checkpoint.Service
	Publisher    *publish.Service
	AgentControl *agentsession.Service
	Lifecycle    *sandboxlifecycle.Service
	Workspace    workspace.Provider
	Logger       log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.Sessions == nil || c.Plans == nil || c.Builds == nil || c.Checkpoints == nil ||
		c.Publisher == nil || c.AgentControl == nil || c.Lifecycle == nil {
		return fmt.Errorf("all services are required")
	}
	if c.Workspace == nil {
		return fmt.Errorf("workspace provider is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "httpapi.Server"})
	return nil
}

// Server routes HTTP requests into the application services.
type Server struct {
	sessions     *session.Service
	plans        *plan.Service
	builds       *build.Service
	checkpoints  *checkpoint.Service
	publisher    *publish.Service
	agentControl *agentsession.Service
	lifecycle    *sandboxlifecycle.Service
	workspace    workspace.Provider
	logger       log.Logger
	router       chi.Router
}

// NewServer creates a new HTTP API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		sessions:     cfg.Sessions,
		plans:        cfg.Plans,
		builds:       cfg.Builds,
		checkpoints:  cfg.Checkpoints,
		publisher:    cfg.Publisher,
		agentControl: cfg.AgentControl,
		lifecycle:    cfg.Lifecycle,
		workspace:    cfg.Workspace,
		logger:       cfg.Logger,
	}
	s.router = s.buildRouter()

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireOrg)

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Patch("/sessions/{id}", s.handleUpdateSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Get("/sessions/{id}/messages", s.handleListMessages)
		r.Post("/sessions/{id}/retry", s.handleRetrySession)

		r.Post("/sessions/{id}/plan", s.handleGeneratePlan)
		r.Post("/sessions/{id}/approval", s.handleResolveApproval)

		r.Post("/sessions/{id}/build", s.handleExecuteBuild)
		r.Post("/sessions/{id}/cancel", s.handleCancelBuild)

		r.Post("/sessions/{id}/pull-request", s.handleCreatePullRequest)

		r.Get("/sessions/{id}/agent", s.handleGetAgentSession)
		r.Post("/sessions/{id}/agent", s.handleCreateAgentSession)
		r.Delete("/sessions/{id}/agent", s.handleDeleteAgentSession)

		r.Post("/sandboxes", s.handleCreateSandbox)
		r.Post("/sandboxes/{id}/pause", s.handlePauseSandbox)
		r.Delete("/sandboxes/{id}", s.handleDeleteSandbox)
		r.Post("/sandboxes/{id}/checkpoints", s.handleCreateCheckpoint)
		r.Get("/sandboxes/{id}/checkpoints", s.handleListCheckpoints)
	})

	return r
}

// requireOrg rejects requests without an organization scope. Authorization
// is checked before anything else, a missing scope is never reported as a
// missing resource.
func (s *Server) requireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerOrgID) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+headerOrgID+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func orgID(r *http.Request) string  { return r.Header.Get(headerOrgID) }
func userID(r *http.Request) string { return r.Header.Get(headerUserID) }

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}

// writeDomainError maps domain errors onto HTTP statuses and stable
// machine-readable categories.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, model.ErrPreconditionFailed):
		writeError(w, http.StatusPreconditionFailed, "precondition_failed", err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, model.ErrAlreadyExists), errors.Is(err, model.ErrNoChanges):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, model.ErrNotValid):
		writeError(w, http.StatusBadRequest, "not_valid", err.Error())
	default:
		s.logger.Errorf("Unexpected error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

type healthResponse struct {
	Status string                  `json:"status"`
	Checks []workspace.CheckResult `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := s.workspace.Check(r.Context())

	status := http.StatusOK
	overall := "ok"
	for _, c := range checks {
		if !c.OK {
			status = http.StatusServiceUnavailable
			overall = "degraded"
			break
		}
	}

	writeJSON(w, status, healthResponse{Status: overall, Checks: checks})
}

type sessionResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	RepositoryID   string    `json:"repositoryId"`
	RepoFullName   string    `json:"repoFullName"`
	Name           string    `json:"name"`
	BranchName     string    `json:"branchName"`
	Status         string    `json:"status"`
	SandboxID      *string   `json:"sandboxId,omitempty"`
	AgentSessionID *string   `json:"agentSessionId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func mapSession(s model.FeatureSession) sessionResponse {
	return sessionResponse{
		ID:             s.ID,
		OrganizationID: s.OrganizationID,
		RepositoryID:   s.RepositoryID,
		RepoFullName:   s.RepoFullName,
		Name:           s.Name,
		BranchName:     s.BranchName,
		Status:         string(s.Status),
		SandboxID:      s.SandboxID,
		AgentSessionID: s.AgentSessionID,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}
