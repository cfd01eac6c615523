package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/featden/featd/internal/app/build"
	"github.com/featden/featd/internal/app/checkpoint"
	"github.com/featden/featd/internal/app/plan"
	"github.com/featden/featd/internal/app/publish"
	"github.com/featden/featd/internal/app/sandboxlifecycle"
	"github.com/featden/featd/internal/app/session"
	"github.com/featden/featd/internal/model"
)

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("could not decode request body: %w", model.ErrNotValid)
	}
	return nil
}

// scopedSession loads the session enforcing the caller's organization scope.
// Sessions outside the scope come back as not found.
func (s *Server) scopedSession(r *http.Request) (*model.FeatureSession, error) {
	return s.sessions.Get(r.Context(), orgID(r), chi.URLParam(r, "id"))
}

type createSessionRequest struct {
	RepositoryID string `json:"repositoryId"`
	RepoFullName string `json:"repoFullName"`
	RepoURL      string `json:"repoUrl"`
	Name         string `json:"name"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	created, err := s.sessions.Create(r.Context(), session.CreateOptions{
		OrganizationID: orgID(r),
		RepositoryID:   req.RepositoryID,
		RepoFullName:   req.RepoFullName,
		RepoURL:        req.RepoURL,
		Name:           req.Name,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapSession(*created))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context(), orgID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, mapSession(sess))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.scopedSession(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSession(*sess))
}

type updateSessionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	sess, err := s.sessions.Update(r.Context(), orgID(r), chi.URLParam(r, "id"), session.UpdateOptions{Name: req.Name})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSession(*sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Delete(r.Context(), orgID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetrySession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Retry(r.Context(), orgID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSession(*sess))
}

type messageResponse struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"sessionId"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Phase     string                 `json:"phase,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

func mapMessage(m model.Message) messageResponse {
	return messageResponse{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      string(m.Role),
		Content:   m.Content,
		Phase:     string(m.Phase),
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.sessions.Messages(r.Context(), orgID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, mapMessage(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

type generatePlanRequest struct {
	Prompt string `json:"prompt"`
}

type generatePlanResponse struct {
	Session    sessionResponse `json:"session"`
	Plan       messageResponse `json:"plan"`
	ApprovalID string          `json:"approvalId"`
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	sess, err := s.scopedSession(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req generatePlanRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	result, err := s.plans.Generate(r.Context(), plan.GenerateOptions{
		SessionID: sess.ID,
		Prompt:    req.Prompt,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generatePlanResponse{
		Session:    mapSession(*result.Session),
		Plan:       mapMessage(*result.PlanMessage),
		ApprovalID: result.Approval.ID,
	})
}

type resolveApprovalRequest struct {
	Approve bool   `json:"approve"`
	Comment string `json:"comment"`
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	sess, err := s.scopedSession(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req resolveApprovalRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	updated, err := s.plans.Resolve(r.Context(), plan.ResolveOptions{
		SessionID:  sess.ID,
		Approve:    req.Approve,
		ReviewerID: userID(r),
		Comment:    req.Comment,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSession(*updated))
}

type executeBuildRequest struct {
	Prompt string `json:"prompt"`
	Mode   string `json:"mode"`
}

// handleExecuteBuild streams the agent's progress back to the caller, one
// JSON object per line, flushed per event. The stream always ends with a
// done or error event. A dropped connection cancels the operation through
// the request context.
func (s *Server) handleExecuteBuild(w http.ResponseWriter, r *http.Request) {
	sess, err := s.scopedSession(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req executeBuildRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	mode := build.Mode(req.Mode)
	switch mode {
	case "", build.ModeBuild, build.ModeChat:
	default:
		writeError(w, http.StatusBadRequest, "not_valid", fmt.Sprintf("unknown build mode %q", req.Mode))
		return
	}

	events, err := s.builds.Execute(r.Context(), build.ExecuteOptions{
		SessionID: sess.ID,
		Prompt:    req.Prompt,
		Mode:      mode,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			// Client is gone, the build settles through the request context.
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleCancelBuild(w http.ResponseWriter, r *http.Request) {
	sess, err := s.scopedSession(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.builds.Cancel(r.Context(), sess.ID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type createPullRequestRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type pullRequestResponse struct {
	URL    string `json:"url"`
	Number int    `json:"number"`
}

func (s *Server) handleCreatePullRequest(w http.ResponseWriter, r *http.Request) {
	sess, err := s.scopedSession(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	user := userID(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+headerUserID+" header")
		return
	}

	var req createPullRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	pr, err := s.publisher.Create(r.Context(), publish.CreateOptions{
		SessionID:   sess.ID,
		UserID:      user,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pullRequestResponse{URL: pr.URL, Number: pr.Number})
}

type agentSessionResponse struct {
	ID           string    `json:"id"`
	NativeID     string    `json:"nativeId"`
	ProviderKind string    `json:"providerKind"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

func mapAgentSession(a model.AgentSession) agentSessionResponse {
	return agentSessionResponse{
		ID:           a.ID,
		NativeID:     a.NativeID,
		ProviderKind: string(a.ProviderKind),
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt,
	}
}

func (s *Server) handleGetAgentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.scopedSession(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	agentSess, err := s.agentControl.Get(r.Context(), sess.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAgentSession(*agentSess))
}

func (s *Server) handleCreateAgentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.scopedSession(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	agentSess, err := s.agentControl.Create(r.Context(), sess.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapAgentSession(*agentSess))
}

func (s *Server) handleDeleteAgentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.scopedSession(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.agentControl.Delete(r.Context(), sess.ID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createSandboxRequest struct {
	SessionID string `json:"sessionId"`
}

type sandboxResponse struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repositoryId"`
	WorkspaceID  string    `json:"workspaceId"`
	ProviderKind string    `json:"providerKind"`
	Status       string    `json:"status"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

func mapSandbox(sb model.Sandbox) sandboxResponse {
	return sandboxResponse{
		ID:           sb.ID,
		RepositoryID: sb.RepositoryID,
		WorkspaceID:  sb.WorkspaceID,
		ProviderKind: string(sb.ProviderKind),
		Status:       string(sb.Status),
		LastActiveAt: sb.LastActiveAt,
		CreatedAt:    sb.CreatedAt,
	}
}

// handleCreateSandbox provisions (or returns) the sandbox for the session's
// repository. The engine keeps one sandbox per repository, so this is
// idempotent. The session also tells us which repository URL to check out.
func (s *Server) handleCreateSandbox(w http.ResponseWriter, r *http.Request) {
	var req createSandboxRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "not_valid", "sessionId is required")
		return
	}

	sess, err := s.sessions.Get(r.Context(), orgID(r), req.SessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	sandbox, err := s.lifecycle.GetOrCreateForRepository(r.Context(), sandboxlifecycle.ProvisionOptions{
		RepositoryID: sess.RepositoryID,
		RepoURL:      sess.RepoURL,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapSandbox(*sandbox))
}

func (s *Server) handlePauseSandbox(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.Pause(r.Context(), orgID(r), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeleteSandbox(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.Delete(r.Context(), orgID(r), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createCheckpointRequest struct {
	Label     string  `json:"label"`
	SessionID *string `json:"sessionId,omitempty"`
	Type      string  `json:"type"`
}

type checkpointResponse struct {
	ID                 string    `json:"id"`
	SessionID          *string   `json:"sessionId,omitempty"`
	SandboxID          string    `json:"sandboxId"`
	Label              string    `json:"label"`
	Type               string    `json:"type"`
	ProviderSnapshotID *string   `json:"providerSnapshotId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

func mapCheckpoint(c model.Checkpoint) checkpointResponse {
	return checkpointResponse{
		ID:                 c.ID,
		SessionID:          c.SessionID,
		SandboxID:          c.SandboxID,
		Label:              c.Label,
		Type:               string(c.Type),
		ProviderSnapshotID: c.ProviderSnapshotID,
		CreatedAt:          c.CreatedAt,
	}
}

func (s *Server) handleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req createCheckpointRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	cp, err := s.checkpoints.Create(r.Context(), checkpoint.CreateOptions{
		OrgID:     orgID(r),
		SandboxID: chi.URLParam(r, "id"),
		Label:     req.Label,
		SessionID: req.SessionID,
		Type:      model.CheckpointType(req.Type),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapCheckpoint(*cp))
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	checkpoints, err := s.checkpoints.List(r.Context(), orgID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := make([]checkpointResponse, 0, len(checkpoints))
	for _, c := range checkpoints {
		resp = append(resp, mapCheckpoint(c))
	}
	writeJSON(w, http.StatusOK, resp)
}
