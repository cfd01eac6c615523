// Package session manages feature session records, their organization scoping
// and the explicit error-recovery retry.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/featden/featd/internal/agent"
	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/storage"
)

// ServiceConfig is the configuration for the session service.
type ServiceConfig struct {
	Agent      agent.Provider
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Agent == nil {
		return fmt.Errorf("agent provider is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Session"})
	return nil
}

// Service handles feature session business logic.
type Service struct {
	agent  agent.Provider
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new session service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		agent:  cfg.Agent,
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// CreateOptions are the options for creating a feature session.
type CreateOptions struct {
	OrganizationID string
	RepositoryID   string
	RepoFullName   string
	RepoURL        string
	Name           string
}

// Create creates a new feature session in idle with a deterministic branch
// name derived from its id.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*model.FeatureSession, error) {
	now := time.Now().UTC()
	id := strings.ToLower(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String())

	session := model.FeatureSession{
		ID:             id,
		OrganizationID: opts.OrganizationID,
		RepositoryID:   opts.RepositoryID,
		RepoFullName:   opts.RepoFullName,
		RepoURL:        opts.RepoURL,
		Name:           opts.Name,
		BranchName:     fmt.Sprintf("featd/session-%s", id),
		Status:         model.SessionStatusIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("could not save session: %w", err)
	}

	s.logger.Infof("Created session %s (%s) on %s", session.ID, session.Name, session.RepoFullName)

	return &session, nil
}

// Get retrieves a session scoped to an organization, a session belonging to
// another organization is indistinguishable from a missing one.
func (s *Service) Get(ctx context.Context, orgID, sessionID string) (*model.FeatureSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("could not get session: %w", err)
	}
	if session.OrganizationID != orgID {
		return nil, fmt.Errorf("session %s: %w", sessionID, model.ErrNotFound)
	}
	return session, nil
}

// List lists the organization's sessions.
func (s *Service) List(ctx context.Context, orgID string) ([]model.FeatureSession, error) {
	sessions, err := s.repo.ListSessionsByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("could not list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateOptions are the mutable session fields.
type UpdateOptions struct {
	Name string
}

// Update renames a session. Status never changes through here, transitions
// belong to the planning, build and publish flows.
func (s *Service) Update(ctx context.Context, orgID, sessionID string, opts UpdateOptions) (*model.FeatureSession, error) {
	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}

	if opts.Name != "" {
		session.Name = opts.Name
	}
	session.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("could not update session: %w", err)
	}

	return session, nil
}

// Delete removes a session and releases its agent session. The shared
// sandbox stays, other sessions on the repository may be using it.
func (s *Service) Delete(ctx context.Context, orgID, sessionID string) error {
	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return err
	}

	if session.AgentSessionID != nil {
		workspaceID := ""
		if session.SandboxID != nil {
			if sandbox, err := s.repo.GetSandbox(ctx, *session.SandboxID); err == nil {
				workspaceID = sandbox.WorkspaceID
			}
		}
		if err := s.agent.DeleteSession(ctx, *session.AgentSessionID, workspaceID); err != nil {
			s.logger.Warningf("Could not release agent session %s: %v", *session.AgentSessionID, err)
		}
	}

	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("could not delete session: %w", err)
	}

	s.logger.Infof("Deleted session %s", sessionID)
	return nil
}

// Retry recovers an errored session back to idle so the user can plan again.
func (s *Service) Retry(ctx context.Context, orgID, sessionID string) (*model.FeatureSession, error) {
	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != model.SessionStatusError {
		return nil, fmt.Errorf("session %s is %s, only errored sessions can be retried: %w", session.ID, session.Status, model.ErrPreconditionFailed)
	}
	if err := session.TransitionTo(model.SessionStatusIdle); err != nil {
		return nil, fmt.Errorf("could not recover session: %w", err)
	}

	if err := s.repo.UpdateSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("could not update session: %w", err)
	}

	s.logger.Infof("Recovered session %s from error", session.ID)

	return session, nil
}

// Messages returns the session transcript oldest first.
func (s *Service) Messages(ctx context.Context, orgID, sessionID string) ([]model.Message, error) {
	if _, err := s.Get(ctx, orgID, sessionID); err != nil {
		return nil, err
	}

	msgs, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("could not list messages: %w", err)
	}
	return msgs, nil
}
