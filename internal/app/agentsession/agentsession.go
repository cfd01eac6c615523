// Package agentsession exposes direct control over the provider-side agent
// session bound to a feature session. The build flow manages these lazily,
// the operations here exist for explicit inspection and cleanup.
package agentsession

import (
	"context"
	"fmt"

	"github.com/featden/featd/internal/agent"
	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/storage"
)

// ServiceConfig is the configuration for the agent session service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.AgentSession"})
	return nil
}

// Service handles agent session control operations.
type Service struct {
	agent  agent.Provider
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new agent session service.
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

// workspaceFor resolves the workspace backing the feature session's sandbox.
func (s *Service) workspaceFor(ctx context.Context, session *model.FeatureSession) (string, error) {
	if session.SandboxID == nil {
		return "", fmt.Errorf("session %s has no sandbox: %w", session.ID, model.ErrPreconditionFailed)
	}
	sandbox, err := s.repo.GetSandbox(ctx, *session.SandboxID)
	if err != nil {
		return "", fmt.Errorf("could not get sandbox: %w", err)
	}
	return sandbox.WorkspaceID, nil
}

// Get returns the live provider-side session bound to the feature session.
func (s *Service) Get(ctx context.Context, sessionID string) (*model.AgentSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("could not get session: %w", err)
	}
	if session.AgentSessionID == nil {
		return nil, fmt.Errorf("session %s has no agent session: %w", sessionID, model.ErrNotFound)
	}

	workspaceID, err := s.workspaceFor(ctx, session)
	if err != nil {
		return nil, err
	}

	agentSession, err := s.agent.GetSession(ctx, *session.AgentSessionID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("could not get agent session: %w", err)
	}
	return agentSession, nil
}

// Create explicitly creates and binds an agent session. The sandbox must
// already exist, agent sessions live inside its workspace.
func (s *Service) Create(ctx context.Context, sessionID string) (*model.AgentSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("could not get session: %w", err)
	}
	if session.AgentSessionID != nil {
		return nil, fmt.Errorf("session %s already has an agent session: %w", sessionID, model.ErrAlreadyExists)
	}

	workspaceID, err := s.workspaceFor(ctx, session)
	if err != nil {
		return nil, err
	}

	agentSession, err := s.agent.CreateSession(ctx, agent.CreateSessionOptions{
		SessionID:   session.ID,
		WorkspaceID: workspaceID,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create agent session: %w", err)
	}

	session.AgentSessionID = &agentSession.ID
	if err := s.repo.UpdateSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("could not bind agent session: %w", err)
	}

	s.logger.Infof("Created agent session for session %s", session.ID)

	return agentSession, nil
}

// Delete releases the provider-side session and unbinds it.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("could not get session: %w", err)
	}
	if session.AgentSessionID == nil {
		return nil
	}

	workspaceID, err := s.workspaceFor(ctx, session)
	if err != nil {
		return err
	}

	if err := s.agent.DeleteSession(ctx, *session.AgentSessionID, workspaceID); err != nil {
		s.logger.Warningf("Could not release agent session %s: %v", *session.AgentSessionID, err)
	}

	session.AgentSessionID = nil
	if err := s.repo.UpdateSession(ctx, *session); err != nil {
		return fmt.Errorf("could not unbind agent session: %w", err)
	}

	s.logger.Infof("Deleted agent session for session %s", session.ID)
	return nil
}
