// Package build drives the coding agent through an approved plan inside the
// session's sandbox and keeps the transcript and session state in sync with
// the event stream.
package build

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/featden/featd/internal/agent"
	"github.com/featden/featd/internal/app/sandboxlifecycle"
	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/storage"
)

// Mode selects what happens when a build stream completes.
type Mode string

const (
	// ModeBuild is the full plan workflow, the session parks in ready for
	// preview and publishing.
	ModeBuild Mode = "build"
	// ModeChat returns the session to idle so the conversation continues.
	ModeChat Mode = "chat"
)

// ServiceConfig is the configuration for the build service.
type ServiceConfig struct {
	Agent      agent.Provider
	Lifecycle  *sandboxlifecycle.Service
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Agent == nil {
		return fmt.Errorf("agent provider is required")
	}
	if c.Lifecycle == nil {
		return fmt.Errorf("sandbox lifecycle service is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Build"})
	return nil
}

// Service handles build orchestration business logic.
type Service struct {
	agent  agent.Provider
	life   *sandboxlifecycle.Service
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new build service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		agent:  cfg.Agent,
		life:   cfg.Lifecycle,
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// ExecuteOptions are the options for executing a build.
type ExecuteOptions struct {
	SessionID string
	// Prompt overrides the instruction sent to the agent. Empty means the
	// session's latest approved plan.
	Prompt string
	Mode   Mode
}

// Execute runs the agent against the session's plan. Preparation failures are
// returned synchronously, everything after that flows through the returned
// channel which always ends with a terminal event before closing. Session
// state and transcript are settled before the channel closes.
func (s *Service) Execute(ctx context.Context, opts ExecuteOptions) (<-chan model.StreamEvent, error) {
	if opts.Mode == "" {
		opts.Mode = ModeBuild
	}

	session, err := s.repo.GetSession(ctx, opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("could not get session: %w", err)
	}
	if session.Status != model.SessionStatusBuilding {
		return nil, fmt.Errorf("session %s is %s, builds run only on approved sessions: %w", session.ID, session.Status, model.ErrPreconditionFailed)
	}

	prompt := opts.Prompt
	if prompt == "" {
		prompt, err = s.planPrompt(ctx, session.ID)
		if err != nil {
			return nil, err
		}
	}

	sandbox, err := s.life.GetOrCreateForRepository(ctx, sandboxlifecycle.ProvisionOptions{
		RepositoryID: session.RepositoryID,
		RepoURL:      session.RepoURL,
	})
	if err != nil {
		return nil, s.failSession(ctx, session, fmt.Errorf("could not get sandbox: %w", err))
	}
	sandbox, err = s.life.EnsureRunning(ctx, sandbox.ID)
	if err != nil {
		return nil, s.failSession(ctx, session, fmt.Errorf("could not start sandbox: %w", err))
	}

	if session.SandboxID == nil || *session.SandboxID != sandbox.ID {
		session.SandboxID = &sandbox.ID
		if err := s.repo.UpdateSession(ctx, *session); err != nil {
			return nil, fmt.Errorf("could not bind sandbox to session: %w", err)
		}
	}

	if err := s.ensureAgentSession(ctx, session, sandbox.WorkspaceID); err != nil {
		return nil, s.failSession(ctx, session, err)
	}

	events, err := s.agent.SendMessage(ctx, agent.SendMessageOptions{
		SessionID:   session.ID,
		WorkspaceID: sandbox.WorkspaceID,
		Content:     prompt,
	})
	if err != nil {
		return nil, s.failSession(ctx, session, fmt.Errorf("could not send message to agent: %w", err))
	}

	out := make(chan model.StreamEvent)
	go s.pump(ctx, session, sandbox.ID, opts.Mode, events, out)

	return out, nil
}

// failSession marks the session errored when preparation fails before any
// event is streamed, the user recovers with an explicit retry.
func (s *Service) failSession(ctx context.Context, session *model.FeatureSession, cause error) error {
	if err := session.TransitionTo(model.SessionStatusError); err != nil {
		s.logger.Errorf("Could not mark session %s errored: %v", session.ID, err)
		return cause
	}
	if err := s.repo.UpdateSession(ctx, *session); err != nil {
		s.logger.Errorf("Could not persist errored session %s: %v", session.ID, err)
	}
	return cause
}

// planPrompt renders the latest approved plan into the instruction sent to
// the agent.
func (s *Service) planPrompt(ctx context.Context, sessionID string) (string, error) {
	msgs, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("could not load transcript: %w", err)
	}
	planMsg, err := model.LatestPlanMessage(msgs)
	if err != nil {
		return "", fmt.Errorf("session has no plan to build: %w", err)
	}
	plan, err := planMsg.Plan()
	if err != nil {
		return "", fmt.Errorf("could not decode plan: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Implement the following approved plan.\n\n")
	sb.WriteString(plan.Summary)
	sb.WriteString("\n\nChanges:\n")
	for _, c := range plan.Changes {
		sb.WriteString("- ")
		sb.WriteString(c.Path)
		sb.WriteString(": ")
		sb.WriteString(c.Description)
		sb.WriteString("\n")
	}
	if len(plan.Considerations) > 0 {
		sb.WriteString("\nKeep in mind:\n")
		for _, c := range plan.Considerations {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func (s *Service) ensureAgentSession(ctx context.Context, session *model.FeatureSession, workspaceID string) error {
	if session.AgentSessionID != nil {
		if _, err := s.agent.GetSession(ctx, *session.AgentSessionID, workspaceID); err == nil {
			return nil
		}
		// The provider lost the session, registries do not survive restarts.
		s.logger.Warningf("Agent session %s is gone, recreating", *session.AgentSessionID)
	}

	created, err := s.agent.CreateSession(ctx, agent.CreateSessionOptions{
		SessionID:   session.ID,
		WorkspaceID: workspaceID,
	})
	if err != nil {
		return fmt.Errorf("could not create agent session: %w", err)
	}

	session.AgentSessionID = &created.ID
	if err := s.repo.UpdateSession(ctx, *session); err != nil {
		return fmt.Errorf("could not bind agent session: %w", err)
	}
	return nil
}

// pump forwards agent events to the caller while accumulating the assistant
// transcript, then settles session state off the terminal event.
func (s *Service) pump(ctx context.Context, session *model.FeatureSession, sandboxID string, mode Mode, in <-chan model.StreamEvent, out chan<- model.StreamEvent) {
	defer close(out)

	var transcript strings.Builder
	var failure string
	terminal := model.StreamEvent{Type: model.StreamEventError, Content: "agent stream ended unexpectedly"}

	for ev := range in {
		switch ev.Type {
		case model.StreamEventMessage, model.StreamEventPlan, model.StreamEventQuestion:
			if transcript.Len() > 0 {
				transcript.WriteString("\n\n")
			}
			transcript.WriteString(ev.Content)
		case model.StreamEventError:
			failure = ev.Content
		}

		if ev.IsTerminal() {
			terminal = ev
			if ev.Type == model.StreamEventError {
				failure = ev.Content
			}
			break
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			terminal = model.StreamEvent{Type: model.StreamEventError, Content: "build cancelled"}
			failure = terminal.Content
			s.settle(session, sandboxID, mode, transcript.String(), failure)
			return
		}
	}

	if terminal.Type == model.StreamEventError && failure == "" {
		failure = terminal.Content
	}

	s.settle(session, sandboxID, mode, transcript.String(), failure)

	select {
	case out <- terminal:
	case <-ctx.Done():
	}
}

// settle persists the accumulated transcript and the final session status.
// It runs on a fresh context, the caller may already be gone.
func (s *Service) settle(session *model.FeatureSession, sandboxID string, mode Mode, transcript, failure string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if transcript != "" {
		now := time.Now().UTC()
		msg := model.Message{
			ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
			SessionID: session.ID,
			Role:      model.MessageRoleAssistant,
			Content:   transcript,
			Phase:     model.MessagePhaseBuilding,
			CreatedAt: now,
		}
		if err := s.repo.CreateMessage(ctx, msg); err != nil {
			s.logger.Errorf("Could not persist build transcript for session %s: %v", session.ID, err)
		}
	}

	next := model.SessionStatusReady
	if mode == ModeChat {
		next = model.SessionStatusIdle
	}
	if failure != "" {
		next = model.SessionStatusError
		s.logger.Warningf("Build for session %s failed: %s", session.ID, failure)
	}

	if err := session.TransitionTo(next); err != nil {
		s.logger.Errorf("Could not transition session %s after build: %v", session.ID, err)
	} else if err := s.repo.UpdateSession(ctx, *session); err != nil {
		s.logger.Errorf("Could not update session %s after build: %v", session.ID, err)
	}

	if err := s.life.Touch(ctx, sandboxID); err != nil {
		s.logger.Warningf("Could not touch sandbox %s: %v", sandboxID, err)
	}
}

// Cancel stops the in-flight agent operation for the session. It is safe to
// call when nothing is running.
func (s *Service) Cancel(ctx context.Context, sessionID string) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("could not get session: %w", err)
	}

	workspaceID := ""
	if session.SandboxID != nil {
		if sandbox, err := s.repo.GetSandbox(ctx, *session.SandboxID); err == nil {
			workspaceID = sandbox.WorkspaceID
		}
	}

	if err := s.agent.CancelOperation(ctx, session.ID, workspaceID); err != nil {
		return fmt.Errorf("could not cancel agent operation: %w", err)
	}
	return nil
}
