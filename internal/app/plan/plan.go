// Package plan handles feature planning and the human approval gate, the plan
// is produced by the planning backend, persisted on the transcript and held
// for review before any build starts.
package plan

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/planner"
	"github.com/featden/featd/internal/storage"
)

// ServiceConfig is the configuration for the plan service.
type ServiceConfig struct {
	Planner    planner.Planner
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Planner == nil {
		return fmt.Errorf("planner is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Plan"})
	return nil
}

// Service handles planning and approval business logic.
type Service struct {
	planner planner.Planner
	repo    storage.Repository
	logger  log.Logger
}

// NewService creates a new plan service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		planner: cfg.Planner,
		repo:    cfg.Repository,
		logger:  cfg.Logger,
	}, nil
}

// GenerateOptions are the options for generating a plan.
type GenerateOptions struct {
	SessionID string
	Prompt    string
}

// GenerateResult is the outcome of a successful plan generation.
type GenerateResult struct {
	Session     *model.FeatureSession
	PlanMessage *model.Message
	Approval    *model.Approval
}

// Generate produces a plan for the session's feature request and parks it
// behind a pending approval. A planning backend failure rolls the session
// back so it never sticks in planning.
func (s *Service) Generate(ctx context.Context, opts GenerateOptions) (*GenerateResult, error) {
	if opts.Prompt == "" {
		return nil, fmt.Errorf("prompt is required: %w", model.ErrNotValid)
	}

	session, err := s.repo.GetSession(ctx, opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("could not get session: %w", err)
	}

	if err := session.TransitionTo(model.SessionStatusPlanning); err != nil {
		return nil, fmt.Errorf("session cannot start planning: %w", err)
	}
	if err := s.repo.UpdateSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("could not update session: %w", err)
	}

	history, err := s.repo.ListMessages(ctx, opts.SessionID)
	if err != nil {
		return nil, s.rollback(ctx, session, fmt.Errorf("could not load transcript: %w", err))
	}

	now := time.Now().UTC()
	userMsg := model.Message{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		SessionID: session.ID,
		Role:      model.MessageRoleUser,
		Content:   opts.Prompt,
		Phase:     model.MessagePhasePlanning,
		CreatedAt: now,
	}
	if err := s.repo.CreateMessage(ctx, userMsg); err != nil {
		return nil, s.rollback(ctx, session, fmt.Errorf("could not save prompt message: %w", err))
	}

	result, err := s.planner.GeneratePlan(ctx, planner.PlanRequest{
		SessionID:    session.ID,
		RepoFullName: session.RepoFullName,
		RepoURL:      session.RepoURL,
		BranchName:   session.BranchName,
		Prompt:       opts.Prompt,
		History:      history,
	})
	if err != nil {
		return nil, s.rollback(ctx, session, fmt.Errorf("could not generate plan: %w", err))
	}

	now = time.Now().UTC()
	planMsg, err := model.NewPlanMessage(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(), session.ID, *result, now)
	if err != nil {
		return nil, s.rollback(ctx, session, fmt.Errorf("could not build plan message: %w", err))
	}
	if err := s.repo.CreateMessage(ctx, *planMsg); err != nil {
		return nil, s.rollback(ctx, session, fmt.Errorf("could not save plan message: %w", err))
	}

	approval := model.Approval{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		SessionID: session.ID,
		MessageID: planMsg.ID,
		Status:    model.ApprovalStatusPending,
		CreatedAt: now,
	}
	if err := s.repo.CreateApproval(ctx, approval); err != nil {
		return nil, s.rollback(ctx, session, fmt.Errorf("could not create approval: %w", err))
	}

	if err := session.TransitionTo(model.SessionStatusPlanReview); err != nil {
		return nil, fmt.Errorf("could not move session to review: %w", err)
	}
	if err := s.repo.UpdateSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("could not update session: %w", err)
	}

	s.logger.WithValues(log.Kv{"session": session.ID}).Infof("Generated plan with %d changes, approval pending", len(result.Changes))

	return &GenerateResult{
		Session:     session,
		PlanMessage: planMsg,
		Approval:    &approval,
	}, nil
}

// rollback returns the session to idle so a failed planning attempt stays
// recoverable, the original error is always the one surfaced.
func (s *Service) rollback(ctx context.Context, session *model.FeatureSession, cause error) error {
	if err := session.TransitionTo(model.SessionStatusIdle); err != nil {
		s.logger.Errorf("Could not roll back session %s: %v", session.ID, err)
		return cause
	}
	if err := s.repo.UpdateSession(ctx, *session); err != nil {
		s.logger.Errorf("Could not persist rollback of session %s: %v", session.ID, err)
	}
	return cause
}

// ResolveOptions are the options for resolving a pending approval.
type ResolveOptions struct {
	SessionID  string
	Approve    bool
	ReviewerID string
	Comment    string
}

// Resolve decides the session's pending approval. Approval moves the session
// to building, rejection returns it to idle so the user can re-plan.
func (s *Service) Resolve(ctx context.Context, opts ResolveOptions) (*model.FeatureSession, error) {
	session, err := s.repo.GetSession(ctx, opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("could not get session: %w", err)
	}

	approval, err := s.repo.GetPendingApproval(ctx, opts.SessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("no pending approval for session %s: %w", opts.SessionID, err)
		}
		return nil, fmt.Errorf("could not get pending approval: %w", err)
	}

	status := model.ApprovalStatusRejected
	next := model.SessionStatusIdle
	if opts.Approve {
		status = model.ApprovalStatusApproved
		next = model.SessionStatusBuilding
	}

	if err := approval.Resolve(status, opts.ReviewerID, opts.Comment, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("could not resolve approval: %w", err)
	}
	if err := session.TransitionTo(next); err != nil {
		return nil, fmt.Errorf("session cannot leave review: %w", err)
	}

	if err := s.repo.UpdateApproval(ctx, *approval); err != nil {
		return nil, fmt.Errorf("could not update approval: %w", err)
	}
	if err := s.repo.UpdateSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("could not update session: %w", err)
	}

	decision := "Plan rejected, session returned to idle."
	if opts.Approve {
		decision = "Plan approved, starting build."
	}
	now := time.Now().UTC()
	decisionMsg := model.Message{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		SessionID: session.ID,
		Role:      model.MessageRoleSystem,
		Content:   decision,
		Phase:     model.MessagePhasePlanning,
		CreatedAt: now,
	}
	if err := s.repo.CreateMessage(ctx, decisionMsg); err != nil {
		return nil, fmt.Errorf("could not save decision message: %w", err)
	}

	s.logger.WithValues(log.Kv{"session": session.ID}).Infof("Approval resolved as %s", status)

	return session, nil
}
