package model

import (
	"fmt"
	"time"
)

// SessionStatus represents the status of a feature session.
type SessionStatus string

const (
	// SessionStatusIdle indicates the session can accept new work.
	SessionStatusIdle SessionStatus = "idle"
	// SessionStatusPlanning indicates a plan is being generated.
	SessionStatusPlanning SessionStatus = "planning"
	// SessionStatusPlanReview indicates a plan is waiting for a human decision.
	SessionStatusPlanReview SessionStatus = "plan_review"
	// SessionStatusBuilding indicates an approved plan is being executed.
	SessionStatusBuilding SessionStatus = "building"
	// SessionStatusReady indicates a build completed and a preview/PR flow may begin.
	SessionStatusReady SessionStatus = "ready"
	// SessionStatusReviewing indicates a pull request has been opened for review.
	SessionStatusReviewing SessionStatus = "reviewing"
	// SessionStatusError indicates the last build failed and the session needs a retry.
	SessionStatusError SessionStatus = "error"
)

// sessionTransitions is the authoritative transition table. A session may only
// move to a status listed for its current one, anything else is a precondition
// failure. planning -> idle is the rollback path when plan generation fails.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusIdle:       {SessionStatusPlanning},
	SessionStatusPlanning:   {SessionStatusPlanReview, SessionStatusIdle},
	SessionStatusPlanReview: {SessionStatusBuilding, SessionStatusIdle},
	SessionStatusBuilding:   {SessionStatusBuilding, SessionStatusIdle, SessionStatusReady, SessionStatusError},
	SessionStatusReady:      {SessionStatusReviewing},
	SessionStatusReviewing:  {},
	SessionStatusError:      {SessionStatusIdle},
}

// FeatureSession is a unit of feature work tied to one repository and branch.
type FeatureSession struct {
	ID             string
	OrganizationID string
	RepositoryID   string
	// RepoFullName and RepoURL are denormalized from the repository so the
	// orchestration engine can clone and open PRs without a repository store.
	RepoFullName string
	RepoURL      string
	Name         string
	BranchName   string
	Status       SessionStatus
	// SandboxID is the sandbox bound to this session, set lazily on the first
	// build-requiring action.
	SandboxID *string
	// AgentSessionID is the provider session handle bound to this session.
	AgentSessionID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanTransitionTo reports whether moving to next is allowed from the current status.
func (s *FeatureSession) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the session to the next status, enforcing the transition
// table. Illegal transitions fail with ErrPreconditionFailed and leave the
// status unchanged.
func (s *FeatureSession) TransitionTo(next SessionStatus) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("session %s cannot move from %q to %q: %w", s.ID, s.Status, next, ErrPreconditionFailed)
	}

	s.Status = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Validate validates the feature session.
func (s *FeatureSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if s.OrganizationID == "" {
		return fmt.Errorf("organization id is required: %w", ErrNotValid)
	}
	if s.RepositoryID == "" {
		return fmt.Errorf("repository id is required: %w", ErrNotValid)
	}
	if s.RepoFullName == "" {
		return fmt.Errorf("repository full name is required: %w", ErrNotValid)
	}
	if s.Name == "" {
		return fmt.Errorf("name is required: %w", ErrNotValid)
	}
	if s.BranchName == "" {
		return fmt.Errorf("branch name is required: %w", ErrNotValid)
	}
	if _, ok := sessionTransitions[s.Status]; !ok {
		return fmt.Errorf("unknown session status %q: %w", s.Status, ErrNotValid)
	}
	return nil
}
