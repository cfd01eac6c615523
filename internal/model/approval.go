package model

import (
	"fmt"
	"time"
)

// ApprovalStatus represents the status of a plan approval.
type ApprovalStatus string

const (
	// ApprovalStatusPending indicates the plan is waiting for a human decision.
	ApprovalStatusPending ApprovalStatus = "pending"
	// ApprovalStatusApproved indicates the plan was approved.
	ApprovalStatusApproved ApprovalStatus = "approved"
	// ApprovalStatusRejected indicates the plan was rejected.
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Approval gates progression from plan to build. A session has at most one
// pending approval at a time, a new plan round supersedes the previous one by
// creating a fresh pending record.
type Approval struct {
	ID        string
	SessionID string
	// MessageID references the plan message this approval decides on.
	MessageID  string
	Status     ApprovalStatus
	ReviewerID string
	Comment    string
	ReviewedAt *time.Time
	CreatedAt  time.Time
}

// Validate validates the approval.
func (a *Approval) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if a.SessionID == "" {
		return fmt.Errorf("session id is required: %w", ErrNotValid)
	}
	if a.MessageID == "" {
		return fmt.Errorf("message id is required: %w", ErrNotValid)
	}
	switch a.Status {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
	default:
		return fmt.Errorf("unknown approval status %q: %w", a.Status, ErrNotValid)
	}
	return nil
}

// Resolve stamps a terminal status on a pending approval.
func (a *Approval) Resolve(status ApprovalStatus, reviewerID, comment string, now time.Time) error {
	if a.Status != ApprovalStatusPending {
		return fmt.Errorf("approval %s already resolved as %q: %w", a.ID, a.Status, ErrPreconditionFailed)
	}
	if status != ApprovalStatusApproved && status != ApprovalStatusRejected {
		return fmt.Errorf("resolution status must be approved or rejected, got %q: %w", status, ErrNotValid)
	}

	a.Status = status
	a.ReviewerID = reviewerID
	a.Comment = comment
	reviewed := now
	a.ReviewedAt = &reviewed
	return nil
}
