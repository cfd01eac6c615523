// Package checkpoint creates and lists point-in-time markers of a sandbox.
// The local record is the primary artifact, the provider-side snapshot is a
// best-effort enrichment that makes the checkpoint restorable.
package checkpoint

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/featden/featd/internal/app/sandboxlifecycle"
	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/storage"
	"github.com/featden/featd/internal/workspace"
)

// ServiceConfig is the configuration for the checkpoint service.
type ServiceConfig struct {
	Workspace workspace.Provider
	// Lifecycle resolves sandboxes within the caller's organization scope.
	Lifecycle  *sandboxlifecycle.Service
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Workspace == nil {
		return fmt.Errorf("workspace provider is required")
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Checkpoint"})
	return nil
}

// Service handles checkpoint business logic.
type Service struct {
	workspace workspace.Provider
	life      *sandboxlifecycle.Service
	repo      storage.Repository
	logger    log.Logger
}

// NewService creates a new checkpoint service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		workspace: cfg.Workspace,
		life:      cfg.Lifecycle,
		repo:      cfg.Repository,
		logger:    cfg.Logger,
	}, nil
}

// CreateOptions are the options for creating a checkpoint.
type CreateOptions struct {
	OrgID     string
	SandboxID string
	Label     string
	// SessionID optionally ties the checkpoint to a session, the session must
	// belong to the organization and be bound to the same sandbox.
	SessionID *string
	Type      model.CheckpointType
}

// Create creates a checkpoint. The record write and the last-checkpoint
// pointer are the primary operation, the provider snapshot afterwards is best
// effort and its failure only leaves the checkpoint non-restorable.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*model.Checkpoint, error) {
	if opts.Label == "" {
		return nil, fmt.Errorf("label is required: %w", model.ErrNotValid)
	}
	if opts.Type == "" {
		opts.Type = model.CheckpointTypeManual
	}

	sandbox, err := s.life.GetScoped(ctx, opts.OrgID, opts.SandboxID)
	if err != nil {
		return nil, err
	}

	if opts.SessionID != nil {
		session, err := s.repo.GetSession(ctx, *opts.SessionID)
		if err != nil {
			return nil, fmt.Errorf("could not get session: %w", err)
		}
		// A foreign session is as invisible as a missing one.
		if session.OrganizationID != opts.OrgID {
			return nil, fmt.Errorf("session %s: %w", *opts.SessionID, model.ErrNotFound)
		}
		if session.SandboxID == nil || *session.SandboxID != sandbox.ID {
			return nil, fmt.Errorf("session %s is not bound to sandbox %s: %w", session.ID, sandbox.ID, model.ErrPreconditionFailed)
		}
	}

	now := time.Now().UTC()
	checkpoint := model.Checkpoint{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		SessionID: opts.SessionID,
		SandboxID: sandbox.ID,
		Label:     opts.Label,
		Type:      opts.Type,
		CreatedAt: now,
	}
	if err := checkpoint.Validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint: %w", err)
	}

	if err := s.repo.CreateCheckpoint(ctx, checkpoint); err != nil {
		return nil, fmt.Errorf("could not save checkpoint: %w", err)
	}

	sandbox.LastCheckpointID = &checkpoint.ID
	if err := s.repo.UpdateSandbox(ctx, *sandbox); err != nil {
		return nil, fmt.Errorf("could not update sandbox checkpoint pointer: %w", err)
	}

	// Best effort from here on, the record already stands on its own.
	snapshotID, err := s.workspace.CreateSnapshot(ctx, sandbox.WorkspaceID, opts.Label)
	if err != nil {
		s.logger.Warningf("Could not snapshot workspace %s, checkpoint %s is not restorable: %v", sandbox.WorkspaceID, checkpoint.ID, err)
		return &checkpoint, nil
	}

	checkpoint.ProviderSnapshotID = &snapshotID
	if err := s.repo.UpdateCheckpoint(ctx, checkpoint); err != nil {
		s.logger.Warningf("Could not attach snapshot %s to checkpoint %s: %v", snapshotID, checkpoint.ID, err)
		checkpoint.ProviderSnapshotID = nil
		return &checkpoint, nil
	}

	s.logger.Infof("Created checkpoint %s (%s) on sandbox %s", checkpoint.ID, opts.Label, sandbox.ID)

	return &checkpoint, nil
}

// List returns the sandbox's checkpoints newest first.
func (s *Service) List(ctx context.Context, orgID, sandboxID string) ([]model.Checkpoint, error) {
	if _, err := s.life.GetScoped(ctx, orgID, sandboxID); err != nil {
		return nil, err
	}

	checkpoints, err := s.repo.ListCheckpointsBySandbox(ctx, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("could not list checkpoints: %w", err)
	}

	return checkpoints, nil
}
