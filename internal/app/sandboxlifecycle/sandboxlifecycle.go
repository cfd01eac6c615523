// Package sandboxlifecycle manages the sandbox attached to a repository,
// provisioning, resume, pause and teardown. There is at most one sandbox per
// repository, concurrent sessions on the same repository share it.
package sandboxlifecycle

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/storage"
	"github.com/featden/featd/internal/workspace"
)

const (
	// workspaceDir is where the repository checkout lives inside every
	// workspace, agents and the publisher operate on the same path.
	workspaceDir = "/workspace"

	bootstrapTimeout = 5 * time.Minute
)

// ServiceConfig is the configuration for the sandbox lifecycle service.
type ServiceConfig struct {
	Workspace  workspace.Provider
	Repository storage.Repository
	// Image is the workspace image used for new sandboxes.
	Image string
	// RuntimeInstallCommand runs inside the workspace after the repository
	// checkout and again after every resume, it starts the in-sandbox agent
	// runtime the selected agent backend talks to. Empty means the backend
	// runs in process and needs nothing inside the workspace.
	RuntimeInstallCommand []string
	Logger                log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Workspace == nil {
		return fmt.Errorf("workspace provider is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Image == "" {
		c.Image = "ghcr.io/featden/workspace:latest"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.SandboxLifecycle"})
	return nil
}

// Service handles sandbox lifecycle business logic.
type Service struct {
	workspace  workspace.Provider
	repo       storage.Repository
	image      string
	runtimeCmd []string
	logger     log.Logger

	// mu serializes provisioning per repository so concurrent callers do not
	// both create a workspace and race on the unique constraint.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a new sandbox lifecycle service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		workspace:  cfg.Workspace,
		repo:       cfg.Repository,
		image:      cfg.Image,
		runtimeCmd: cfg.RuntimeInstallCommand,
		logger:     cfg.Logger,
		locks:      map[string]*sync.Mutex{},
	}, nil
}

func (s *Service) repoLock(repoID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[repoID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[repoID] = l
	}
	return l
}

// ProvisionOptions identify the repository a sandbox serves and what gets
// checked out into its workspace.
type ProvisionOptions struct {
	RepositoryID string
	// RepoURL is cloned into the workspace when a new sandbox is provisioned.
	RepoURL string
	// Branch is checked out on clone, empty means the repository default.
	Branch string
}

func (o ProvisionOptions) validate() error {
	if o.RepositoryID == "" {
		return fmt.Errorf("repository id is required: %w", model.ErrNotValid)
	}
	if o.RepoURL == "" {
		return fmt.Errorf("repository URL is required: %w", model.ErrNotValid)
	}
	return nil
}

// GetOrCreateForRepository returns the repository's sandbox, provisioning one
// when none exists. Provisioning boots a workspace, clones the repository
// into it and installs the agent runtime before the sandbox row is persisted.
// Losing a concurrent create on another instance degrades into a lookup of
// the winner's row.
func (s *Service) GetOrCreateForRepository(ctx context.Context, opts ProvisionOptions) (*model.Sandbox, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	l := s.repoLock(opts.RepositoryID)
	l.Lock()
	defer l.Unlock()

	sandbox, err := s.repo.GetSandboxByRepository(ctx, opts.RepositoryID)
	if err == nil {
		return sandbox, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not check for existing sandbox: %w", err)
	}

	workspaceID, err := s.workspace.Create(ctx, workspace.CreateOptions{Image: s.image})
	if err != nil {
		return nil, fmt.Errorf("could not provision workspace: %w", err)
	}

	if err := s.bootstrap(ctx, workspaceID, opts); err != nil {
		if derr := s.workspace.Delete(ctx, workspaceID); derr != nil {
			s.logger.Warningf("Could not clean up workspace %s after failed bootstrap: %v", workspaceID, derr)
		}
		return nil, fmt.Errorf("could not bootstrap workspace: %w", err)
	}

	now := time.Now().UTC()
	newSandbox := model.Sandbox{
		ID:           ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		RepositoryID: opts.RepositoryID,
		WorkspaceID:  workspaceID,
		ProviderKind: s.workspace.Kind(),
		Status:       model.SandboxStatusRunning,
		LastActiveAt: now,
		CreatedAt:    now,
	}

	err = s.repo.CreateSandbox(ctx, newSandbox)
	if errors.Is(err, model.ErrAlreadyExists) {
		// Another instance won the race, drop ours and use theirs.
		if derr := s.workspace.Delete(ctx, workspaceID); derr != nil {
			s.logger.Warningf("Could not clean up losing workspace %s: %v", workspaceID, derr)
		}
		return s.repo.GetSandboxByRepository(ctx, opts.RepositoryID)
	}
	if err != nil {
		return nil, fmt.Errorf("could not save sandbox: %w", err)
	}

	s.logger.Infof("Provisioned sandbox %s for repository %s", newSandbox.ID, opts.RepositoryID)

	return &newSandbox, nil
}

// bootstrap seeds a fresh workspace with the repository checkout and the
// in-sandbox agent runtime. The checkout survives pause cycles on disk, so
// it only runs on provisioning.
func (s *Service) bootstrap(ctx context.Context, workspaceID string, opts ProvisionOptions) error {
	args := []string{"git", "clone"}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	args = append(args, opts.RepoURL, workspaceDir)

	if err := s.execStep(ctx, workspaceID, args, ""); err != nil {
		return fmt.Errorf("could not clone repository: %w", err)
	}

	return s.installRuntime(ctx, workspaceID)
}

// installRuntime starts the in-sandbox agent runtime. It runs on provisioning
// and again after every resume, a resumed workspace keeps its disk but not
// its processes.
func (s *Service) installRuntime(ctx context.Context, workspaceID string) error {
	if len(s.runtimeCmd) == 0 {
		return nil
	}

	if err := s.execStep(ctx, workspaceID, s.runtimeCmd, workspaceDir); err != nil {
		return fmt.Errorf("could not install agent runtime: %w", err)
	}
	return nil
}

func (s *Service) execStep(ctx context.Context, workspaceID string, command []string, dir string) error {
	res, err := s.workspace.Exec(ctx, workspaceID, command, workspace.ExecOpts{
		WorkingDir: dir,
		Timeout:    bootstrapTimeout,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited with code %d: %s", command[0], res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// EnsureRunning checks live provider status and resumes the sandbox when it
// is paused, blocking until the provider reports running. The stored status
// follows what the provider reports.
func (s *Service) EnsureRunning(ctx context.Context, sandboxID string) (*model.Sandbox, error) {
	sandbox, err := s.repo.GetSandbox(ctx, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("could not get sandbox: %w", err)
	}

	status, err := s.workspace.Status(ctx, sandbox.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("could not get workspace status: %w", err)
	}

	if status != model.SandboxStatusRunning {
		s.logger.Infof("Resuming sandbox %s (workspace status %s)", sandbox.ID, status)
		if err := s.workspace.Resume(ctx, sandbox.WorkspaceID); err != nil {
			sandbox.Status = model.SandboxStatusError
			_ = s.repo.UpdateSandbox(ctx, *sandbox)
			return nil, fmt.Errorf("could not resume workspace: %w", err)
		}
		// The checkout is still on disk but the runtime process is gone,
		// bring it back before anyone talks to the sandbox.
		if err := s.installRuntime(ctx, sandbox.WorkspaceID); err != nil {
			sandbox.Status = model.SandboxStatusError
			_ = s.repo.UpdateSandbox(ctx, *sandbox)
			return nil, fmt.Errorf("could not restore workspace after resume: %w", err)
		}
	}

	sandbox.Status = model.SandboxStatusRunning
	sandbox.LastActiveAt = time.Now().UTC()
	if err := s.repo.UpdateSandbox(ctx, *sandbox); err != nil {
		return nil, fmt.Errorf("could not update sandbox: %w", err)
	}

	return sandbox, nil
}

// GetScoped resolves the sandbox only when the organization owns it.
// Sandboxes carry no organization of their own, ownership is derived from the
// organization's sessions on the sandbox's repository; a foreign sandbox is
// indistinguishable from a missing one.
func (s *Service) GetScoped(ctx context.Context, orgID, sandboxID string) (*model.Sandbox, error) {
	sandbox, err := s.repo.GetSandbox(ctx, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("could not get sandbox: %w", err)
	}

	sessions, err := s.repo.ListSessionsByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("could not list organization sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.RepositoryID == sandbox.RepositoryID {
			return sandbox, nil
		}
	}

	return nil, fmt.Errorf("sandbox %s: %w", sandboxID, model.ErrNotFound)
}

// Pause pauses the sandbox. The provider call is best effort, the stored
// status is updated regardless so the idle policy does not retry forever.
func (s *Service) Pause(ctx context.Context, orgID, sandboxID string) error {
	sandbox, err := s.GetScoped(ctx, orgID, sandboxID)
	if err != nil {
		return err
	}

	if err := s.workspace.Pause(ctx, sandbox.WorkspaceID); err != nil {
		s.logger.Warningf("Could not pause workspace %s: %v", sandbox.WorkspaceID, err)
	}

	sandbox.Status = model.SandboxStatusPaused
	if err := s.repo.UpdateSandbox(ctx, *sandbox); err != nil {
		return fmt.Errorf("could not update sandbox: %w", err)
	}

	s.logger.Infof("Paused sandbox %s", sandbox.ID)
	return nil
}

// Delete removes the sandbox. The provider-side delete is best effort, a
// remote failure never blocks removing the local record.
func (s *Service) Delete(ctx context.Context, orgID, sandboxID string) error {
	sandbox, err := s.GetScoped(ctx, orgID, sandboxID)
	if err != nil {
		return err
	}

	if err := s.workspace.Delete(ctx, sandbox.WorkspaceID); err != nil {
		s.logger.Warningf("Could not delete workspace %s, leaving it for reconciliation: %v", sandbox.WorkspaceID, err)
	}

	if err := s.repo.DeleteSandbox(ctx, sandboxID); err != nil {
		return fmt.Errorf("could not delete sandbox: %w", err)
	}

	s.logger.Infof("Deleted sandbox %s", sandboxID)
	return nil
}

// Touch updates the last-active timestamp, the external idle policy reads it
// to decide when to pause.
func (s *Service) Touch(ctx context.Context, sandboxID string) error {
	sandbox, err := s.repo.GetSandbox(ctx, sandboxID)
	if err != nil {
		return fmt.Errorf("could not get sandbox: %w", err)
	}

	sandbox.LastActiveAt = time.Now().UTC()
	if err := s.repo.UpdateSandbox(ctx, *sandbox); err != nil {
		return fmt.Errorf("could not update sandbox: %w", err)
	}

	return nil
}
