package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/workspace"
)

// ProviderConfig is the configuration for the fake workspace provider.
type ProviderConfig struct {
	// ExecHandler overrides command execution when set, tests use it to
	// script git and agent-runtime behavior.
	ExecHandler func(workspaceID string, command []string) (*workspace.ExecResult, error)
	// SnapshotErr makes every snapshot attempt fail when set.
	SnapshotErr error
	Logger      log.Logger
}

func (c *ProviderConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "workspace.Fake"})
	return nil
}

type fakeWorkspace struct {
	id        string
	status    model.SandboxStatus
	files     map[string][]byte
	snapshots []string
}

// Provider is a fake implementation of the workspace.Provider interface.
// It simulates workspace lifecycle without any real execution environment.
type Provider struct {
	workspaces  map[string]*fakeWorkspace
	execHandler func(workspaceID string, command []string) (*workspace.ExecResult, error)
	snapshotErr error
	mu          sync.RWMutex
	logger      log.Logger
}

// NewProvider creates a new fake workspace provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Provider{
		workspaces:  make(map[string]*fakeWorkspace),
		execHandler: cfg.ExecHandler,
		snapshotErr: cfg.SnapshotErr,
		logger:      cfg.Logger,
	}, nil
}

// Kind returns the backend kind identifier.
func (p *Provider) Kind() model.WorkspaceProviderKind { return model.WorkspaceProviderKindFake }

// Check always passes.
func (p *Provider) Check(ctx context.Context) []workspace.CheckResult {
	return []workspace.CheckResult{{Name: "fake", OK: true, Message: "fake provider is always ready"}}
}

// Create provisions a new fake workspace.
func (p *Provider) Create(ctx context.Context, opts workspace.CreateOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := "fake-ws-" + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	p.workspaces[id] = &fakeWorkspace{
		id:     id,
		status: model.SandboxStatusRunning,
		files:  make(map[string][]byte),
	}

	p.logger.Debugf("Created fake workspace: %s", id)
	return id, nil
}

func (p *Provider) get(workspaceID string) (*fakeWorkspace, error) {
	ws, ok := p.workspaces[workspaceID]
	if !ok {
		return nil, fmt.Errorf("workspace %s: %w", workspaceID, model.ErrNotFound)
	}
	return ws, nil
}

// Status returns the simulated workspace status.
func (p *Provider) Status(ctx context.Context, workspaceID string) (model.SandboxStatus, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ws, err := p.get(workspaceID)
	if err != nil {
		return "", err
	}
	return ws.status, nil
}

// SetStatus forces a workspace status, tests use it to simulate pauses.
func (p *Provider) SetStatus(workspaceID string, status model.SandboxStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ws, ok := p.workspaces[workspaceID]; ok {
		ws.status = status
	}
}

// Resume marks the workspace running.
func (p *Provider) Resume(ctx context.Context, workspaceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ws, err := p.get(workspaceID)
	if err != nil {
		return err
	}
	ws.status = model.SandboxStatusRunning
	return nil
}

// Pause marks the workspace paused.
func (p *Provider) Pause(ctx context.Context, workspaceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ws, err := p.get(workspaceID)
	if err != nil {
		return err
	}
	ws.status = model.SandboxStatusPaused
	return nil
}

// Delete removes the workspace.
func (p *Provider) Delete(ctx context.Context, workspaceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.get(workspaceID); err != nil {
		return err
	}
	delete(p.workspaces, workspaceID)
	return nil
}

// Exec runs the scripted exec handler, or succeeds silently without one.
func (p *Provider) Exec(ctx context.Context, workspaceID string, command []string, opts workspace.ExecOpts) (*workspace.ExecResult, error) {
	p.mu.RLock()
	ws, err := p.get(workspaceID)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if ws.status != model.SandboxStatusRunning {
		return nil, fmt.Errorf("workspace %s is not running: %w", workspaceID, model.ErrNotValid)
	}

	if p.execHandler != nil {
		return p.execHandler(workspaceID, command)
	}
	return &workspace.ExecResult{ExitCode: 0}, nil
}

// UploadFile stores the file in the fake filesystem.
func (p *Provider) UploadFile(ctx context.Context, workspaceID, path string, content []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ws, err := p.get(workspaceID)
	if err != nil {
		return err
	}
	ws.files[path] = append([]byte(nil), content...)
	return nil
}

// DownloadFile reads a file from the fake filesystem.
func (p *Provider) DownloadFile(ctx context.Context, workspaceID, path string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ws, err := p.get(workspaceID)
	if err != nil {
		return nil, err
	}
	content, ok := ws.files[path]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", path, model.ErrNotFound)
	}
	return append([]byte(nil), content...), nil
}

// CreateSnapshot records a snapshot ID, or fails when scripted to.
func (p *Provider) CreateSnapshot(ctx context.Context, workspaceID, label string) (string, error) {
	if p.snapshotErr != nil {
		return "", p.snapshotErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ws, err := p.get(workspaceID)
	if err != nil {
		return "", err
	}

	id := fmt.Sprintf("fake-snap-%s-%d", label, len(ws.snapshots)+1)
	ws.snapshots = append(ws.snapshots, id)
	return id, nil
}

// RestoreSnapshot verifies the snapshot exists.
func (p *Provider) RestoreSnapshot(ctx context.Context, workspaceID, snapshotID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ws, err := p.get(workspaceID)
	if err != nil {
		return err
	}
	for _, s := range ws.snapshots {
		if s == snapshotID {
			return nil
		}
	}
	return fmt.Errorf("snapshot %s: %w", snapshotID, model.ErrNotFound)
}

// PreviewURL returns a deterministic fake URL.
func (p *Provider) PreviewURL(ctx context.Context, workspaceID string, port int) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, err := p.get(workspaceID); err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s.preview.local:%d", workspaceID, port), nil
}
