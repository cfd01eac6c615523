package workspace

import (
	"context"
	"io"
	"time"

	"github.com/featden/featd/internal/model"
)

// CreateOptions configures workspace creation.
type CreateOptions struct {
	// Image is the base environment image to boot.
	Image string
	// Env variables set in the workspace.
	Env map[string]string
}

// ExecOpts are the options for executing a command in a workspace.
type ExecOpts struct {
	WorkingDir string
	Env        map[string]string
	Timeout    time.Duration
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// ExecResult is the result of executing a command in a workspace.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CheckResult is a single preflight check result.
type CheckResult struct {
	Name    string
	OK      bool
	Message string
}

// Provider is the interface for sandbox workspace backends. Implementations
// host remote execution environments and must be safe for concurrent use.
type Provider interface {
	// Kind returns the backend kind identifier.
	Kind() model.WorkspaceProviderKind

	// Check performs preflight checks and returns the results.
	// Checks verify that the provider has all required dependencies and permissions.
	Check(ctx context.Context) []CheckResult

	// Create provisions a new workspace and returns its provider-native ID.
	Create(ctx context.Context, opts CreateOptions) (workspaceID string, err error)

	// Status queries the live status of a workspace from the backing provider.
	Status(ctx context.Context, workspaceID string) (model.SandboxStatus, error)

	// Resume resumes a paused workspace and blocks until it reports running.
	// In-memory state is not preserved across a pause/resume cycle, callers
	// must re-establish any execution context afterwards.
	Resume(ctx context.Context, workspaceID string) error

	// Pause pauses a running workspace.
	Pause(ctx context.Context, workspaceID string) error

	// Delete removes a workspace and all its resources.
	Delete(ctx context.Context, workspaceID string) error

	// Exec executes a shell command inside the workspace.
	Exec(ctx context.Context, workspaceID string, command []string, opts ExecOpts) (*ExecResult, error)

	// UploadFile writes a file into the workspace filesystem.
	UploadFile(ctx context.Context, workspaceID, path string, content []byte) error

	// DownloadFile reads a file from the workspace filesystem.
	DownloadFile(ctx context.Context, workspaceID, path string) ([]byte, error)

	// CreateSnapshot creates a point-in-time snapshot of the workspace and
	// returns the provider-native snapshot ID.
	CreateSnapshot(ctx context.Context, workspaceID, label string) (snapshotID string, err error)

	// RestoreSnapshot restores the workspace from a previously created snapshot.
	RestoreSnapshot(ctx context.Context, workspaceID, snapshotID string) error

	// PreviewURL returns a reachable URL for a service listening on the given
	// port inside the workspace.
	PreviewURL(ctx context.Context, workspaceID string, port int) (string, error)
}
