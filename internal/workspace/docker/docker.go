package docker

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/workspace"
)

const containerPrefix = "featd-ws-"

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerPause(ctx context.Context, containerID string) error
	ContainerUnpause(ctx context.Context, containerID string) error
	ContainerCommit(ctx context.Context, containerID string, options container.CommitOptions) (container.CommitResponse, error)
}

// ProviderConfig is the configuration for the Docker workspace provider.
type ProviderConfig struct {
	Client DockerClient
	// DefaultImage is the image used when a workspace request does not set one.
	DefaultImage string
	Logger       log.Logger
}

func (c *ProviderConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.DefaultImage == "" {
		c.DefaultImage = "ubuntu:24.04"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "workspace.Docker"})
	return nil
}

// Provider hosts workspaces as local Docker containers. It is the self-hosted
// sandbox backend, remote vendors plug in through the same interface.
type Provider struct {
	client       DockerClient
	defaultImage string
	logger       log.Logger
}

// NewProvider creates a new Docker workspace provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Provider{
		client:       cfg.Client,
		defaultImage: cfg.DefaultImage,
		logger:       cfg.Logger,
	}, nil
}

// Kind returns the backend kind identifier.
func (p *Provider) Kind() model.WorkspaceProviderKind { return model.WorkspaceProviderKindDocker }

// Check performs preflight checks against the Docker daemon.
func (p *Provider) Check(ctx context.Context) []workspace.CheckResult {
	results := []workspace.CheckResult{}

	_, err := p.client.ContainerInspect(ctx, "featd-daemon-probe")
	if err != nil && !strings.Contains(err.Error(), "No such container") {
		results = append(results, workspace.CheckResult{Name: "docker-daemon", OK: false, Message: err.Error()})
	} else {
		results = append(results, workspace.CheckResult{Name: "docker-daemon", OK: true, Message: "daemon reachable"})
	}

	if _, err := exec.LookPath("docker"); err != nil {
		results = append(results, workspace.CheckResult{Name: "docker-cli", OK: false, Message: "docker binary not found in PATH"})
	} else {
		results = append(results, workspace.CheckResult{Name: "docker-cli", OK: true, Message: "docker binary available"})
	}

	return results
}

// Create provisions a new workspace container.
func (p *Provider) Create(ctx context.Context, opts workspace.CreateOptions) (string, error) {
	img := opts.Image
	if img == "" {
		img = p.defaultImage
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	containerName := containerPrefix + strings.ToLower(id)

	p.logger.Infof("Pulling image: %s", img)
	pullResp, err := p.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	// Consume the pull response to ensure it completes.
	_, _ = io.Copy(io.Discard, pullResp)
	pullResp.Close()

	var envVars []string
	for k, v := range opts.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", k, v))
	}

	containerConfig := &container.Config{
		Image: img,
		Env:   envVars,
		Cmd:   []string{"tail", "-f", "/dev/null"}, // Keep container running.
		Labels: map[string]string{
			"featd.workspace": "true",
		},
	}

	p.logger.Infof("Creating workspace container: %s", containerName)
	resp, err := p.client.ContainerCreate(ctx, containerConfig, &container.HostConfig{}, nil, nil, containerName)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Best effort cleanup of the half-created container.
		if rmErr := p.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			p.logger.Warningf("could not remove container after failed start: %v", rmErr)
		}
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	p.logger.Infof("Created workspace %s (%s)", containerName, resp.ID)

	return containerName, nil
}

// Status queries the live container state.
func (p *Provider) Status(ctx context.Context, workspaceID string) (model.SandboxStatus, error) {
	info, err := p.client.ContainerInspect(ctx, workspaceID)
	if err != nil {
		if strings.Contains(err.Error(), "No such container") {
			return "", fmt.Errorf("workspace %s: %w", workspaceID, model.ErrNotFound)
		}
		return "", fmt.Errorf("failed to inspect workspace %s: %w", workspaceID, err)
	}

	switch info.State.Status {
	case "created":
		return model.SandboxStatusProvisioning, nil
	case "running":
		return model.SandboxStatusRunning, nil
	case "paused", "exited":
		return model.SandboxStatusPaused, nil
	default:
		return model.SandboxStatusError, nil
	}
}

// Resume unpauses or restarts the workspace container and waits until it runs.
func (p *Provider) Resume(ctx context.Context, workspaceID string) error {
	info, err := p.client.ContainerInspect(ctx, workspaceID)
	if err != nil {
		if strings.Contains(err.Error(), "No such container") {
			return fmt.Errorf("workspace %s: %w", workspaceID, model.ErrNotFound)
		}
		return fmt.Errorf("failed to inspect workspace: %w", err)
	}

	switch info.State.Status {
	case "running":
		return nil
	case "paused":
		if err := p.client.ContainerUnpause(ctx, workspaceID); err != nil {
			return fmt.Errorf("failed to unpause workspace: %w", err)
		}
	case "exited", "created":
		if err := p.client.ContainerStart(ctx, workspaceID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start workspace: %w", err)
		}
	default:
		return fmt.Errorf("workspace %s in state %q cannot be resumed: %w", workspaceID, info.State.Status, model.ErrNotValid)
	}

	// Block until the provider reports running, the caller owns the timeout.
	for {
		status, err := p.Status(ctx, workspaceID)
		if err != nil {
			return err
		}
		if status == model.SandboxStatusRunning {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for workspace to resume: %w", ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Pause stops the workspace container, its filesystem is preserved.
func (p *Provider) Pause(ctx context.Context, workspaceID string) error {
	if err := p.client.ContainerPause(ctx, workspaceID); err != nil {
		if strings.Contains(err.Error(), "No such container") {
			return fmt.Errorf("workspace %s: %w", workspaceID, model.ErrNotFound)
		}
		return fmt.Errorf("failed to pause workspace: %w", err)
	}
	return nil
}

// Delete removes the workspace container.
func (p *Provider) Delete(ctx context.Context, workspaceID string) error {
	err := p.client.ContainerRemove(ctx, workspaceID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		if strings.Contains(err.Error(), "No such container") {
			return fmt.Errorf("workspace %s: %w", workspaceID, model.ErrNotFound)
		}
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	return nil
}

// Exec executes a command inside the workspace using the docker CLI, so
// stdio streaming works without reimplementing the attach protocol.
func (p *Provider) Exec(ctx context.Context, workspaceID string, command []string, opts workspace.ExecOpts) (*workspace.ExecResult, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("command cannot be empty: %w", model.ErrNotValid)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{"exec", "-i"}
	if opts.WorkingDir != "" {
		args = append(args, "-w", opts.WorkingDir)
	}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, workspaceID)
	args = append(args, command...)

	p.logger.Debugf("Executing command in workspace %s: docker %v", workspaceID, args)

	cmd := exec.CommandContext(ctx, "docker", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = opts.Stdin
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	} else {
		cmd.Stdout = &stdout
	}
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			if strings.Contains(err.Error(), "No such container") {
				return nil, fmt.Errorf("workspace %s: %w", workspaceID, model.ErrNotFound)
			}
			if strings.Contains(err.Error(), "is not running") {
				return nil, fmt.Errorf("workspace %s is not running: %w", workspaceID, model.ErrNotValid)
			}
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
	}

	return &workspace.ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// UploadFile writes a file into the workspace filesystem.
func (p *Provider) UploadFile(ctx context.Context, workspaceID, path string, content []byte) error {
	result, err := p.Exec(ctx, workspaceID, []string{"sh", "-c", fmt.Sprintf("mkdir -p \"$(dirname %q)\" && cat > %q", path, path)}, workspace.ExecOpts{
		Stdin: bytes.NewReader(content),
	})
	if err != nil {
		return fmt.Errorf("could not upload file %q: %w", path, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("could not upload file %q: exit code %d: %s", path, result.ExitCode, result.Stderr)
	}
	return nil
}

// DownloadFile reads a file from the workspace filesystem.
func (p *Provider) DownloadFile(ctx context.Context, workspaceID, path string) ([]byte, error) {
	var stdout bytes.Buffer
	result, err := p.Exec(ctx, workspaceID, []string{"cat", path}, workspace.ExecOpts{Stdout: &stdout})
	if err != nil {
		return nil, fmt.Errorf("could not download file %q: %w", path, err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("file %q: %w", path, model.ErrNotFound)
	}
	return stdout.Bytes(), nil
}

// CreateSnapshot commits the workspace container as an image.
func (p *Provider) CreateSnapshot(ctx context.Context, workspaceID, label string) (string, error) {
	ref := fmt.Sprintf("featd-snapshot-%s:%d", strings.ToLower(label), time.Now().UTC().Unix())

	resp, err := p.client.ContainerCommit(ctx, workspaceID, container.CommitOptions{Reference: ref})
	if err != nil {
		return "", fmt.Errorf("failed to commit workspace: %w", err)
	}

	p.logger.Infof("Created snapshot %s (%s) from workspace %s", ref, resp.ID, workspaceID)
	return ref, nil
}

// RestoreSnapshot is not supported in place for containers, a restore is a
// recreate from the snapshot image.
func (p *Provider) RestoreSnapshot(ctx context.Context, workspaceID, snapshotID string) error {
	return fmt.Errorf("docker provider restores by recreating from snapshot image %q: %w", snapshotID, model.ErrNotValid)
}

// PreviewURL returns the container-IP URL for a service port.
func (p *Provider) PreviewURL(ctx context.Context, workspaceID string, port int) (string, error) {
	info, err := p.client.ContainerInspect(ctx, workspaceID)
	if err != nil {
		if strings.Contains(err.Error(), "No such container") {
			return "", fmt.Errorf("workspace %s: %w", workspaceID, model.ErrNotFound)
		}
		return "", fmt.Errorf("failed to inspect workspace: %w", err)
	}

	if info.NetworkSettings == nil || info.NetworkSettings.IPAddress == "" {
		return "", fmt.Errorf("workspace %s has no reachable address: %w", workspaceID, model.ErrNotValid)
	}

	return fmt.Sprintf("http://%s:%d", info.NetworkSettings.IPAddress, port), nil
}
