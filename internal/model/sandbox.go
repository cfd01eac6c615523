package model

import (
	"fmt"
	"time"
)

// WorkspaceProviderKind identifies the backend that hosts a sandbox workspace.
type WorkspaceProviderKind string

const (
	// WorkspaceProviderKindDocker runs sandboxes as local Docker containers.
	WorkspaceProviderKindDocker WorkspaceProviderKind = "docker"
	// WorkspaceProviderKindFake simulates sandboxes in memory, used for tests.
	WorkspaceProviderKindFake WorkspaceProviderKind = "fake"
)

// SandboxStatus represents the status of a sandbox.
type SandboxStatus string

const (
	// SandboxStatusProvisioning indicates the sandbox is being created.
	SandboxStatusProvisioning SandboxStatus = "provisioning"
	// SandboxStatusRunning indicates the sandbox is running.
	SandboxStatusRunning SandboxStatus = "running"
	// SandboxStatusPaused indicates the sandbox is paused.
	SandboxStatusPaused SandboxStatus = "paused"
	// SandboxStatusError indicates the sandbox is in an error state.
	SandboxStatusError SandboxStatus = "error"
)

// Sandbox represents a remote execution environment bound to one repository.
// Exactly one sandbox exists per repository, created lazily and reused across
// sessions on that repository.
type Sandbox struct {
	ID           string
	RepositoryID string
	// WorkspaceID is the backing provider's workspace identifier.
	WorkspaceID      string
	ProviderKind     WorkspaceProviderKind
	Status           SandboxStatus
	LastActiveAt     time.Time
	LastCheckpointID *string
	CreatedAt        time.Time
}

// Validate validates the sandbox.
func (s *Sandbox) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if s.RepositoryID == "" {
		return fmt.Errorf("repository id is required: %w", ErrNotValid)
	}
	if s.WorkspaceID == "" {
		return fmt.Errorf("workspace id is required: %w", ErrNotValid)
	}
	if s.ProviderKind == "" {
		return fmt.Errorf("provider kind is required: %w", ErrNotValid)
	}
	return nil
}
