package model

import (
	"fmt"
	"time"
)

// CheckpointType indicates what triggered a checkpoint.
type CheckpointType string

const (
	// CheckpointTypeManual is a user-requested checkpoint.
	CheckpointTypeManual CheckpointType = "manual"
	// CheckpointTypeAutomatic is a checkpoint created by the engine itself.
	CheckpointTypeAutomatic CheckpointType = "automatic"
)

// Checkpoint is a named, potentially-restorable snapshot of a sandbox. The
// provider snapshot ID is nullable: a failed provider snapshot still leaves a
// valid checkpoint record usable as a transcript marker.
type Checkpoint struct {
	ID                 string
	SessionID          *string
	SandboxID          string
	Label              string
	Type               CheckpointType
	ProviderSnapshotID *string
	CreatedAt          time.Time
}

// Validate validates the checkpoint.
func (c *Checkpoint) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if c.SandboxID == "" {
		return fmt.Errorf("sandbox id is required: %w", ErrNotValid)
	}
	if c.Label == "" {
		return fmt.Errorf("label is required: %w", ErrNotValid)
	}
	switch c.Type {
	case CheckpointTypeManual, CheckpointTypeAutomatic:
	default:
		return fmt.Errorf("unknown checkpoint type %q: %w", c.Type, ErrNotValid)
	}
	return nil
}

// SCMToken is a stored per-user access token for a source host, used by the
// PR publisher. OAuth flows that mint these tokens are out of the engine's scope.
type SCMToken struct {
	UserID      string
	Host        string
	AccessToken string
	CreatedAt   time.Time
}
