package storage

import (
	"context"

	"github.com/featden/featd/internal/model"
)

// Repository is the interface for orchestration engine persistence.
//
// Implementations must return model.ErrNotFound for missing rows and
// model.ErrAlreadyExists on unique-constraint violations, callers rely on
// errors.Is matching for both.
type Repository interface {
	CreateSession(ctx context.Context, s model.FeatureSession) error
	GetSession(ctx context.Context, id string) (*model.FeatureSession, error)
	ListSessionsByOrganization(ctx context.Context, orgID string) ([]model.FeatureSession, error)
	UpdateSession(ctx context.Context, s model.FeatureSession) error
	DeleteSession(ctx context.Context, id string) error

	// CreateSandbox enforces the one-sandbox-per-repository invariant with a
	// unique constraint on the repository ID, losers of a concurrent create
	// receive model.ErrAlreadyExists and must retry as a lookup.
	CreateSandbox(ctx context.Context, s model.Sandbox) error
	GetSandbox(ctx context.Context, id string) (*model.Sandbox, error)
	GetSandboxByRepository(ctx context.Context, repoID string) (*model.Sandbox, error)
	UpdateSandbox(ctx context.Context, s model.Sandbox) error
	DeleteSandbox(ctx context.Context, id string) error

	// CreateMessage appends to the session transcript. Messages are immutable,
	// there is no update or delete.
	CreateMessage(ctx context.Context, m model.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]model.Message, error)

	CreateApproval(ctx context.Context, a model.Approval) error
	GetPendingApproval(ctx context.Context, sessionID string) (*model.Approval, error)
	UpdateApproval(ctx context.Context, a model.Approval) error

	CreateCheckpoint(ctx context.Context, c model.Checkpoint) error
	UpdateCheckpoint(ctx context.Context, c model.Checkpoint) error
	ListCheckpointsBySandbox(ctx context.Context, sandboxID string) ([]model.Checkpoint, error)

	GetSCMToken(ctx context.Context, userID, host string) (*model.SCMToken, error)
	UpsertSCMToken(ctx context.Context, t model.SCMToken) error
}
