// Package agent defines the provider abstraction over heterogeneous AI coding
// agent backends. Each backend exposes a different native event protocol, the
// contract here is that every implementation normalizes its native vocabulary
// onto model.StreamEvent before yielding, so the orchestrator only ever
// depends on the canonical event types.
package agent

import (
	"context"

	"github.com/featden/featd/internal/model"
)

// CreateSessionOptions configures agent session creation.
type CreateSessionOptions struct {
	// SessionID is the orchestration session ID, it doubles as the agent
	// session ID so the two are always correlated.
	SessionID   string
	WorkspaceID string
	// SystemPrompt overrides the backend's default system prompt.
	SystemPrompt string
	// Model selects the backend model, empty uses the backend default.
	Model string
	// Skills are optional skill identifiers the backend should load.
	Skills []string
}

// SendMessageOptions configures a message send.
type SendMessageOptions struct {
	SessionID   string
	WorkspaceID string
	Content     string
	// PreviewURL is passed to backends that need to reference the running
	// preview service of the workspace.
	PreviewURL string
}

// Provider is the interface every agent backend must implement.
//
// SendMessage returns a receive-only channel of canonical events. The
// producer guarantees that exactly one terminal event (done or error) is the
// last element, and closes the channel after it. Cancelling ctx makes the
// producer stop issuing remote calls and emit a terminal event, it never
// leaves the channel open.
type Provider interface {
	Kind() model.AgentProviderKind
	CreateSession(ctx context.Context, opts CreateSessionOptions) (*model.AgentSession, error)
	GetSession(ctx context.Context, sessionID, workspaceID string) (*model.AgentSession, error)
	SendMessage(ctx context.Context, opts SendMessageOptions) (<-chan model.StreamEvent, error)
	// CancelOperation signals the backend and returns, it must be idempotent
	// and must not block on a stream drain. A cancelled session is also
	// released, callers that keep going create a fresh one.
	CancelOperation(ctx context.Context, sessionID, workspaceID string) error
	DeleteSession(ctx context.Context, sessionID, workspaceID string) error
	// Close releases every session the backend still holds. It is called once
	// on shutdown, after it returns no handle may remain registered.
	Close(ctx context.Context) error
}
