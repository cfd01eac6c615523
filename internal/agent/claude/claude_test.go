package claude_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featden/featd/internal/agent"
	"github.com/featden/featd/internal/agent/claude"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/workspace/workspacemock"
)

func TestProviderSessionBookkeeping(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	provider, err := claude.NewProvider(claude.ProviderConfig{
		APIKey:    "test-key",
		Workspace: &workspacemock.MockProvider{},
	})
	require.NoError(err)

	assert.Equal(model.AgentProviderKindClaude, provider.Kind())

	session, err := provider.CreateSession(context.TODO(), agent.CreateSessionOptions{SessionID: "sess1", WorkspaceID: "ws1"})
	require.NoError(err)
	assert.Equal("sess1", session.ID)
	assert.NotEmpty(session.NativeID)
	assert.Equal(model.AgentSessionStatusIdle, session.Status)

	// Creating the same session twice must fail, the registry is the single
	// source of truth for live sessions.
	_, err = provider.CreateSession(context.TODO(), agent.CreateSessionOptions{SessionID: "sess1", WorkspaceID: "ws1"})
	assert.ErrorIs(err, model.ErrAlreadyExists)

	got, err := provider.GetSession(context.TODO(), "sess1", "ws1")
	require.NoError(err)
	assert.Equal(session.NativeID, got.NativeID)

	require.NoError(provider.DeleteSession(context.TODO(), "sess1", "ws1"))
	_, err = provider.GetSession(context.TODO(), "sess1", "ws1")
	assert.ErrorIs(err, model.ErrNotFound)
}

func TestProviderControlOpsAreIdempotent(t *testing.T) {
	require := require.New(t)

	provider, err := claude.NewProvider(claude.ProviderConfig{
		APIKey:    "test-key",
		Workspace: &workspacemock.MockProvider{},
	})
	require.NoError(err)

	// Unknown sessions are not an error for cancel or repeated delete.
	require.NoError(provider.CancelOperation(context.TODO(), "missing", "ws1"))

	_, err = provider.CreateSession(context.TODO(), agent.CreateSessionOptions{SessionID: "sess1", WorkspaceID: "ws1"})
	require.NoError(err)
	require.NoError(provider.DeleteSession(context.TODO(), "sess1", "ws1"))
	require.NoError(provider.CancelOperation(context.TODO(), "sess1", "ws1"))
}

func TestProviderCancelReleasesSession(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	provider, err := claude.NewProvider(claude.ProviderConfig{
		APIKey:    "test-key",
		Workspace: &workspacemock.MockProvider{},
	})
	require.NoError(err)

	_, err = provider.CreateSession(context.TODO(), agent.CreateSessionOptions{SessionID: "sess1", WorkspaceID: "ws1"})
	require.NoError(err)

	require.NoError(provider.CancelOperation(context.TODO(), "sess1", "ws1"))

	// A cancelled session is gone, continuing means creating a fresh one.
	_, err = provider.GetSession(context.TODO(), "sess1", "ws1")
	assert.ErrorIs(err, model.ErrNotFound)

	_, err = provider.CreateSession(context.TODO(), agent.CreateSessionOptions{SessionID: "sess1", WorkspaceID: "ws1"})
	assert.NoError(err)
}

func TestProviderCloseReleasesAllSessions(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	provider, err := claude.NewProvider(claude.ProviderConfig{
		APIKey:    "test-key",
		Workspace: &workspacemock.MockProvider{},
	})
	require.NoError(err)

	for _, id := range []string{"sess1", "sess2", "sess3"} {
		_, err = provider.CreateSession(context.TODO(), agent.CreateSessionOptions{SessionID: id, WorkspaceID: "ws1"})
		require.NoError(err)
	}

	require.NoError(provider.Close(context.TODO()))

	for _, id := range []string{"sess1", "sess2", "sess3"} {
		_, err = provider.GetSession(context.TODO(), id, "ws1")
		assert.ErrorIs(err, model.ErrNotFound)
	}
}

func TestProviderSendMessageUnknownSession(t *testing.T) {
	provider, err := claude.NewProvider(claude.ProviderConfig{
		APIKey:    "test-key",
		Workspace: &workspacemock.MockProvider{},
	})
	require.NoError(t, err)

	_, err = provider.SendMessage(context.TODO(), agent.SendMessageOptions{SessionID: "missing", WorkspaceID: "ws1"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
