package build_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featden/featd/internal/agent"
	agentfake "github.com/featden/featd/internal/agent/fake"
	"github.com/featden/featd/internal/app/build"
	"github.com/featden/featd/internal/app/sandboxlifecycle"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/storage"
	"github.com/featden/featd/internal/storage/memory"
	workspacefake "github.com/featden/featd/internal/workspace/fake"
)

type testEnv struct {
	repo  *memory.Repository
	agent *agentfake.Provider
	svc   *build.Service
}

func newTestEnv(t *testing.T, script func(opts agent.SendMessageOptions) []model.StreamEvent) *testEnv {
	t.Helper()
	require := require.New(t)

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)

	ws, err := workspacefake.NewProvider(workspacefake.ProviderConfig{})
	require.NoError(err)

	life, err := sandboxlifecycle.NewService(sandboxlifecycle.ServiceConfig{Workspace: ws, Repository: repo})
	require.NoError(err)

	agentProvider, err := agentfake.NewProvider(agentfake.ProviderConfig{Script: script})
	require.NoError(err)

	svc, err := build.NewService(build.ServiceConfig{
		Agent:      agentProvider,
		Lifecycle:  life,
		Repository: repo,
	})
	require.NoError(err)

	return &testEnv{repo: repo, agent: agentProvider, svc: svc}
}

func seedApprovedSession(t *testing.T, repo storage.Repository, status model.SessionStatus) {
	t.Helper()
	require := require.New(t)

	session := model.FeatureSession{
		ID:             "sess1",
		OrganizationID: "org1",
		RepositoryID:   "repo1",
		RepoFullName:   "acme/shop",
		RepoURL:        "https://github.com/acme/shop.git",
		Name:           "dark mode",
		BranchName:     "featd/session-sess1",
		Status:         status,
	}
	require.NoError(repo.CreateSession(context.TODO(), session))

	plan := model.PlanResult{
		Summary: "Add a dark mode toggle.",
		Changes: []model.PlanChange{{Path: "web/theme.ts", Description: "Add dark palette."}},
	}
	planMsg, err := model.NewPlanMessage("msg-plan", "sess1", plan, time.Now().UTC())
	require.NoError(err)
	require.NoError(repo.CreateMessage(context.TODO(), *planMsg))
}

func drain(t *testing.T, events <-chan model.StreamEvent) []model.StreamEvent {
	t.Helper()

	var got []model.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out draining build events")
		}
	}
}

func TestServiceExecute(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	env := newTestEnv(t, func(opts agent.SendMessageOptions) []model.StreamEvent {
		return []model.StreamEvent{
			{Type: model.StreamEventProgress, Content: "reading the project"},
			{Type: model.StreamEventToolUse, Content: "ls web/"},
			{Type: model.StreamEventToolResult, Content: "theme.ts"},
			{Type: model.StreamEventMessage, Content: "Added the dark palette."},
			{Type: model.StreamEventMessage, Content: "Wired up the toggle."},
			{Type: model.StreamEventDone},
		}
	})
	seedApprovedSession(t, env.repo, model.SessionStatusBuilding)

	events, err := env.svc.Execute(context.TODO(), build.ExecuteOptions{SessionID: "sess1"})
	require.NoError(err)

	got := drain(t, events)
	require.NotEmpty(got)
	assert.Equal(model.StreamEventStart, got[0].Type)
	assert.Equal(model.StreamEventDone, got[len(got)-1].Type)

	// The session parks in ready with sandbox and agent session bound.
	session, err := env.repo.GetSession(context.TODO(), "sess1")
	require.NoError(err)
	assert.Equal(model.SessionStatusReady, session.Status)
	require.NotNil(session.SandboxID)
	require.NotNil(session.AgentSessionID)
	assert.Equal("sess1", *session.AgentSessionID)

	// Assistant messages are folded into a single transcript entry.
	msgs, err := env.repo.ListMessages(context.TODO(), "sess1")
	require.NoError(err)
	require.Len(msgs, 2) // plan + build transcript
	last := msgs[len(msgs)-1]
	assert.Equal(model.MessageRoleAssistant, last.Role)
	assert.Equal(model.MessagePhaseBuilding, last.Phase)
	assert.Contains(last.Content, "Added the dark palette.")
	assert.Contains(last.Content, "Wired up the toggle.")

	// The agent received the rendered plan.
	sent := env.agent.SentMessages()
	require.Len(sent, 1)
	assert.Contains(sent[0].Content, "Add a dark mode toggle.")
	assert.Contains(sent[0].Content, "web/theme.ts")
}

func TestServiceExecuteChatMode(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	env := newTestEnv(t, nil)
	seedApprovedSession(t, env.repo, model.SessionStatusBuilding)

	events, err := env.svc.Execute(context.TODO(), build.ExecuteOptions{
		SessionID: "sess1",
		Prompt:    "what did you change?",
		Mode:      build.ModeChat,
	})
	require.NoError(err)
	drain(t, events)

	session, err := env.repo.GetSession(context.TODO(), "sess1")
	require.NoError(err)
	assert.Equal(model.SessionStatusIdle, session.Status)

	sent := env.agent.SentMessages()
	require.Len(sent, 1)
	assert.Equal("what did you change?", sent[0].Content)
}

func TestServiceExecuteAgentFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	env := newTestEnv(t, func(opts agent.SendMessageOptions) []model.StreamEvent {
		return []model.StreamEvent{
			{Type: model.StreamEventProgress, Content: "starting"},
			{Type: model.StreamEventError, Content: "agent crashed"},
		}
	})
	seedApprovedSession(t, env.repo, model.SessionStatusBuilding)

	events, err := env.svc.Execute(context.TODO(), build.ExecuteOptions{SessionID: "sess1"})
	require.NoError(err)

	got := drain(t, events)
	require.NotEmpty(got)
	assert.Equal(model.StreamEventError, got[len(got)-1].Type)

	session, err := env.repo.GetSession(context.TODO(), "sess1")
	require.NoError(err)
	assert.Equal(model.SessionStatusError, session.Status)
}

func TestServiceExecutePreconditions(t *testing.T) {
	tests := map[string]struct {
		status model.SessionStatus
	}{
		"An idle session cannot build.":       {status: model.SessionStatusIdle},
		"A session in review cannot build.":   {status: model.SessionStatusPlanReview},
		"A ready session cannot build again.": {status: model.SessionStatusReady},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			seedApprovedSession(t, env.repo, test.status)

			_, err := env.svc.Execute(context.TODO(), build.ExecuteOptions{SessionID: "sess1"})
			assert.ErrorIs(t, err, model.ErrPreconditionFailed)
		})
	}
}

func TestServiceExecuteWithoutPlan(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	session := model.FeatureSession{
		ID:             "sess1",
		OrganizationID: "org1",
		RepositoryID:   "repo1",
		Name:           "dark mode",
		Status:         model.SessionStatusBuilding,
	}
	require.NoError(env.repo.CreateSession(context.TODO(), session))

	_, err := env.svc.Execute(context.TODO(), build.ExecuteOptions{SessionID: "sess1"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestServiceExecuteReusesSandboxAcrossBuilds(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	env := newTestEnv(t, nil)
	seedApprovedSession(t, env.repo, model.SessionStatusBuilding)

	events, err := env.svc.Execute(context.TODO(), build.ExecuteOptions{SessionID: "sess1", Mode: build.ModeChat})
	require.NoError(err)
	drain(t, events)

	first, err := env.repo.GetSandboxByRepository(context.TODO(), "repo1")
	require.NoError(err)

	// Second build on the same repository, through the approval loop again.
	session, err := env.repo.GetSession(context.TODO(), "sess1")
	require.NoError(err)
	require.NoError(session.TransitionTo(model.SessionStatusPlanning))
	require.NoError(session.TransitionTo(model.SessionStatusPlanReview))
	require.NoError(session.TransitionTo(model.SessionStatusBuilding))
	require.NoError(env.repo.UpdateSession(context.TODO(), *session))

	events, err = env.svc.Execute(context.TODO(), build.ExecuteOptions{SessionID: "sess1", Mode: build.ModeChat})
	require.NoError(err)
	drain(t, events)

	second, err := env.repo.GetSandboxByRepository(context.TODO(), "repo1")
	require.NoError(err)
	assert.Equal(first.ID, second.ID)
}
