package httpapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/featden/featd/internal/agent"
	agentfake "github.com/featden/featd/internal/agent/fake"
	"github.com/featden/featd/internal/app/agentsession"
	"github.com/featden/featd/internal/app/build"
	"github.com/featden/featd/internal/app/checkpoint"
	"github.com/featden/featd/internal/app/plan"
	"github.com/featden/featd/internal/app/publish"
	"github.com/featden/featd/internal/app/sandboxlifecycle"
	"github.com/featden/featd/internal/app/session"
	"github.com/featden/featd/internal/httpapi"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/planner/plannermock"
	"github.com/featden/featd/internal/scmhost"
	"github.com/featden/featd/internal/scmhost/scmhostmock"
	"github.com/featden/featd/internal/storage/memory"
	"github.com/featden/featd/internal/workspace"
	workspacefake "github.com/featden/featd/internal/workspace/fake"
)

type testEnv struct {
	repo    *memory.Repository
	planner *plannermock.MockPlanner
	host    *scmhostmock.MockHost
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	require := require.New(t)

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)

	ws, err := workspacefake.NewProvider(workspacefake.ProviderConfig{
		ExecHandler: func(workspaceID string, command []string) (*workspace.ExecResult, error) {
			if strings.HasPrefix(strings.Join(command, " "), "git status") {
				return &workspace.ExecResult{Stdout: " M web/theme.ts\n"}, nil
			}
			return &workspace.ExecResult{}, nil
		},
	})
	require.NoError(err)

	agentProvider, err := agentfake.NewProvider(agentfake.ProviderConfig{
		Script: func(opts agent.SendMessageOptions) []model.StreamEvent {
			return []model.StreamEvent{
				{Type: model.StreamEventStart},
				{Type: model.StreamEventMessage, Content: "Implemented the toggle."},
				{Type: model.StreamEventDone},
			}
		},
	})
	require.NoError(err)

	life, err := sandboxlifecycle.NewService(sandboxlifecycle.ServiceConfig{Workspace: ws, Repository: repo})
	require.NoError(err)

	mp := &plannermock.MockPlanner{}
	mh := &scmhostmock.MockHost{}

	sessions, err := session.NewService(session.ServiceConfig{Agent: agentProvider, Repository: repo})
	require.NoError(err)
	plans, err := plan.NewService(plan.ServiceConfig{Planner: mp, Repository: repo})
	require.NoError(err)
	builds, err := build.NewService(build.ServiceConfig{Agent: agentProvider, Lifecycle: life, Repository: repo})
	require.NoError(err)
	checkpoints, err := checkpoint.NewService(checkpoint.ServiceConfig{Workspace: ws, Lifecycle: life, Repository: repo})
	require.NoError(err)
	publisher, err := publish.NewService(publish.ServiceConfig{Host: mh, Workspace: ws, Repository: repo})
	require.NoError(err)
	agentControl, err := agentsession.NewService(agentsession.ServiceConfig{Agent: agentProvider, Repository: repo})
	require.NoError(err)

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Sessions:     sessions,
		Plans:        plans,
		Builds:       builds,
		Checkpoints:  checkpoints,
		Publisher:    publisher,
		AgentControl: agentControl,
		Lifecycle:    life,
		Workspace:    ws,
	})
	require.NoError(err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{repo: repo, planner: mp, host: mh, server: ts}
}

func (e *testEnv) do(t *testing.T, method, path, org, user string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if org != "" {
		req.Header.Set("X-Org-ID", org)
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type sessionJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	BranchName string `json:"branchName"`
}

func createSession(t *testing.T, e *testEnv, org string) sessionJSON {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/api/v1/sessions", org, "", map[string]string{
		"repositoryId": "repo1",
		"repoFullName": "acme/shop",
		"repoUrl":      "https://github.com/acme/shop.git",
		"name":         "dark mode",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got sessionJSON
	decodeBody(t, resp, &got)
	return got
}

func TestServerRejectsUnscopedRequests(t *testing.T) {
	tests := map[string]struct {
		method string
		path   string
	}{
		"Listing sessions without an org scope should be unauthorized.": {
			method: http.MethodGet, path: "/api/v1/sessions",
		},
		"Creating a session without an org scope should be unauthorized.": {
			method: http.MethodPost, path: "/api/v1/sessions",
		},
		"Sandbox operations without an org scope should be unauthorized.": {
			method: http.MethodDelete, path: "/api/v1/sandboxes/sbx1",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			e := newTestEnv(t)

			resp := e.do(t, test.method, test.path, "", "", nil)
			defer resp.Body.Close()

			assert.Equal(http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	assert := assert.New(t)
	e := newTestEnv(t)

	created := createSession(t, e, "org1")
	assert.Equal("idle", created.Status)
	assert.Equal("featd/session-"+created.ID, created.BranchName)

	// Listing is org scoped.
	resp := e.do(t, http.MethodGet, "/api/v1/sessions", "org1", "", nil)
	var listed []sessionJSON
	decodeBody(t, resp, &listed)
	assert.Len(listed, 1)

	resp = e.do(t, http.MethodGet, "/api/v1/sessions", "org2", "", nil)
	var other []sessionJSON
	decodeBody(t, resp, &other)
	assert.Empty(other)

	// Another org cannot see the session at all.
	resp = e.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID, "org2", "", nil)
	resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)

	// Rename.
	resp = e.do(t, http.MethodPatch, "/api/v1/sessions/"+created.ID, "org1", "", map[string]string{"name": "dark mode v2"})
	var renamed sessionJSON
	decodeBody(t, resp, &renamed)
	assert.Equal("dark mode v2", renamed.Name)

	// Delete and verify it is gone.
	resp = e.do(t, http.MethodDelete, "/api/v1/sessions/"+created.ID, "org1", "", nil)
	resp.Body.Close()
	assert.Equal(http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID, "org1", "", nil)
	resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestPlanBuildPublishFlowOverHTTP(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	e := newTestEnv(t)

	e.planner.On("GeneratePlan", mock.Anything, mock.Anything).Once().Return(&model.PlanResult{
		Summary: "Add a dark mode toggle.",
		Changes: []model.PlanChange{{Path: "web/theme.ts", Description: "Add dark palette."}},
	}, nil)
	e.host.On("CreatePullRequest", mock.Anything, "tok1", mock.Anything).Once().Return(&scmhost.PullRequest{
		URL:    "https://github.com/acme/shop/pull/7",
		Number: 7,
	}, nil)
	require.NoError(e.repo.UpsertSCMToken(context.TODO(), model.SCMToken{
		UserID: "user1", Host: "github.com", AccessToken: "tok1",
	}))

	created := createSession(t, e, "org1")

	// Plan.
	resp := e.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/plan", "org1", "", map[string]string{"prompt": "Add dark mode."})
	require.Equal(http.StatusOK, resp.StatusCode)
	var planned struct {
		Session    sessionJSON `json:"session"`
		ApprovalID string      `json:"approvalId"`
	}
	decodeBody(t, resp, &planned)
	assert.Equal("plan_review", planned.Session.Status)
	assert.NotEmpty(planned.ApprovalID)

	// Approve.
	resp = e.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/approval", "org1", "user1", map[string]interface{}{"approve": true})
	require.Equal(http.StatusOK, resp.StatusCode)
	var approved sessionJSON
	decodeBody(t, resp, &approved)
	assert.Equal("building", approved.Status)

	// Build, consuming the stream line by line.
	resp = e.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/build", "org1", "", map[string]string{})
	require.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal("application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []model.StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev model.StreamEvent
		require.NoError(json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	resp.Body.Close()
	require.NoError(scanner.Err())

	require.NotEmpty(events)
	assert.Equal(model.StreamEventStart, events[0].Type)
	assert.Equal(model.StreamEventDone, events[len(events)-1].Type)

	resp = e.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID, "org1", "", nil)
	var built sessionJSON
	decodeBody(t, resp, &built)
	assert.Equal("ready", built.Status)

	// Publish.
	resp = e.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/pull-request", "org1", "user1", map[string]string{})
	require.Equal(http.StatusCreated, resp.StatusCode)
	var pr struct {
		URL    string `json:"url"`
		Number int    `json:"number"`
	}
	decodeBody(t, resp, &pr)
	assert.Equal(7, pr.Number)

	resp = e.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID, "org1", "", nil)
	var published sessionJSON
	decodeBody(t, resp, &published)
	assert.Equal("reviewing", published.Status)

	e.planner.AssertExpectations(t)
	e.host.AssertExpectations(t)
}

func TestDomainErrorMapping(t *testing.T) {
	tests := map[string]struct {
		request    func(t *testing.T, e *testEnv, sessionID string) *http.Response
		expStatus  int
		expMessage string
	}{
		"Planning on a missing session should map to not found.": {
			request: func(t *testing.T, e *testEnv, _ string) *http.Response {
				return e.do(t, http.MethodPost, "/api/v1/sessions/nope/plan", "org1", "", map[string]string{"prompt": "x"})
			},
			expStatus: http.StatusNotFound,
		},

		"Resolving an approval without a pending one should map to not found.": {
			request: func(t *testing.T, e *testEnv, id string) *http.Response {
				return e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/approval", "org1", "user1", map[string]interface{}{"approve": true})
			},
			expStatus: http.StatusNotFound,
		},

		"Building an idle session should map to precondition failed.": {
			request: func(t *testing.T, e *testEnv, id string) *http.Response {
				return e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/build", "org1", "", map[string]string{})
			},
			expStatus: http.StatusPreconditionFailed,
		},

		"Publishing without an authenticated user should be unauthorized.": {
			request: func(t *testing.T, e *testEnv, id string) *http.Response {
				return e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/pull-request", "org1", "", map[string]string{})
			},
			expStatus: http.StatusUnauthorized,
		},

		"A malformed JSON body should map to a bad request.": {
			request: func(t *testing.T, e *testEnv, id string) *http.Response {
				req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/v1/sessions/"+id+"/plan", strings.NewReader("{nope"))
				require.NoError(t, err)
				req.Header.Set("X-Org-ID", "org1")
				resp, err := e.server.Client().Do(req)
				require.NoError(t, err)
				return resp
			},
			expStatus: http.StatusBadRequest,
		},

		"Creating an agent session without a sandbox should map to precondition failed.": {
			request: func(t *testing.T, e *testEnv, id string) *http.Response {
				return e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/agent", "org1", "", nil)
			},
			expStatus: http.StatusPreconditionFailed,
		},

		"Checkpointing a missing sandbox should map to not found.": {
			request: func(t *testing.T, e *testEnv, _ string) *http.Response {
				return e.do(t, http.MethodPost, "/api/v1/sandboxes/nope/checkpoints", "org1", "", map[string]string{"label": "before refactor"})
			},
			expStatus: http.StatusNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			e := newTestEnv(t)
			created := createSession(t, e, "org1")

			resp := test.request(t, e, created.ID)
			defer resp.Body.Close()

			assert.Equal(test.expStatus, resp.StatusCode)
			var body struct {
				Error string `json:"error"`
			}
			assert.NoError(json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(body.Error)
		})
	}
}

func TestCheckpointEndpoints(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	e := newTestEnv(t)

	// The sandbox belongs to whoever has a session on its repository.
	sess := createSession(t, e, "org1")
	require.NoError(e.repo.CreateSandbox(context.TODO(), model.Sandbox{
		ID: "sbx1", RepositoryID: "repo1", WorkspaceID: "fake-ws-1",
		ProviderKind: model.WorkspaceProviderKindFake, Status: model.SandboxStatusRunning,
	}))

	for i := 0; i < 2; i++ {
		resp := e.do(t, http.MethodPost, "/api/v1/sandboxes/sbx1/checkpoints", "org1", "", map[string]string{
			"label": fmt.Sprintf("step %d", i),
		})
		require.Equal(http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := e.do(t, http.MethodGet, "/api/v1/sandboxes/sbx1/checkpoints", "org1", "", nil)
	require.Equal(http.StatusOK, resp.StatusCode)
	var listed []struct {
		Label string `json:"label"`
		Type  string `json:"type"`
	}
	decodeBody(t, resp, &listed)
	require.Len(listed, 2)
	assert.Equal("step 1", listed[0].Label)
	assert.Equal("manual", listed[0].Type)

	// Another organization cannot see the sandbox at all.
	resp = e.do(t, http.MethodPost, "/api/v1/sandboxes/sbx1/checkpoints", "org2", "", map[string]string{"label": "sneaky"})
	resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/sandboxes/sbx1/checkpoints", "org2", "", nil)
	resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)

	// A session parked on a different sandbox cannot tag checkpoints here.
	stored, err := e.repo.GetSession(context.TODO(), sess.ID)
	require.NoError(err)
	otherSandbox := "sbx-other"
	stored.SandboxID = &otherSandbox
	require.NoError(e.repo.UpdateSession(context.TODO(), *stored))

	resp = e.do(t, http.MethodPost, "/api/v1/sandboxes/sbx1/checkpoints", "org1", "", map[string]interface{}{
		"label": "misbound", "sessionId": sess.ID,
	})
	resp.Body.Close()
	assert.Equal(http.StatusPreconditionFailed, resp.StatusCode)
}

func TestSandboxEndpoints(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	e := newTestEnv(t)

	type sandboxJSON struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}

	sess := createSession(t, e, "org1")

	// Creation is idempotent per repository.
	var first, second sandboxJSON
	resp := e.do(t, http.MethodPost, "/api/v1/sandboxes", "org1", "", map[string]string{"sessionId": sess.ID})
	require.Equal(http.StatusCreated, resp.StatusCode)
	decodeBody(t, resp, &first)

	resp = e.do(t, http.MethodPost, "/api/v1/sandboxes", "org1", "", map[string]string{"sessionId": sess.ID})
	require.Equal(http.StatusCreated, resp.StatusCode)
	decodeBody(t, resp, &second)
	assert.Equal(first.ID, second.ID)

	// Another organization cannot reach the sandbox or the session behind it.
	resp = e.do(t, http.MethodPost, "/api/v1/sandboxes", "org2", "", map[string]string{"sessionId": sess.ID})
	resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/sandboxes/"+first.ID+"/pause", "org2", "", nil)
	resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/v1/sandboxes/"+first.ID, "org2", "", nil)
	resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/sandboxes/"+first.ID+"/pause", "org1", "", nil)
	resp.Body.Close()
	assert.Equal(http.StatusAccepted, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/v1/sandboxes/"+first.ID, "org1", "", nil)
	resp.Body.Close()
	assert.Equal(http.StatusNoContent, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	assert := assert.New(t)
	e := newTestEnv(t)

	resp, err := e.server.Client().Get(e.server.URL + "/healthz")
	require.NoError(t, err)

	var body struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &body)

	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal("ok", body.Status)
}
