package sandboxlifecycle_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/featden/featd/internal/app/sandboxlifecycle"
	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/storage/memory"
	"github.com/featden/featd/internal/storage/storagemock"
	"github.com/featden/featd/internal/workspace"
	workspacefake "github.com/featden/featd/internal/workspace/fake"
	"github.com/featden/featd/internal/workspace/workspacemock"
)

func provisionOpts(repoID string) sandboxlifecycle.ProvisionOptions {
	return sandboxlifecycle.ProvisionOptions{
		RepositoryID: repoID,
		RepoURL:      "https://github.com/acme/shop.git",
	}
}

func TestServiceGetOrCreateForRepository(t *testing.T) {
	tests := map[string]struct {
		opts   sandboxlifecycle.ProvisionOptions
		mock   func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository)
		expErr bool
	}{
		"An empty repository id should fail.": {
			opts:   sandboxlifecycle.ProvisionOptions{RepoURL: "https://github.com/acme/shop.git"},
			mock:   func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {},
			expErr: true,
		},

		"A missing repository URL should fail.": {
			opts:   sandboxlifecycle.ProvisionOptions{RepositoryID: "repo1"},
			mock:   func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {},
			expErr: true,
		},

		"An existing sandbox should be returned without provisioning.": {
			opts: provisionOpts("repo1"),
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandboxByRepository", mock.Anything, "repo1").Once().Return(&model.Sandbox{ID: "sbx1", RepositoryID: "repo1"}, nil)
			},
		},

		"A missing sandbox should be provisioned, cloned and stored.": {
			opts: provisionOpts("repo1"),
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandboxByRepository", mock.Anything, "repo1").Once().Return(nil, model.ErrNotFound)
				mWorkspace.On("Create", mock.Anything, mock.Anything).Once().Return("ws1", nil)
				mWorkspace.On("Exec", mock.Anything, "ws1", mock.Anything, mock.Anything).Once().Return(&workspace.ExecResult{}, nil)
				mWorkspace.On("Kind").Once().Return(model.WorkspaceProviderKindFake)
				mRepo.On("CreateSandbox", mock.Anything, mock.Anything).Once().Return(nil)
			},
		},

		"Losing a concurrent create should clean up and return the winner's sandbox.": {
			opts: provisionOpts("repo1"),
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandboxByRepository", mock.Anything, "repo1").Once().Return(nil, model.ErrNotFound)
				mWorkspace.On("Create", mock.Anything, mock.Anything).Once().Return("ws1", nil)
				mWorkspace.On("Exec", mock.Anything, "ws1", mock.Anything, mock.Anything).Once().Return(&workspace.ExecResult{}, nil)
				mWorkspace.On("Kind").Once().Return(model.WorkspaceProviderKindFake)
				mRepo.On("CreateSandbox", mock.Anything, mock.Anything).Once().Return(model.ErrAlreadyExists)
				mWorkspace.On("Delete", mock.Anything, "ws1").Once().Return(nil)
				mRepo.On("GetSandboxByRepository", mock.Anything, "repo1").Once().Return(&model.Sandbox{ID: "sbx-winner", RepositoryID: "repo1"}, nil)
			},
		},

		"A workspace provisioning failure should fail.": {
			opts: provisionOpts("repo1"),
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandboxByRepository", mock.Anything, "repo1").Once().Return(nil, model.ErrNotFound)
				mWorkspace.On("Create", mock.Anything, mock.Anything).Once().Return("", fmt.Errorf("no capacity"))
			},
			expErr: true,
		},

		"A clone failure should tear down the workspace and fail.": {
			opts: provisionOpts("repo1"),
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandboxByRepository", mock.Anything, "repo1").Once().Return(nil, model.ErrNotFound)
				mWorkspace.On("Create", mock.Anything, mock.Anything).Once().Return("ws1", nil)
				mWorkspace.On("Exec", mock.Anything, "ws1", mock.Anything, mock.Anything).Once().Return(&workspace.ExecResult{ExitCode: 128, Stderr: "fatal: repository not found"}, nil)
				mWorkspace.On("Delete", mock.Anything, "ws1").Once().Return(nil)
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mWorkspace := &workspacemock.MockProvider{}
			mRepo := &storagemock.MockRepository{}
			test.mock(mWorkspace, mRepo)

			svc, err := sandboxlifecycle.NewService(sandboxlifecycle.ServiceConfig{
				Workspace:  mWorkspace,
				Repository: mRepo,
			})
			require.NoError(err)

			sandbox, err := svc.GetOrCreateForRepository(context.TODO(), test.opts)
			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
				assert.NotNil(sandbox)
				assert.Equal(test.opts.RepositoryID, sandbox.RepositoryID)
			}

			mWorkspace.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

// Provisioning must leave the workspace usable: the repository checked out and
// the agent runtime started, and a resume must bring the runtime back.
func TestServiceProvisionBootstrapsWorkspace(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var mu sync.Mutex
	var commands [][]string
	ws, err := workspacefake.NewProvider(workspacefake.ProviderConfig{
		ExecHandler: func(workspaceID string, command []string) (*workspace.ExecResult, error) {
			mu.Lock()
			commands = append(commands, command)
			mu.Unlock()
			return &workspace.ExecResult{}, nil
		},
	})
	require.NoError(err)

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)

	svc, err := sandboxlifecycle.NewService(sandboxlifecycle.ServiceConfig{
		Workspace:             ws,
		Repository:            repo,
		RuntimeInstallCommand: []string{"featd-agent", "serve", "--listen", ":8377"},
	})
	require.NoError(err)

	sandbox, err := svc.GetOrCreateForRepository(context.TODO(), sandboxlifecycle.ProvisionOptions{
		RepositoryID: "repo1",
		RepoURL:      "https://github.com/acme/shop.git",
		Branch:       "main",
	})
	require.NoError(err)

	require.Len(commands, 2)
	assert.Equal([]string{"git", "clone", "--branch", "main", "https://github.com/acme/shop.git", "/workspace"}, commands[0])
	assert.Equal([]string{"featd-agent", "serve", "--listen", ":8377"}, commands[1])

	// Pause and resume: the checkout is still on disk, only the runtime is
	// reinstalled.
	ws.SetStatus(sandbox.WorkspaceID, model.SandboxStatusPaused)
	_, err = svc.EnsureRunning(context.TODO(), sandbox.ID)
	require.NoError(err)

	require.Len(commands, 3)
	assert.Equal("featd-agent", commands[2][0])
}

// Concurrent sessions on the same repository must converge on a single
// sandbox, different repositories must get their own.
func TestServiceGetOrCreateForRepositoryConcurrency(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)
	ws, err := workspacefake.NewProvider(workspacefake.ProviderConfig{Logger: log.Noop})
	require.NoError(err)

	svc, err := sandboxlifecycle.NewService(sandboxlifecycle.ServiceConfig{
		Workspace:  ws,
		Repository: repo,
	})
	require.NoError(err)

	const workers = 16
	results := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repoID := "repo-a"
			if i%4 == 0 {
				repoID = "repo-b"
			}
			sandbox, err := svc.GetOrCreateForRepository(context.TODO(), provisionOpts(repoID))
			if err != nil {
				return
			}
			results[i] = sandbox.ID
		}(i)
	}
	wg.Wait()

	uniqueA := map[string]bool{}
	uniqueB := map[string]bool{}
	for i, id := range results {
		require.NotEmpty(id, "worker %d failed", i)
		if i%4 == 0 {
			uniqueB[id] = true
		} else {
			uniqueA[id] = true
		}
	}
	assert.Len(uniqueA, 1)
	assert.Len(uniqueB, 1)

	sandboxA, err := repo.GetSandboxByRepository(context.TODO(), "repo-a")
	require.NoError(err)
	sandboxB, err := repo.GetSandboxByRepository(context.TODO(), "repo-b")
	require.NoError(err)
	assert.NotEqual(sandboxA.ID, sandboxB.ID)
}

func TestServiceEnsureRunning(t *testing.T) {
	tests := map[string]struct {
		mock      func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository)
		expErr    bool
		expStatus model.SandboxStatus
	}{
		"A running workspace should only refresh the stored state.": {
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(&model.Sandbox{ID: "sbx1", WorkspaceID: "ws1", Status: model.SandboxStatusRunning}, nil)
				mWorkspace.On("Status", mock.Anything, "ws1").Once().Return(model.SandboxStatusRunning, nil)
				mRepo.On("UpdateSandbox", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expStatus: model.SandboxStatusRunning,
		},

		"A paused workspace should be resumed and its runtime reinstalled.": {
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(&model.Sandbox{ID: "sbx1", WorkspaceID: "ws1", Status: model.SandboxStatusPaused}, nil)
				mWorkspace.On("Status", mock.Anything, "ws1").Once().Return(model.SandboxStatusPaused, nil)
				mWorkspace.On("Resume", mock.Anything, "ws1").Once().Return(nil)
				mWorkspace.On("Exec", mock.Anything, "ws1", []string{"featd-agent", "serve"}, mock.Anything).Once().Return(&workspace.ExecResult{}, nil)
				mRepo.On("UpdateSandbox", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expStatus: model.SandboxStatusRunning,
		},

		"A resume failure should mark the sandbox errored and fail.": {
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(&model.Sandbox{ID: "sbx1", WorkspaceID: "ws1", Status: model.SandboxStatusPaused}, nil)
				mWorkspace.On("Status", mock.Anything, "ws1").Once().Return(model.SandboxStatusPaused, nil)
				mWorkspace.On("Resume", mock.Anything, "ws1").Once().Return(fmt.Errorf("resume failed"))
				mRepo.On("UpdateSandbox", mock.Anything, mock.MatchedBy(func(s model.Sandbox) bool {
					return s.Status == model.SandboxStatusError
				})).Once().Return(nil)
			},
			expErr: true,
		},

		"A runtime reinstall failure after resume should mark the sandbox errored and fail.": {
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(&model.Sandbox{ID: "sbx1", WorkspaceID: "ws1", Status: model.SandboxStatusPaused}, nil)
				mWorkspace.On("Status", mock.Anything, "ws1").Once().Return(model.SandboxStatusPaused, nil)
				mWorkspace.On("Resume", mock.Anything, "ws1").Once().Return(nil)
				mWorkspace.On("Exec", mock.Anything, "ws1", []string{"featd-agent", "serve"}, mock.Anything).Once().Return(&workspace.ExecResult{ExitCode: 1, Stderr: "no such binary"}, nil)
				mRepo.On("UpdateSandbox", mock.Anything, mock.MatchedBy(func(s model.Sandbox) bool {
					return s.Status == model.SandboxStatusError
				})).Once().Return(nil)
			},
			expErr: true,
		},

		"A missing sandbox should fail.": {
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(nil, model.ErrNotFound)
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mWorkspace := &workspacemock.MockProvider{}
			mRepo := &storagemock.MockRepository{}
			test.mock(mWorkspace, mRepo)

			svc, err := sandboxlifecycle.NewService(sandboxlifecycle.ServiceConfig{
				Workspace:             mWorkspace,
				Repository:            mRepo,
				RuntimeInstallCommand: []string{"featd-agent", "serve"},
			})
			require.NoError(err)

			sandbox, err := svc.EnsureRunning(context.TODO(), "sbx1")
			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
				assert.Equal(test.expStatus, sandbox.Status)
			}

			mWorkspace.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestServiceGetScoped(t *testing.T) {
	sandbox := &model.Sandbox{ID: "sbx1", RepositoryID: "repo1", WorkspaceID: "ws1"}

	tests := map[string]struct {
		mock   func(mRepo *storagemock.MockRepository)
		expErr error
	}{
		"An organization with a session on the repository owns the sandbox.": {
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(sandbox, nil)
				mRepo.On("ListSessionsByOrganization", mock.Anything, "org1").Once().Return([]model.FeatureSession{
					{ID: "sess1", OrganizationID: "org1", RepositoryID: "repo1"},
				}, nil)
			},
		},

		"An organization without sessions on the repository cannot see the sandbox.": {
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(sandbox, nil)
				mRepo.On("ListSessionsByOrganization", mock.Anything, "org1").Once().Return([]model.FeatureSession{
					{ID: "sess9", OrganizationID: "org1", RepositoryID: "repo-other"},
				}, nil)
			},
			expErr: model.ErrNotFound,
		},

		"A missing sandbox should fail the same way.": {
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(nil, model.ErrNotFound)
			},
			expErr: model.ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			mRepo := &storagemock.MockRepository{}
			test.mock(mRepo)

			svc, err := sandboxlifecycle.NewService(sandboxlifecycle.ServiceConfig{
				Workspace:  &workspacemock.MockProvider{},
				Repository: mRepo,
			})
			require.NoError(err)

			got, err := svc.GetScoped(context.TODO(), "org1", "sbx1")
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			} else {
				require.NoError(err)
				assert.Equal(t, "sbx1", got.ID)
			}

			mRepo.AssertExpectations(t)
		})
	}
}

func TestServiceDelete(t *testing.T) {
	sandbox := &model.Sandbox{ID: "sbx1", RepositoryID: "repo1", WorkspaceID: "ws1"}
	owned := []model.FeatureSession{{ID: "sess1", OrganizationID: "org1", RepositoryID: "repo1"}}

	tests := map[string]struct {
		mock   func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository)
		expErr bool
	}{
		"A clean delete should remove workspace and record.": {
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(sandbox, nil)
				mRepo.On("ListSessionsByOrganization", mock.Anything, "org1").Once().Return(owned, nil)
				mWorkspace.On("Delete", mock.Anything, "ws1").Once().Return(nil)
				mRepo.On("DeleteSandbox", mock.Anything, "sbx1").Once().Return(nil)
			},
		},

		"A provider failure should not block deleting the record.": {
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(sandbox, nil)
				mRepo.On("ListSessionsByOrganization", mock.Anything, "org1").Once().Return(owned, nil)
				mWorkspace.On("Delete", mock.Anything, "ws1").Once().Return(fmt.Errorf("provider down"))
				mRepo.On("DeleteSandbox", mock.Anything, "sbx1").Once().Return(nil)
			},
		},

		"A foreign organization cannot delete the sandbox.": {
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(sandbox, nil)
				mRepo.On("ListSessionsByOrganization", mock.Anything, "org1").Once().Return([]model.FeatureSession{}, nil)
			},
			expErr: true,
		},

		"A storage failure should fail.": {
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(sandbox, nil)
				mRepo.On("ListSessionsByOrganization", mock.Anything, "org1").Once().Return(owned, nil)
				mWorkspace.On("Delete", mock.Anything, "ws1").Once().Return(nil)
				mRepo.On("DeleteSandbox", mock.Anything, "sbx1").Once().Return(fmt.Errorf("db locked"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mWorkspace := &workspacemock.MockProvider{}
			mRepo := &storagemock.MockRepository{}
			test.mock(mWorkspace, mRepo)

			svc, err := sandboxlifecycle.NewService(sandboxlifecycle.ServiceConfig{
				Workspace:  mWorkspace,
				Repository: mRepo,
			})
			require.NoError(err)

			err = svc.Delete(context.TODO(), "org1", "sbx1")
			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
			}

			mWorkspace.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}
