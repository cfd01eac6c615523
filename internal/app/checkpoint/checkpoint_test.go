package checkpoint_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/featden/featd/internal/app/checkpoint"
	"github.com/featden/featd/internal/app/sandboxlifecycle"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/storage/storagemock"
	"github.com/featden/featd/internal/workspace/workspacemock"
)

func newService(t *testing.T, mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) *checkpoint.Service {
	t.Helper()
	require := require.New(t)

	life, err := sandboxlifecycle.NewService(sandboxlifecycle.ServiceConfig{
		Workspace:  mWorkspace,
		Repository: mRepo,
	})
	require.NoError(err)

	svc, err := checkpoint.NewService(checkpoint.ServiceConfig{
		Workspace:  mWorkspace,
		Lifecycle:  life,
		Repository: mRepo,
	})
	require.NoError(err)

	return svc
}

func strPtr(s string) *string { return &s }

func TestServiceCreate(t *testing.T) {
	sandbox := &model.Sandbox{ID: "sbx1", RepositoryID: "repo1", WorkspaceID: "ws1", Status: model.SandboxStatusRunning}
	ownedSessions := []model.FeatureSession{{ID: "sess1", OrganizationID: "org1", RepositoryID: "repo1", SandboxID: strPtr("sbx1")}}

	scoped := func(mRepo *storagemock.MockRepository) {
		mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(sandbox, nil)
		mRepo.On("ListSessionsByOrganization", mock.Anything, "org1").Once().Return(ownedSessions, nil)
	}

	tests := map[string]struct {
		opts        checkpoint.CreateOptions
		mock        func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository)
		expErr      error
		expAnyErr   bool
		expSnapshot bool
	}{
		"A checkpoint with a working snapshot should carry the snapshot id.": {
			opts: checkpoint.CreateOptions{OrgID: "org1", SandboxID: "sbx1", Label: "before-build"},
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				scoped(mRepo)
				mRepo.On("CreateCheckpoint", mock.Anything, mock.Anything).Once().Return(nil)
				mRepo.On("UpdateSandbox", mock.Anything, mock.MatchedBy(func(s model.Sandbox) bool {
					return s.LastCheckpointID != nil
				})).Once().Return(nil)
				mWorkspace.On("CreateSnapshot", mock.Anything, "ws1", "before-build").Once().Return("snap1", nil)
				mRepo.On("UpdateCheckpoint", mock.Anything, mock.MatchedBy(func(c model.Checkpoint) bool {
					return c.ProviderSnapshotID != nil && *c.ProviderSnapshotID == "snap1"
				})).Once().Return(nil)
			},
			expSnapshot: true,
		},

		"A checkpoint tied to a session bound to this sandbox should succeed.": {
			opts: checkpoint.CreateOptions{OrgID: "org1", SandboxID: "sbx1", Label: "before-build", SessionID: strPtr("sess1")},
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				scoped(mRepo)
				mRepo.On("GetSession", mock.Anything, "sess1").Once().Return(&ownedSessions[0], nil)
				mRepo.On("CreateCheckpoint", mock.Anything, mock.Anything).Once().Return(nil)
				mRepo.On("UpdateSandbox", mock.Anything, mock.Anything).Once().Return(nil)
				mWorkspace.On("CreateSnapshot", mock.Anything, "ws1", "before-build").Once().Return("snap1", nil)
				mRepo.On("UpdateCheckpoint", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expSnapshot: true,
		},

		"A session bound to a different sandbox should fail the precondition.": {
			opts: checkpoint.CreateOptions{OrgID: "org1", SandboxID: "sbx1", Label: "before-build", SessionID: strPtr("sess2")},
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				scoped(mRepo)
				mRepo.On("GetSession", mock.Anything, "sess2").Once().Return(&model.FeatureSession{
					ID: "sess2", OrganizationID: "org1", RepositoryID: "repo1", SandboxID: strPtr("sbx-other"),
				}, nil)
			},
			expErr: model.ErrPreconditionFailed,
		},

		"A session without a bound sandbox should fail the precondition.": {
			opts: checkpoint.CreateOptions{OrgID: "org1", SandboxID: "sbx1", Label: "before-build", SessionID: strPtr("sess3")},
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				scoped(mRepo)
				mRepo.On("GetSession", mock.Anything, "sess3").Once().Return(&model.FeatureSession{
					ID: "sess3", OrganizationID: "org1", RepositoryID: "repo1",
				}, nil)
			},
			expErr: model.ErrPreconditionFailed,
		},

		"A session of another organization should be invisible.": {
			opts: checkpoint.CreateOptions{OrgID: "org1", SandboxID: "sbx1", Label: "before-build", SessionID: strPtr("sess-foreign")},
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				scoped(mRepo)
				mRepo.On("GetSession", mock.Anything, "sess-foreign").Once().Return(&model.FeatureSession{
					ID: "sess-foreign", OrganizationID: "org2", RepositoryID: "repo1", SandboxID: strPtr("sbx1"),
				}, nil)
			},
			expErr: model.ErrNotFound,
		},

		"A sandbox of another organization should be invisible.": {
			opts: checkpoint.CreateOptions{OrgID: "org2", SandboxID: "sbx1", Label: "before-build"},
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(sandbox, nil)
				mRepo.On("ListSessionsByOrganization", mock.Anything, "org2").Once().Return([]model.FeatureSession{}, nil)
			},
			expErr: model.ErrNotFound,
		},

		"A snapshot failure should still create the checkpoint record.": {
			opts: checkpoint.CreateOptions{OrgID: "org1", SandboxID: "sbx1", Label: "before-build"},
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				scoped(mRepo)
				mRepo.On("CreateCheckpoint", mock.Anything, mock.Anything).Once().Return(nil)
				mRepo.On("UpdateSandbox", mock.Anything, mock.Anything).Once().Return(nil)
				mWorkspace.On("CreateSnapshot", mock.Anything, "ws1", "before-build").Once().Return("", fmt.Errorf("provider down"))
			},
		},

		"A record write failure should fail the whole operation.": {
			opts: checkpoint.CreateOptions{OrgID: "org1", SandboxID: "sbx1", Label: "before-build"},
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				scoped(mRepo)
				mRepo.On("CreateCheckpoint", mock.Anything, mock.Anything).Once().Return(fmt.Errorf("db locked"))
			},
			expAnyErr: true,
		},

		"A missing label should fail.": {
			opts:      checkpoint.CreateOptions{OrgID: "org1", SandboxID: "sbx1"},
			mock:      func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {},
			expAnyErr: true,
		},

		"A missing sandbox should fail.": {
			opts: checkpoint.CreateOptions{OrgID: "org1", SandboxID: "sbx-missing", Label: "x"},
			mock: func(mWorkspace *workspacemock.MockProvider, mRepo *storagemock.MockRepository) {
				mRepo.On("GetSandbox", mock.Anything, "sbx-missing").Once().Return(nil, model.ErrNotFound)
			},
			expErr: model.ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mWorkspace := &workspacemock.MockProvider{}
			mRepo := &storagemock.MockRepository{}
			test.mock(mWorkspace, mRepo)

			svc := newService(t, mWorkspace, mRepo)

			got, err := svc.Create(context.TODO(), test.opts)
			switch {
			case test.expErr != nil:
				assert.ErrorIs(err, test.expErr)
			case test.expAnyErr:
				assert.Error(err)
			default:
				assert.NoError(err)
				assert.Equal(model.CheckpointTypeManual, got.Type)
				if test.expSnapshot {
					require.NotNil(got.ProviderSnapshotID)
					assert.Equal("snap1", *got.ProviderSnapshotID)
				} else {
					assert.Nil(got.ProviderSnapshotID)
				}
			}

			mWorkspace.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestServiceList(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	mRepo := &storagemock.MockRepository{}
	mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(&model.Sandbox{ID: "sbx1", RepositoryID: "repo1"}, nil)
	mRepo.On("ListSessionsByOrganization", mock.Anything, "org1").Once().Return([]model.FeatureSession{
		{ID: "sess1", OrganizationID: "org1", RepositoryID: "repo1"},
	}, nil)
	mRepo.On("ListCheckpointsBySandbox", mock.Anything, "sbx1").Once().Return([]model.Checkpoint{
		{ID: "cp2", SandboxID: "sbx1"},
		{ID: "cp1", SandboxID: "sbx1"},
	}, nil)

	svc := newService(t, &workspacemock.MockProvider{}, mRepo)

	got, err := svc.List(context.TODO(), "org1", "sbx1")
	require.NoError(err)
	assert.Equal([]string{"cp2", "cp1"}, []string{got[0].ID, got[1].ID})

	mRepo.AssertExpectations(t)
}

func TestServiceListScopedToOrganization(t *testing.T) {
	mRepo := &storagemock.MockRepository{}
	mRepo.On("GetSandbox", mock.Anything, "sbx1").Once().Return(&model.Sandbox{ID: "sbx1", RepositoryID: "repo1"}, nil)
	mRepo.On("ListSessionsByOrganization", mock.Anything, "org2").Once().Return([]model.FeatureSession{}, nil)

	svc := newService(t, &workspacemock.MockProvider{}, mRepo)

	_, err := svc.List(context.TODO(), "org2", "sbx1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	mRepo.AssertExpectations(t)
}
