package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featden/featd/internal/model"
)

func TestApprovalResolve(t *testing.T) {
	now := time.Now().UTC()

	tests := map[string]struct {
		approval  model.Approval
		status    model.ApprovalStatus
		expErr    error
		expStatus model.ApprovalStatus
	}{
		"Approve a pending approval": {
			approval:  model.Approval{ID: "ap-1", SessionID: "s-1", MessageID: "m-1", Status: model.ApprovalStatusPending},
			status:    model.ApprovalStatusApproved,
			expStatus: model.ApprovalStatusApproved,
		},
		"Reject a pending approval": {
			approval:  model.Approval{ID: "ap-1", SessionID: "s-1", MessageID: "m-1", Status: model.ApprovalStatusPending},
			status:    model.ApprovalStatusRejected,
			expStatus: model.ApprovalStatusRejected,
		},
		"Resolving an already approved approval fails": {
			approval: model.Approval{ID: "ap-1", SessionID: "s-1", MessageID: "m-1", Status: model.ApprovalStatusApproved},
			status:   model.ApprovalStatusRejected,
			expErr:   model.ErrPreconditionFailed,
		},
		"Resolving to pending is not a resolution": {
			approval: model.Approval{ID: "ap-1", SessionID: "s-1", MessageID: "m-1", Status: model.ApprovalStatusPending},
			status:   model.ApprovalStatusPending,
			expErr:   model.ErrNotValid,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			a := tt.approval

			err := a.Resolve(tt.status, "user-1", "lgtm", now)

			if tt.expErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.expErr))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expStatus, a.Status)
				assert.Equal(t, "user-1", a.ReviewerID)
				require.NotNil(t, a.ReviewedAt)
				assert.Equal(t, now, *a.ReviewedAt)
			}
		})
	}
}
