package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featden/featd/internal/model"
)

func TestPlanMessageRoundTrip(t *testing.T) {
	plan := model.PlanResult{
		Summary: "Add dark mode support",
		Changes: []model.PlanChange{
			{Path: "web/theme.css", Description: "Add dark palette variables"},
			{Description: "Wire a theme toggle into the settings page"},
		},
		Considerations: []string{"Respect prefers-color-scheme"},
	}

	msg, err := model.NewPlanMessage("msg-1", "sess-1", plan, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, model.MessageRoleAssistant, msg.Role)
	assert.Equal(t, model.MessagePhasePlanning, msg.Phase)
	assert.True(t, msg.IsPlan())

	got, err := msg.Plan()
	require.NoError(t, err)
	assert.Equal(t, plan, *got)
}

func TestPlanOnNonPlanMessage(t *testing.T) {
	msg := model.Message{ID: "msg-1", SessionID: "sess-1", Role: model.MessageRoleUser, Content: "hi"}

	assert.False(t, msg.IsPlan())

	_, err := msg.Plan()
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotValid))
}

func TestLatestPlanMessage(t *testing.T) {
	now := time.Now().UTC()
	planA, err := model.NewPlanMessage("msg-plan-a", "sess-1", model.PlanResult{
		Summary: "first round",
		Changes: []model.PlanChange{{Description: "a"}},
	}, now)
	require.NoError(t, err)
	planB, err := model.NewPlanMessage("msg-plan-b", "sess-1", model.PlanResult{
		Summary: "second round",
		Changes: []model.PlanChange{{Description: "b"}},
	}, now.Add(time.Minute))
	require.NoError(t, err)

	tests := map[string]struct {
		msgs   []model.Message
		expID  string
		expErr bool
	}{
		"Newest plan wins": {
			msgs: []model.Message{
				{ID: "msg-user", Role: model.MessageRoleUser},
				*planA,
				{ID: "msg-sys", Role: model.MessageRoleSystem},
				*planB,
			},
			expID: "msg-plan-b",
		},
		"Single plan": {
			msgs:  []model.Message{*planA},
			expID: "msg-plan-a",
		},
		"No plan in transcript": {
			msgs:   []model.Message{{ID: "msg-user", Role: model.MessageRoleUser}},
			expErr: true,
		},
		"Empty transcript": {
			msgs:   nil,
			expErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := model.LatestPlanMessage(tt.msgs)

			if tt.expErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, model.ErrNotFound))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expID, got.ID)
			}
		})
	}
}

func TestStreamEventTerminal(t *testing.T) {
	tests := map[string]struct {
		event       model.StreamEvent
		expTerminal bool
	}{
		"Done is terminal":        {event: model.StreamEvent{Type: model.StreamEventDone}, expTerminal: true},
		"Error is terminal":       {event: model.StreamEvent{Type: model.StreamEventError}, expTerminal: true},
		"Start is not terminal":   {event: model.StreamEvent{Type: model.StreamEventStart}},
		"Message is not terminal": {event: model.StreamEvent{Type: model.StreamEventMessage}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expTerminal, tt.event.IsTerminal())
		})
	}
}
