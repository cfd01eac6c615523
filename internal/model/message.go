package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageRole is the author role of a transcript message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// MessagePhase tags a message with the workflow phase that produced it.
type MessagePhase string

const (
	MessagePhaseNone     MessagePhase = ""
	MessagePhasePlanning MessagePhase = "planning"
	MessagePhaseBuilding MessagePhase = "building"
)

// metadataKindPlan marks a message as a plan artifact in its metadata.
const metadataKindPlan = "plan"

// Message is an immutable transcript entry. The orchestration engine only ever
// appends messages, ordering is by creation timestamp.
type Message struct {
	ID        string
	SessionID string
	Role      MessageRole
	Content   string
	Phase     MessagePhase
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// Validate validates the message.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if m.SessionID == "" {
		return fmt.Errorf("session id is required: %w", ErrNotValid)
	}
	switch m.Role {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem:
	default:
		return fmt.Errorf("unknown message role %q: %w", m.Role, ErrNotValid)
	}
	return nil
}

// NewPlanMessage builds an assistant message carrying a serialized plan artifact.
func NewPlanMessage(id, sessionID string, plan PlanResult, now time.Time) (*Message, error) {
	serialized, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("could not serialize plan: %w", err)
	}

	return &Message{
		ID:        id,
		SessionID: sessionID,
		Role:      MessageRoleAssistant,
		Content:   string(serialized),
		Phase:     MessagePhasePlanning,
		Metadata: map[string]interface{}{
			"kind": metadataKindPlan,
		},
		CreatedAt: now,
	}, nil
}

// IsPlan reports whether the message is a plan artifact.
func (m *Message) IsPlan() bool {
	kind, ok := m.Metadata["kind"].(string)
	return ok && kind == metadataKindPlan
}

// Plan deserializes the plan artifact carried by the message.
func (m *Message) Plan() (*PlanResult, error) {
	if !m.IsPlan() {
		return nil, fmt.Errorf("message %s is not a plan artifact: %w", m.ID, ErrNotValid)
	}

	plan := &PlanResult{}
	if err := json.Unmarshal([]byte(m.Content), plan); err != nil {
		return nil, fmt.Errorf("could not deserialize plan from message %s: %w", m.ID, err)
	}

	return plan, nil
}

// LatestPlanMessage returns the newest plan artifact in a transcript ordered
// oldest-first, or ErrNotFound when the transcript has no plan.
func LatestPlanMessage(msgs []Message) (*Message, error) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsPlan() {
			m := msgs[i]
			return &m, nil
		}
	}
	return nil, fmt.Errorf("no plan message: %w", ErrNotFound)
}
