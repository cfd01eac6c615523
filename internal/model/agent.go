package model

import (
	"fmt"
	"time"
)

// AgentProviderKind identifies a concrete agent backend implementation.
type AgentProviderKind string

const (
	// AgentProviderKindSandboxHTTP is a REST coding agent served from inside the sandbox.
	AgentProviderKindSandboxHTTP AgentProviderKind = "sandboxhttp"
	// AgentProviderKindClaude is an in-process agent on the Anthropic SDK that
	// executes tools directly against the sandbox.
	AgentProviderKindClaude AgentProviderKind = "claude"
	// AgentProviderKindFake is a scriptable agent backend, used for tests.
	AgentProviderKindFake AgentProviderKind = "fake"
)

// AgentSessionStatus represents the status of an agent session.
type AgentSessionStatus string

const (
	// AgentSessionStatusIdle indicates the agent session is not processing work.
	AgentSessionStatusIdle AgentSessionStatus = "idle"
	// AgentSessionStatusBusy indicates the agent session is processing a message.
	AgentSessionStatusBusy AgentSessionStatus = "busy"
	// AgentSessionStatusError indicates the agent session failed.
	AgentSessionStatusError AgentSessionStatus = "error"
)

// AgentSession is the handle a concrete agent backend returns for an
// orchestration session. NativeID is opaque outside the owning backend.
type AgentSession struct {
	// ID matches the orchestration session ID.
	ID           string
	NativeID     string
	ProviderKind AgentProviderKind
	Status       AgentSessionStatus
	CreatedAt    time.Time
}

// StreamEventType is the canonical vocabulary every agent backend must map
// its native events onto.
type StreamEventType string

const (
	StreamEventStart      StreamEventType = "start"
	StreamEventMessage    StreamEventType = "message"
	StreamEventPlan       StreamEventType = "plan"
	StreamEventQuestion   StreamEventType = "question"
	StreamEventProgress   StreamEventType = "progress"
	StreamEventToolUse    StreamEventType = "tool_use"
	StreamEventToolResult StreamEventType = "tool_result"
	StreamEventPreviewURL StreamEventType = "preview_url"
	StreamEventError      StreamEventType = "error"
	StreamEventDone       StreamEventType = "done"
)

// StreamEvent is a single normalized progress event emitted while an agent works.
type StreamEvent struct {
	Type     StreamEventType        `json:"type"`
	Content  string                 `json:"content,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// MessageID references the persisted transcript message, set on terminal
	// events once the transcript has been stored.
	MessageID string `json:"messageId,omitempty"`
}

// IsTerminal reports whether the event ends a stream. Every stream must end
// with exactly one terminal event.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}

// ValidStreamEventType reports whether t belongs to the canonical vocabulary.
func ValidStreamEventType(t StreamEventType) bool {
	switch t {
	case StreamEventStart, StreamEventMessage, StreamEventPlan, StreamEventQuestion,
		StreamEventProgress, StreamEventToolUse, StreamEventToolResult,
		StreamEventPreviewURL, StreamEventError, StreamEventDone:
		return true
	}
	return false
}

// PlanChange is one proposed change within a plan.
type PlanChange struct {
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
}

// PlanResult is the structured proposal produced before any code is written.
type PlanResult struct {
	Summary        string       `json:"summary"`
	Changes        []PlanChange `json:"changes"`
	Considerations []string     `json:"considerations,omitempty"`
}

// Validate validates the plan result.
func (p *PlanResult) Validate() error {
	if p.Summary == "" {
		return fmt.Errorf("plan summary is required: %w", ErrNotValid)
	}
	if len(p.Changes) == 0 {
		return fmt.Errorf("plan must contain at least one change: %w", ErrNotValid)
	}
	return nil
}
