// Package fake implements a scriptable agent provider used in tests and local
// development. Scripts are per-message event sequences, a terminal event is
// appended automatically when a script does not end with one.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	agentpkg "github.com/featden/featd/internal/agent"
	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
)

// ProviderConfig is the configuration for the fake agent provider.
type ProviderConfig struct {
	// Script produces the events streamed for a message. When nil a minimal
	// message+done sequence echoing the input is used.
	Script func(opts agentpkg.SendMessageOptions) []model.StreamEvent
	// CreateErr forces CreateSession to fail.
	CreateErr error
	// SendErr forces SendMessage to fail before any event is emitted.
	SendErr error
	Logger  log.Logger
}

func (c *ProviderConfig) defaults() error {
	if c.Script == nil {
		c.Script = func(opts agentpkg.SendMessageOptions) []model.StreamEvent {
			return []model.StreamEvent{
				{Type: model.StreamEventMessage, Content: "echo: " + opts.Content},
				{Type: model.StreamEventDone},
			}
		}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

// Provider is the fake implementation of agent.Provider.
type Provider struct {
	script    func(opts agentpkg.SendMessageOptions) []model.StreamEvent
	createErr error
	sendErr   error
	registry  *agentpkg.Registry
	logger    log.Logger

	mu    sync.Mutex
	sent  []agentpkg.SendMessageOptions
	calls map[string]int
}

// NewProvider creates a new fake agent provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Provider{
		script:    cfg.Script,
		createErr: cfg.CreateErr,
		sendErr:   cfg.SendErr,
		registry:  agentpkg.NewRegistry(),
		logger:    cfg.Logger,
		calls:     map[string]int{},
	}, nil
}

// Kind returns the backend kind identifier.
func (p *Provider) Kind() model.AgentProviderKind { return model.AgentProviderKindFake }

// CreateSession registers a fake session.
func (p *Provider) CreateSession(ctx context.Context, opts agentpkg.CreateSessionOptions) (*model.AgentSession, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}

	session := model.AgentSession{
		ID:           opts.SessionID,
		NativeID:     uuid.NewString(),
		ProviderKind: p.Kind(),
		Status:       model.AgentSessionStatusIdle,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.registry.Put(session); err != nil {
		return nil, err
	}

	return &session, nil
}

// GetSession retrieves a registered session.
func (p *Provider) GetSession(ctx context.Context, sessionID, workspaceID string) (*model.AgentSession, error) {
	return p.registry.Get(sessionID)
}

// SendMessage streams the scripted events. A terminal event is appended when
// the script forgot one so the channel contract holds regardless of the
// script.
func (p *Provider) SendMessage(ctx context.Context, opts agentpkg.SendMessageOptions) (<-chan model.StreamEvent, error) {
	if p.sendErr != nil {
		return nil, p.sendErr
	}
	if _, err := p.registry.Get(opts.SessionID); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.sent = append(p.sent, opts)
	p.mu.Unlock()

	_ = p.registry.SetStatus(opts.SessionID, model.AgentSessionStatusBusy)

	scripted := p.script(opts)

	events := make(chan model.StreamEvent)
	go func() {
		defer close(events)
		defer p.registry.SetStatus(opts.SessionID, model.AgentSessionStatusIdle)

		emit := func(ev model.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(model.StreamEvent{Type: model.StreamEventStart}) {
			return
		}

		terminal := false
		for _, ev := range scripted {
			if !emit(ev) {
				return
			}
			if ev.IsTerminal() {
				terminal = true
				break
			}
		}
		if !terminal {
			emit(model.StreamEvent{Type: model.StreamEventDone})
		}
	}()

	return events, nil
}

// CancelOperation releases the session, fake streams are short-lived so there
// is nothing in flight to stop.
func (p *Provider) CancelOperation(ctx context.Context, sessionID, workspaceID string) error {
	p.mu.Lock()
	p.calls["cancel"]++
	p.mu.Unlock()
	p.registry.Delete(sessionID)
	return nil
}

// DeleteSession removes the registry entry.
func (p *Provider) DeleteSession(ctx context.Context, sessionID, workspaceID string) error {
	p.mu.Lock()
	p.calls["delete"]++
	p.mu.Unlock()
	p.registry.Delete(sessionID)
	return nil
}

// Close releases every registered session.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	p.calls["close"]++
	p.mu.Unlock()
	for _, session := range p.registry.List() {
		p.registry.Delete(session.ID)
	}
	return nil
}

// SentMessages returns the messages sent so far, oldest first.
func (p *Provider) SentMessages() []agentpkg.SendMessageOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]agentpkg.SendMessageOptions{}, p.sent...)
}

// Calls returns how many times the named control operation ran.
func (p *Provider) Calls(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}
