// Package sandboxhttp implements the agent provider contract on top of a REST
// coding-agent runtime that runs inside the sandbox workspace itself. The
// runtime speaks its own line-delimited JSON protocol, everything it emits is
// normalized into the canonical event vocabulary before leaving this package.
package sandboxhttp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/featden/featd/internal/agent"
	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/workspace"
)

// AgentPort is the port the agent runtime listens on inside the workspace.
const AgentPort = 8377

// ProviderConfig is the configuration for the sandbox HTTP agent provider.
type ProviderConfig struct {
	Workspace workspace.Provider
	// HTTPClient used to reach the in-sandbox runtime. The default has no
	// global timeout because message streams are long-lived, per-call
	// deadlines come from the caller's context.
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *ProviderConfig) defaults() error {
	if c.Workspace == nil {
		return fmt.Errorf("workspace provider is required")
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "agent.SandboxHTTP"})
	return nil
}

// Provider is the sandbox HTTP implementation of agent.Provider.
type Provider struct {
	workspace workspace.Provider
	client    *http.Client
	registry  *agent.Registry
	logger    log.Logger
}

// NewProvider creates a new sandbox HTTP agent provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Provider{
		workspace: cfg.Workspace,
		client:    cfg.HTTPClient,
		registry:  agent.NewRegistry(),
		logger:    cfg.Logger,
	}, nil
}

// Kind returns the backend kind identifier.
func (p *Provider) Kind() model.AgentProviderKind { return model.AgentProviderKindSandboxHTTP }

func (p *Provider) baseURL(ctx context.Context, workspaceID string) (string, error) {
	url, err := p.workspace.PreviewURL(ctx, workspaceID, AgentPort)
	if err != nil {
		return "", fmt.Errorf("could not resolve agent runtime address: %w", err)
	}
	return url, nil
}

func (p *Provider) doJSON(ctx context.Context, method, url string, body, out interface{}) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not serialize request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent runtime unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("agent runtime resource: %w", model.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("agent runtime returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
	}

	return nil
}

// CreateSession creates a session on the in-sandbox runtime and registers it.
func (p *Provider) CreateSession(ctx context.Context, opts agent.CreateSessionOptions) (*model.AgentSession, error) {
	base, err := p.baseURL(ctx, opts.WorkspaceID)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"workspace": opts.WorkspaceID,
	}
	if opts.SystemPrompt != "" {
		reqBody["system_prompt"] = opts.SystemPrompt
	}
	if opts.Model != "" {
		reqBody["model"] = opts.Model
	}
	if len(opts.Skills) > 0 {
		reqBody["skills"] = opts.Skills
	}

	var respBody struct {
		SessionID string `json:"session_id"`
	}
	if err := p.doJSON(ctx, http.MethodPost, base+"/v1/sessions", reqBody, &respBody); err != nil {
		return nil, fmt.Errorf("could not create agent session: %w", err)
	}

	session := model.AgentSession{
		ID:           opts.SessionID,
		NativeID:     respBody.SessionID,
		ProviderKind: p.Kind(),
		Status:       model.AgentSessionStatusIdle,
		CreatedAt:    time.Now().UTC(),
	}

	if err := p.registry.Put(session); err != nil {
		return nil, err
	}

	p.logger.Infof("Created agent session %s (native %s)", session.ID, session.NativeID)
	return &session, nil
}

// GetSession retrieves a registered session.
func (p *Provider) GetSession(ctx context.Context, sessionID, workspaceID string) (*model.AgentSession, error) {
	return p.registry.Get(sessionID)
}

// nativeEvent is the wire shape the in-sandbox runtime emits, one JSON object
// per line.
type nativeEvent struct {
	Kind   string                 `json:"kind"`
	Text   string                 `json:"text,omitempty"`
	Name   string                 `json:"name,omitempty"`
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// transformEvent maps the runtime's native vocabulary onto the canonical one.
// Complete assistant messages additionally go through the text classifier to
// surface plan/question display hints.
func transformEvent(ev nativeEvent) (model.StreamEvent, bool) {
	switch ev.Kind {
	case "delta":
		return model.StreamEvent{Type: model.StreamEventProgress, Content: ev.Text, Metadata: ev.Detail}, true
	case "message":
		return model.StreamEvent{Type: agent.ClassifyText(ev.Text), Content: ev.Text, Metadata: ev.Detail}, true
	case "status":
		return model.StreamEvent{Type: model.StreamEventProgress, Content: ev.Text, Metadata: ev.Detail}, true
	case "tool":
		return model.StreamEvent{Type: model.StreamEventToolUse, Content: ev.Name, Metadata: ev.Detail}, true
	case "tool_output":
		return model.StreamEvent{Type: model.StreamEventToolResult, Content: ev.Text, Metadata: ev.Detail}, true
	case "url":
		return model.StreamEvent{Type: model.StreamEventPreviewURL, Content: ev.Text, Metadata: ev.Detail}, true
	case "finished":
		return model.StreamEvent{Type: model.StreamEventDone, Content: ev.Text, Metadata: ev.Detail}, true
	case "failed":
		return model.StreamEvent{Type: model.StreamEventError, Content: ev.Text, Metadata: ev.Detail}, true
	default:
		// Unknown native kinds are dropped rather than leaked to clients.
		return model.StreamEvent{}, false
	}
}

// SendMessage sends a message to the runtime and streams normalized events.
func (p *Provider) SendMessage(ctx context.Context, opts agent.SendMessageOptions) (<-chan model.StreamEvent, error) {
	session, err := p.registry.Get(opts.SessionID)
	if err != nil {
		return nil, err
	}

	base, err := p.baseURL(ctx, opts.WorkspaceID)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{"content": opts.Content}
	if opts.PreviewURL != "" {
		reqBody["preview_url"] = opts.PreviewURL
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("could not serialize message: %w", err)
	}

	url := fmt.Sprintf("%s/v1/sessions/%s/messages", base, session.NativeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent runtime unreachable: %w", err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("agent runtime returned status %d", resp.StatusCode)
	}

	_ = p.registry.SetStatus(opts.SessionID, model.AgentSessionStatusBusy)

	events := make(chan model.StreamEvent)
	go p.consumeStream(ctx, opts.SessionID, resp, events)

	return events, nil
}

// consumeStream reads native events line by line, normalizes and forwards
// them. It guarantees exactly one terminal event and closes the channel.
func (p *Provider) consumeStream(ctx context.Context, sessionID string, resp *http.Response, events chan<- model.StreamEvent) {
	defer close(events)
	defer resp.Body.Close()

	terminal := false
	emit := func(ev model.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(model.StreamEvent{Type: model.StreamEventStart}) {
		p.finishStream(sessionID, model.AgentSessionStatusIdle)
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var native nativeEvent
		if err := json.Unmarshal(line, &native); err != nil {
			p.logger.Warningf("Dropping malformed agent event: %v", err)
			continue
		}

		ev, ok := transformEvent(native)
		if !ok {
			continue
		}

		if !emit(ev) {
			// Consumer went away, treat as implicit cancellation and stop
			// reading so the upstream request is released.
			p.finishStream(sessionID, model.AgentSessionStatusIdle)
			return
		}
		if ev.IsTerminal() {
			terminal = true
			break
		}
	}

	if !terminal {
		// The runtime hung up without a terminal event or the read failed,
		// either way the stream must end observably.
		msg := "agent stream ended without a terminal event"
		if err := scanner.Err(); err != nil {
			msg = fmt.Sprintf("agent stream failed: %v", err)
		}
		if ctx.Err() != nil {
			msg = "agent operation cancelled"
		}
		emit(model.StreamEvent{Type: model.StreamEventError, Content: msg})
		p.finishStream(sessionID, model.AgentSessionStatusError)
		return
	}

	p.finishStream(sessionID, model.AgentSessionStatusIdle)
}

func (p *Provider) finishStream(sessionID string, status model.AgentSessionStatus) {
	_ = p.registry.SetStatus(sessionID, status)
}

// CancelOperation signals the runtime to stop the in-flight operation and
// releases the session handle. It is idempotent, cancelling a session with
// nothing running succeeds.
func (p *Provider) CancelOperation(ctx context.Context, sessionID, workspaceID string) error {
	session, err := p.registry.Get(sessionID)
	if err != nil {
		// Nothing registered, nothing to cancel.
		return nil
	}

	base, err := p.baseURL(ctx, workspaceID)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/sessions/%s/cancel", base, session.NativeID)
	if err := p.doJSON(ctx, http.MethodPost, url, nil, nil); err != nil {
		return fmt.Errorf("could not cancel agent operation: %w", err)
	}

	p.registry.Delete(sessionID)
	return nil
}

// DeleteSession releases the runtime session and removes the registry entry.
// The registry entry is removed even when the remote release fails, the
// runtime lives inside a sandbox that is reconciled separately.
func (p *Provider) DeleteSession(ctx context.Context, sessionID, workspaceID string) error {
	session, err := p.registry.Get(sessionID)
	if err != nil {
		return err
	}

	defer p.registry.Delete(sessionID)

	base, err := p.baseURL(ctx, workspaceID)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/sessions/%s", base, session.NativeID)
	if err := p.doJSON(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return fmt.Errorf("could not delete agent session: %w", err)
	}

	p.logger.Infof("Deleted agent session %s", sessionID)
	return nil
}

// Close drops every registered handle. The runtimes are not contacted, they
// live inside sandboxes and are reconciled with them, only the local
// bookkeeping has to go.
func (p *Provider) Close(ctx context.Context) error {
	n := p.registry.Len()
	for _, session := range p.registry.List() {
		p.registry.Delete(session.ID)
	}
	if n > 0 {
		p.logger.Infof("Released %d agent session handles on shutdown", n)
	}
	return nil
}
