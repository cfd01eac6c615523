// Package claude implements the agent provider contract on top of the
// Anthropic Messages API. The model runs outside the sandbox, every command it
// wants to execute is routed into the workspace through the workspace
// provider, so the two backends stay interchangeable from the caller's side.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	agentpkg "github.com/featden/featd/internal/agent"
	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/workspace"
)

const (
	defaultModel    = "claude-sonnet-4-20250514"
	defaultMaxTurns = 24
	maxTokens       = 8192

	workspaceDir = "/workspace"

	bashToolName = "bash"
)

// ProviderConfig is the configuration for the Claude agent provider.
type ProviderConfig struct {
	APIKey    string
	Model     string
	Workspace workspace.Provider
	// MaxTurns bounds the tool loop per message so a confused model cannot
	// spin forever inside the sandbox.
	MaxTurns int
	Logger   log.Logger
}

func (c *ProviderConfig) defaults() error {
	if c.Workspace == nil {
		return fmt.Errorf("workspace provider is required")
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = defaultMaxTurns
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "agent.Claude"})
	return nil
}

// conversation is the per-session state. History is replayed on every API
// turn, the Messages API itself is stateless.
type conversation struct {
	mu      sync.Mutex
	system  string
	history []anthropic.MessageParam
	cancel  context.CancelFunc
}

// Provider is the Anthropic Messages implementation of agent.Provider.
type Provider struct {
	api       *anthropic.Client
	model     anthropic.Model
	workspace workspace.Provider
	maxTurns  int
	registry  *agentpkg.Registry
	logger    log.Logger

	mu            sync.Mutex
	conversations map[string]*conversation
}

// NewProvider creates a new Claude agent provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client := anthropic.NewClient(opts...)

	return &Provider{
		api:           &client,
		model:         anthropic.Model(cfg.Model),
		workspace:     cfg.Workspace,
		maxTurns:      cfg.MaxTurns,
		registry:      agentpkg.NewRegistry(),
		logger:        cfg.Logger,
		conversations: map[string]*conversation{},
	}, nil
}

// Kind returns the backend kind identifier.
func (p *Provider) Kind() model.AgentProviderKind { return model.AgentProviderKindClaude }

// CreateSession registers a new conversation. Nothing is provisioned remotely,
// the Messages API has no session concept of its own.
func (p *Provider) CreateSession(ctx context.Context, opts agentpkg.CreateSessionOptions) (*model.AgentSession, error) {
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

	system := opts.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	if len(opts.Skills) > 0 {
		system += "\n\nAvailable skills: " + strings.Join(opts.Skills, ", ")
	}

	p.mu.Lock()
	p.conversations[opts.SessionID] = &conversation{system: system}
	p.mu.Unlock()

	p.logger.Infof("Created agent session %s", session.ID)
	return &session, nil
}

// GetSession retrieves a registered session.
func (p *Provider) GetSession(ctx context.Context, sessionID, workspaceID string) (*model.AgentSession, error) {
	return p.registry.Get(sessionID)
}

func (p *Provider) conversation(sessionID string) (*conversation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conv, ok := p.conversations[sessionID]
	if !ok {
		return nil, fmt.Errorf("agent session conversation: %w", model.ErrNotFound)
	}
	return conv, nil
}

// SendMessage drives a full agentic turn, the model alternates between text
// and tool calls until it stops asking for tools. Events stream on the
// returned channel, exactly one terminal event is emitted before close.
func (p *Provider) SendMessage(ctx context.Context, opts agentpkg.SendMessageOptions) (<-chan model.StreamEvent, error) {
	if _, err := p.registry.Get(opts.SessionID); err != nil {
		return nil, err
	}
	conv, err := p.conversation(opts.SessionID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	conv.mu.Lock()
	conv.cancel = cancel
	conv.mu.Unlock()

	_ = p.registry.SetStatus(opts.SessionID, model.AgentSessionStatusBusy)

	events := make(chan model.StreamEvent)
	go p.runTurn(runCtx, conv, opts, events)

	return events, nil
}

func (p *Provider) runTurn(ctx context.Context, conv *conversation, opts agentpkg.SendMessageOptions, events chan<- model.StreamEvent) {
	defer close(events)

	emit := func(ev model.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(msg string) {
		emit(model.StreamEvent{Type: model.StreamEventError, Content: msg})
		p.finishTurn(conv, opts.SessionID, model.AgentSessionStatusError)
	}

	if !emit(model.StreamEvent{Type: model.StreamEventStart}) {
		p.finishTurn(conv, opts.SessionID, model.AgentSessionStatusIdle)
		return
	}

	content := opts.Content
	if opts.PreviewURL != "" {
		content += "\n\nThe application preview is reachable at: " + opts.PreviewURL
	}

	conv.mu.Lock()
	conv.history = append(conv.history, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
	history := append([]anthropic.MessageParam{}, conv.history...)
	system := conv.system
	conv.mu.Unlock()

	for turn := 0; turn < p.maxTurns; turn++ {
		msg, err := p.api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     p.model,
			MaxTokens: maxTokens,
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: history,
			Tools:    bashTools(),
		})
		if err != nil {
			if ctx.Err() != nil {
				fail("agent operation cancelled")
				return
			}
			fail(fmt.Sprintf("anthropic API call: %v", err))
			return
		}

		history = append(history, msg.ToParam())

		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				if !emit(model.StreamEvent{Type: agentpkg.ClassifyText(block.Text), Content: block.Text}) {
					p.finishTurn(conv, opts.SessionID, model.AgentSessionStatusIdle)
					return
				}
			case "tool_use":
				result, isError := p.executeTool(ctx, opts.WorkspaceID, block.Name, block.Input, emit)
				if ctx.Err() != nil {
					fail("agent operation cancelled")
					return
				}
				toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, result, isError))
				if !emit(model.StreamEvent{Type: model.StreamEventToolResult, Content: result, Metadata: map[string]interface{}{"tool": block.Name, "isError": isError}}) {
					p.finishTurn(conv, opts.SessionID, model.AgentSessionStatusIdle)
					return
				}
			}
		}

		if msg.StopReason != anthropic.StopReasonToolUse || len(toolResults) == 0 {
			conv.mu.Lock()
			conv.history = history
			conv.mu.Unlock()

			emit(model.StreamEvent{Type: model.StreamEventDone})
			p.finishTurn(conv, opts.SessionID, model.AgentSessionStatusIdle)
			return
		}

		history = append(history, anthropic.NewUserMessage(toolResults...))
	}

	conv.mu.Lock()
	conv.history = history
	conv.mu.Unlock()

	fail(fmt.Sprintf("agent exceeded %d tool turns without finishing", p.maxTurns))
}

// executeTool runs a single model-requested tool inside the workspace and
// returns its textual result.
func (p *Provider) executeTool(ctx context.Context, workspaceID, name string, input json.RawMessage, emit func(model.StreamEvent) bool) (string, bool) {
	if name != bashToolName {
		return fmt.Sprintf("unknown tool %q", name), true
	}

	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return fmt.Sprintf("invalid tool input: %v", err), true
	}

	emit(model.StreamEvent{Type: model.StreamEventToolUse, Content: args.Command, Metadata: map[string]interface{}{"tool": bashToolName}})

	res, err := p.workspace.Exec(ctx, workspaceID, []string{"sh", "-c", args.Command}, workspace.ExecOpts{
		WorkingDir: workspaceDir,
		Timeout:    5 * time.Minute,
	})
	if err != nil {
		return fmt.Sprintf("command failed to run: %v", err), true
	}

	out := res.Stdout
	if res.Stderr != "" {
		out += "\n" + res.Stderr
	}
	out = strings.TrimSpace(out)
	if res.ExitCode != 0 {
		return fmt.Sprintf("exit code %d\n%s", res.ExitCode, out), true
	}
	if out == "" {
		out = "(no output)"
	}
	return out, false
}

func bashTools() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        bashToolName,
				Description: anthropic.String("Run a shell command inside the project workspace. The project checkout lives at /workspace."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"command": map[string]interface{}{
							"type":        "string",
							"description": "The shell command to run.",
						},
					},
					Required: []string{"command"},
				},
			},
		},
	}
}

func (p *Provider) finishTurn(conv *conversation, sessionID string, status model.AgentSessionStatus) {
	conv.mu.Lock()
	conv.cancel = nil
	conv.mu.Unlock()
	_ = p.registry.SetStatus(sessionID, status)
}

// CancelOperation stops the in-flight turn if any and releases the session,
// dropping its conversation history. It is idempotent and never blocks on the
// turn actually stopping.
func (p *Provider) CancelOperation(ctx context.Context, sessionID, workspaceID string) error {
	conv, err := p.conversation(sessionID)
	if err != nil {
		return nil
	}

	conv.mu.Lock()
	if conv.cancel != nil {
		conv.cancel()
	}
	conv.mu.Unlock()

	p.mu.Lock()
	delete(p.conversations, sessionID)
	p.mu.Unlock()

	p.registry.Delete(sessionID)
	return nil
}

// DeleteSession drops the conversation and the registry entry.
func (p *Provider) DeleteSession(ctx context.Context, sessionID, workspaceID string) error {
	_ = p.CancelOperation(ctx, sessionID, workspaceID)

	p.mu.Lock()
	delete(p.conversations, sessionID)
	p.mu.Unlock()

	p.registry.Delete(sessionID)
	return nil
}

// Close cancels whatever is still running and releases every session.
func (p *Provider) Close(ctx context.Context) error {
	for _, session := range p.registry.List() {
		if err := p.CancelOperation(ctx, session.ID, ""); err != nil {
			return fmt.Errorf("could not release agent session %s: %w", session.ID, err)
		}
	}
	return nil
}

const defaultSystemPrompt = `You are a senior software engineer working inside an isolated project workspace.
You implement the feature plan you are given, step by step, using the bash tool to inspect and modify the project under /workspace.
Make focused changes, verify them when a test command is available, and summarize what you changed when you are done.`
