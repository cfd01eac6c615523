// Package claude implements the planner on top of the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/planner"
)

const (
	defaultModel = "claude-sonnet-4-20250514"
	maxTokens    = 4096
	// maxHistoryMessages bounds how much transcript is replayed into the
	// planning prompt.
	maxHistoryMessages = 20
)

const systemPrompt = `You are a senior software engineer planning a feature implementation. Given a repository and a feature request, return ONLY a JSON object with these fields:
- "summary": a short paragraph describing the overall approach
- "changes": an array of objects, each with "path" (the file to create or modify) and "description" (what to do in that file)
- "considerations": an array of strings with risks, open questions or follow-ups worth flagging

Rules:
- Plan the smallest set of changes that delivers the feature
- Paths are relative to the repository root
- When prior conversation is provided, refine the previous plan instead of starting from scratch
- Return valid JSON only, no markdown fencing or explanation`

// PlannerConfig is the configuration for the Claude planner.
type PlannerConfig struct {
	APIKey string
	Model  string
	Logger log.Logger
}

func (c *PlannerConfig) defaults() error {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "planner.Claude"})
	return nil
}

// Planner is the Anthropic Messages implementation of planner.Planner.
type Planner struct {
	api    *anthropic.Client
	model  anthropic.Model
	logger log.Logger
}

// NewPlanner creates a new Claude planner.
func NewPlanner(cfg PlannerConfig) (*Planner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client := anthropic.NewClient(opts...)

	return &Planner{
		api:    &client,
		model:  anthropic.Model(cfg.Model),
		logger: cfg.Logger,
	}, nil
}

func buildUserPrompt(req planner.PlanRequest) string {
	var sb strings.Builder
	sb.WriteString("Repository: ")
	sb.WriteString(req.RepoFullName)
	sb.WriteString("\n")
	if req.RepoURL != "" {
		sb.WriteString("Clone URL: ")
		sb.WriteString(req.RepoURL)
		sb.WriteString("\n")
	}
	if req.BranchName != "" {
		sb.WriteString("Working branch: ")
		sb.WriteString(req.BranchName)
		sb.WriteString("\n")
	}

	history := req.History
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	if len(history) > 0 {
		sb.WriteString("\nPrior conversation:\n")
		for _, msg := range history {
			sb.WriteString(string(msg.Role))
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nFeature request:\n")
	sb.WriteString(req.Prompt)
	return sb.String()
}

// GeneratePlan asks the model for a structured plan and parses it.
func (p *Planner) GeneratePlan(ctx context.Context, req planner.PlanRequest) (*model.PlanResult, error) {
	msg, err := p.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	text = stripFencing(text)

	var plan model.PlanResult
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("parse plan as JSON: %w", err)
	}

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("model returned an invalid plan: %w", err)
	}

	p.logger.Debugf("Generated plan with %d changes for session %s", len(plan.Changes), req.SessionID)
	return &plan, nil
}

// stripFencing removes markdown code fences the model sometimes wraps JSON in.
func stripFencing(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
