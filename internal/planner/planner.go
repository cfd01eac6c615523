package planner

import (
	"context"

	"github.com/featden/featd/internal/model"
)

// PlanRequest carries everything the planner needs to produce a feature plan.
type PlanRequest struct {
	SessionID    string
	RepoFullName string
	RepoURL      string
	BranchName   string
	// Prompt is the user's feature description.
	Prompt string
	// History is the prior session transcript, oldest first, used so
	// follow-up prompts refine the previous plan instead of starting over.
	History []model.Message
}

// Planner produces structured feature plans from a user prompt.
type Planner interface {
	GeneratePlan(ctx context.Context, req PlanRequest) (*model.PlanResult, error)
}
