package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/featden/featd/internal/model"
)

// JSONPrinter prints feature session information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents a feature session in the list output (subset of fields).
type listItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Repo      string    `json:"repo"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// sessionOutput represents the full feature session output.
type sessionOutput struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Repo           string    `json:"repo"`
	Branch         string    `json:"branch"`
	Status         string    `json:"status"`
	SandboxID      *string   `json:"sandbox_id"`
	AgentSessionID *string   `json:"agent_session_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintSessionList prints feature sessions in JSON format with a subset of fields.
func (j *JSONPrinter) PrintSessionList(sessions []model.FeatureSession) error {
	items := make([]listItem, len(sessions))
	for i, s := range sessions {
		items[i] = listItem{
			ID:        s.ID,
			Name:      s.Name,
			Repo:      s.RepoFullName,
			Status:    string(s.Status),
			CreatedAt: s.CreatedAt.UTC(),
		}
	}

	return j.print(items)
}

// PrintSession prints the full feature session in JSON format.
func (j *JSONPrinter) PrintSession(session model.FeatureSession) error {
	return j.print(sessionOutput{
		ID:             session.ID,
		Name:           session.Name,
		Repo:           session.RepoFullName,
		Branch:         session.BranchName,
		Status:         string(session.Status),
		SandboxID:      session.SandboxID,
		AgentSessionID: session.AgentSessionID,
		CreatedAt:      session.CreatedAt.UTC(),
		UpdatedAt:      session.UpdatedAt.UTC(),
	})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.print(messageOutput{Message: msg})
}

func (j *JSONPrinter) print(v interface{}) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
