package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	sessions    map[string]model.FeatureSession
	sandboxes   map[string]model.Sandbox
	messages    map[string][]model.Message
	approvals   map[string]model.Approval
	checkpoints map[string]model.Checkpoint
	scmTokens   map[string]model.SCMToken
	mu          sync.RWMutex
	logger      log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		sessions:    make(map[string]model.FeatureSession),
		sandboxes:   make(map[string]model.Sandbox),
		messages:    make(map[string][]model.Message),
		approvals:   make(map[string]model.Approval),
		checkpoints: make(map[string]model.Checkpoint),
		scmTokens:   make(map[string]model.SCMToken),
		logger:      cfg.Logger,
	}, nil
}

// CreateSession creates a new feature session.
func (r *Repository) CreateSession(ctx context.Context, s model.FeatureSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("session %s: %w", s.ID, model.ErrAlreadyExists)
	}

	r.sessions[s.ID] = s
	r.logger.Debugf("Created session in repository: %s", s.ID)
	return nil
}

// GetSession retrieves a session by ID.
func (r *Repository) GetSession(ctx context.Context, id string) (*model.FeatureSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}

	sCopy := s
	return &sCopy, nil
}

// ListSessionsByOrganization lists the sessions of an organization.
func (r *Repository) ListSessionsByOrganization(ctx context.Context, orgID string) ([]model.FeatureSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := []model.FeatureSession{}
	for _, s := range r.sessions {
		if s.OrganizationID == orgID {
			sessions = append(sessions, s)
		}
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	return sessions, nil
}

// UpdateSession updates an existing session.
func (r *Repository) UpdateSession(ctx context.Context, s model.FeatureSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; !ok {
		return fmt.Errorf("session %s: %w", s.ID, model.ErrNotFound)
	}

	r.sessions[s.ID] = s
	return nil
}

// DeleteSession deletes a session.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}

	delete(r.sessions, id)
	return nil
}

// CreateSandbox creates a new sandbox. The one-per-repository invariant is
// enforced here the same way the SQL unique index does it.
func (r *Repository) CreateSandbox(ctx context.Context, s model.Sandbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sandboxes[s.ID]; ok {
		return fmt.Errorf("sandbox %s: %w", s.ID, model.ErrAlreadyExists)
	}
	for _, existing := range r.sandboxes {
		if existing.RepositoryID == s.RepositoryID {
			return fmt.Errorf("sandbox for repository %s: %w", s.RepositoryID, model.ErrAlreadyExists)
		}
	}

	r.sandboxes[s.ID] = s
	r.logger.Debugf("Created sandbox in repository: %s", s.ID)
	return nil
}

// GetSandbox retrieves a sandbox by ID.
func (r *Repository) GetSandbox(ctx context.Context, id string) (*model.Sandbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sandboxes[id]
	if !ok {
		return nil, fmt.Errorf("sandbox %s: %w", id, model.ErrNotFound)
	}

	sCopy := s
	return &sCopy, nil
}

// GetSandboxByRepository retrieves the sandbox bound to a repository.
func (r *Repository) GetSandboxByRepository(ctx context.Context, repoID string) (*model.Sandbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sandboxes {
		if s.RepositoryID == repoID {
			sCopy := s
			return &sCopy, nil
		}
	}

	return nil, fmt.Errorf("sandbox for repository %s: %w", repoID, model.ErrNotFound)
}

// UpdateSandbox updates an existing sandbox.
func (r *Repository) UpdateSandbox(ctx context.Context, s model.Sandbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sandboxes[s.ID]; !ok {
		return fmt.Errorf("sandbox %s: %w", s.ID, model.ErrNotFound)
	}

	r.sandboxes[s.ID] = s
	return nil
}

// DeleteSandbox deletes a sandbox.
func (r *Repository) DeleteSandbox(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sandboxes[id]; !ok {
		return fmt.Errorf("sandbox %s: %w", id, model.ErrNotFound)
	}

	delete(r.sandboxes, id)
	return nil
}

// CreateMessage appends a message to the session transcript.
func (r *Repository) CreateMessage(ctx context.Context, m model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.messages[m.SessionID] {
		if existing.ID == m.ID {
			return fmt.Errorf("message %s: %w", m.ID, model.ErrAlreadyExists)
		}
	}

	r.messages[m.SessionID] = append(r.messages[m.SessionID], m)
	return nil
}

// ListMessages returns the session transcript ordered oldest first.
func (r *Repository) ListMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := make([]model.Message, len(r.messages[sessionID]))
	copy(msgs, r.messages[sessionID])

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

// CreateApproval creates a new approval. A session may have at most one
// pending approval at a time.
func (r *Repository) CreateApproval(ctx context.Context, a model.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.approvals[a.ID]; ok {
		return fmt.Errorf("approval %s: %w", a.ID, model.ErrAlreadyExists)
	}
	if a.Status == model.ApprovalStatusPending {
		for _, existing := range r.approvals {
			if existing.SessionID == a.SessionID && existing.Status == model.ApprovalStatusPending {
				return fmt.Errorf("pending approval for session %s: %w", a.SessionID, model.ErrAlreadyExists)
			}
		}
	}

	r.approvals[a.ID] = a
	return nil
}

// GetPendingApproval retrieves the pending approval of a session.
func (r *Repository) GetPendingApproval(ctx context.Context, sessionID string) (*model.Approval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.approvals {
		if a.SessionID == sessionID && a.Status == model.ApprovalStatusPending {
			aCopy := a
			return &aCopy, nil
		}
	}

	return nil, fmt.Errorf("pending approval for session %s: %w", sessionID, model.ErrNotFound)
}

// UpdateApproval updates an existing approval.
func (r *Repository) UpdateApproval(ctx context.Context, a model.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.approvals[a.ID]; !ok {
		return fmt.Errorf("approval %s: %w", a.ID, model.ErrNotFound)
	}

	r.approvals[a.ID] = a
	return nil
}

// CreateCheckpoint creates a new checkpoint.
func (r *Repository) CreateCheckpoint(ctx context.Context, c model.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.checkpoints[c.ID]; ok {
		return fmt.Errorf("checkpoint %s: %w", c.ID, model.ErrAlreadyExists)
	}

	r.checkpoints[c.ID] = c
	return nil
}

// UpdateCheckpoint updates an existing checkpoint.
func (r *Repository) UpdateCheckpoint(ctx context.Context, c model.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.checkpoints[c.ID]; !ok {
		return fmt.Errorf("checkpoint %s: %w", c.ID, model.ErrNotFound)
	}

	r.checkpoints[c.ID] = c
	return nil
}

// ListCheckpointsBySandbox lists the checkpoints of a sandbox newest first.
func (r *Repository) ListCheckpointsBySandbox(ctx context.Context, sandboxID string) ([]model.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	checkpoints := []model.Checkpoint{}
	for _, c := range r.checkpoints {
		if c.SandboxID == sandboxID {
			checkpoints = append(checkpoints, c)
		}
	}

	sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i].CreatedAt.After(checkpoints[j].CreatedAt) })
	return checkpoints, nil
}

// GetSCMToken retrieves a stored source-host token for a user.
func (r *Repository) GetSCMToken(ctx context.Context, userID, host string) (*model.SCMToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.scmTokens[userID+"/"+host]
	if !ok {
		return nil, fmt.Errorf("scm token for user %s on %s: %w", userID, host, model.ErrNotFound)
	}

	tCopy := t
	return &tCopy, nil
}

// UpsertSCMToken stores or replaces a source-host token for a user.
func (r *Repository) UpsertSCMToken(ctx context.Context, t model.SCMToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scmTokens[t.UserID+"/"+t.Host] = t
	return nil
}
