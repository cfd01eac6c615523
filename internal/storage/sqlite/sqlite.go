package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toNullableUnix(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func fromNullableUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// CreateSession creates a new feature session.
func (r *Repository) CreateSession(ctx context.Context, s model.FeatureSession) error {
	query := `
		INSERT INTO sessions (
			id, organization_id, repository_id, repo_full_name, repo_url,
			name, branch_name, status, sandbox_id, agent_session_id,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		s.ID,
		s.OrganizationID,
		s.RepositoryID,
		s.RepoFullName,
		s.RepoURL,
		s.Name,
		s.BranchName,
		s.Status,
		toNullString(s.SandboxID),
		toNullString(s.AgentSessionID),
		s.CreatedAt.Unix(),
		s.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("session already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert session: %w", err)
	}

	r.logger.Debugf("Created session in repository: %s", s.ID)
	return nil
}

const sessionColumns = `
	id, organization_id, repository_id, repo_full_name, repo_url,
	name, branch_name, status, sandbox_id, agent_session_id,
	created_at, updated_at
`

// GetSession retrieves a session by ID.
func (r *Repository) GetSession(ctx context.Context, id string) (*model.FeatureSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	s, err := r.scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query session: %w", err)
	}

	return s, nil
}

// ListSessionsByOrganization lists the sessions of an organization.
func (r *Repository) ListSessionsByOrganization(ctx context.Context, orgID string) ([]model.FeatureSession, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE organization_id = ? ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("could not query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.FeatureSession{}
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		sessions = append(sessions, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return sessions, nil
}

// UpdateSession updates an existing session.
func (r *Repository) UpdateSession(ctx context.Context, s model.FeatureSession) error {
	query := `
		UPDATE sessions
		SET
			organization_id = ?,
			repository_id = ?,
			repo_full_name = ?,
			repo_url = ?,
			name = ?,
			branch_name = ?,
			status = ?,
			sandbox_id = ?,
			agent_session_id = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		s.OrganizationID,
		s.RepositoryID,
		s.RepoFullName,
		s.RepoURL,
		s.Name,
		s.BranchName,
		s.Status,
		toNullString(s.SandboxID),
		toNullString(s.AgentSessionID),
		s.UpdatedAt.Unix(),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", s.ID, model.ErrNotFound)
	}

	return nil
}

// DeleteSession deletes a session.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted session from repository: %s", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanSession(s scanner) (*model.FeatureSession, error) {
	var session model.FeatureSession
	var sandboxID, agentSessionID sql.NullString
	var createdAt, updatedAt int64

	err := s.Scan(
		&session.ID,
		&session.OrganizationID,
		&session.RepositoryID,
		&session.RepoFullName,
		&session.RepoURL,
		&session.Name,
		&session.BranchName,
		&session.Status,
		&sandboxID,
		&agentSessionID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.SandboxID = fromNullString(sandboxID)
	session.AgentSessionID = fromNullString(agentSessionID)
	session.CreatedAt = time.Unix(createdAt, 0).UTC()
	session.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &session, nil
}

// CreateSandbox creates a new sandbox. The unique index on repository_id makes
// concurrent creators for the same repository converge on a single row.
func (r *Repository) CreateSandbox(ctx context.Context, s model.Sandbox) error {
	query := `
		INSERT INTO sandboxes (
			id, repository_id, workspace_id, provider_kind, status,
			last_active_at, last_checkpoint_id, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		s.ID,
		s.RepositoryID,
		s.WorkspaceID,
		s.ProviderKind,
		s.Status,
		s.LastActiveAt.Unix(),
		toNullString(s.LastCheckpointID),
		s.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sandbox for repository %s: %w", s.RepositoryID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert sandbox: %w", err)
	}

	r.logger.Debugf("Created sandbox in repository: %s", s.ID)
	return nil
}

const sandboxColumns = `
	id, repository_id, workspace_id, provider_kind, status,
	last_active_at, last_checkpoint_id, created_at
`

// GetSandbox retrieves a sandbox by ID.
func (r *Repository) GetSandbox(ctx context.Context, id string) (*model.Sandbox, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sandboxColumns+` FROM sandboxes WHERE id = ?`, id)

	s, err := r.scanSandbox(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sandbox %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query sandbox: %w", err)
	}

	return s, nil
}

// GetSandboxByRepository retrieves the sandbox bound to a repository.
func (r *Repository) GetSandboxByRepository(ctx context.Context, repoID string) (*model.Sandbox, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sandboxColumns+` FROM sandboxes WHERE repository_id = ?`, repoID)

	s, err := r.scanSandbox(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sandbox for repository %s: %w", repoID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query sandbox: %w", err)
	}

	return s, nil
}

// UpdateSandbox updates an existing sandbox.
func (r *Repository) UpdateSandbox(ctx context.Context, s model.Sandbox) error {
	query := `
		UPDATE sandboxes
		SET
			workspace_id = ?,
			provider_kind = ?,
			status = ?,
			last_active_at = ?,
			last_checkpoint_id = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		s.WorkspaceID,
		s.ProviderKind,
		s.Status,
		s.LastActiveAt.Unix(),
		toNullString(s.LastCheckpointID),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update sandbox: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sandbox %s: %w", s.ID, model.ErrNotFound)
	}

	return nil
}

// DeleteSandbox deletes a sandbox.
func (r *Repository) DeleteSandbox(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sandboxes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete sandbox: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sandbox %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted sandbox from repository: %s", id)
	return nil
}

func (r *Repository) scanSandbox(s scanner) (*model.Sandbox, error) {
	var sandbox model.Sandbox
	var lastCheckpointID sql.NullString
	var lastActiveAt, createdAt int64

	err := s.Scan(
		&sandbox.ID,
		&sandbox.RepositoryID,
		&sandbox.WorkspaceID,
		&sandbox.ProviderKind,
		&sandbox.Status,
		&lastActiveAt,
		&lastCheckpointID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	sandbox.LastCheckpointID = fromNullString(lastCheckpointID)
	sandbox.LastActiveAt = time.Unix(lastActiveAt, 0).UTC()
	sandbox.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &sandbox, nil
}
