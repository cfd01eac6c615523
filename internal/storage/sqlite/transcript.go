package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/featden/featd/internal/model"
)

// CreateMessage appends a message to the session transcript.
func (r *Repository) CreateMessage(ctx context.Context, m model.Message) error {
	var metadata sql.NullString
	if m.Metadata != nil {
		raw, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("could not serialize message metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO messages (id, session_id, role, content, phase, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, m.ID, m.SessionID, m.Role, m.Content, m.Phase, metadata, m.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("message already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert message: %w", err)
	}

	return nil
}

// ListMessages returns the session transcript ordered oldest first.
func (r *Repository) ListMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	query := `
		SELECT id, session_id, role, content, phase, metadata, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("could not query messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var m model.Message
		var metadata sql.NullString
		var createdAt int64

		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Phase, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}

		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("could not deserialize message metadata: %w", err)
			}
		}
		m.CreatedAt = time.Unix(0, createdAt).UTC()

		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return msgs, nil
}

// CreateApproval creates a new approval. The partial unique index on pending
// approvals enforces the single-pending-per-session invariant.
func (r *Repository) CreateApproval(ctx context.Context, a model.Approval) error {
	query := `
		INSERT INTO approvals (id, session_id, message_id, status, reviewer_id, comment, reviewed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		a.ID,
		a.SessionID,
		a.MessageID,
		a.Status,
		a.ReviewerID,
		a.Comment,
		toNullableUnix(a.ReviewedAt),
		a.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pending approval for session %s: %w", a.SessionID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert approval: %w", err)
	}

	return nil
}

// GetPendingApproval retrieves the pending approval of a session.
func (r *Repository) GetPendingApproval(ctx context.Context, sessionID string) (*model.Approval, error) {
	query := `
		SELECT id, session_id, message_id, status, reviewer_id, comment, reviewed_at, created_at
		FROM approvals
		WHERE session_id = ? AND status = 'pending'
	`

	var a model.Approval
	var reviewedAt sql.NullInt64
	var createdAt int64

	row := r.db.QueryRowContext(ctx, query, sessionID)
	err := row.Scan(&a.ID, &a.SessionID, &a.MessageID, &a.Status, &a.ReviewerID, &a.Comment, &reviewedAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending approval for session %s: %w", sessionID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query approval: %w", err)
	}

	a.ReviewedAt = fromNullableUnix(reviewedAt)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &a, nil
}

// UpdateApproval updates an existing approval.
func (r *Repository) UpdateApproval(ctx context.Context, a model.Approval) error {
	query := `
		UPDATE approvals
		SET status = ?, reviewer_id = ?, comment = ?, reviewed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, a.Status, a.ReviewerID, a.Comment, toNullableUnix(a.ReviewedAt), a.ID)
	if err != nil {
		return fmt.Errorf("could not update approval: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("approval %s: %w", a.ID, model.ErrNotFound)
	}

	return nil
}

// CreateCheckpoint creates a new checkpoint.
func (r *Repository) CreateCheckpoint(ctx context.Context, c model.Checkpoint) error {
	query := `
		INSERT INTO checkpoints (id, session_id, sandbox_id, label, type, provider_snapshot_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		c.ID,
		toNullString(c.SessionID),
		c.SandboxID,
		c.Label,
		c.Type,
		toNullString(c.ProviderSnapshotID),
		c.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("checkpoint already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert checkpoint: %w", err)
	}

	return nil
}

// UpdateCheckpoint updates an existing checkpoint.
func (r *Repository) UpdateCheckpoint(ctx context.Context, c model.Checkpoint) error {
	query := `
		UPDATE checkpoints
		SET label = ?, type = ?, provider_snapshot_id = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(ctx, query, c.Label, c.Type, toNullString(c.ProviderSnapshotID), c.ID)
	if err != nil {
		return fmt.Errorf("could not update checkpoint: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("checkpoint %s: %w", c.ID, model.ErrNotFound)
	}

	return nil
}

// ListCheckpointsBySandbox lists the checkpoints of a sandbox newest first.
func (r *Repository) ListCheckpointsBySandbox(ctx context.Context, sandboxID string) ([]model.Checkpoint, error) {
	query := `
		SELECT id, session_id, sandbox_id, label, type, provider_snapshot_id, created_at
		FROM checkpoints
		WHERE sandbox_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("could not query checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []model.Checkpoint{}
	for rows.Next() {
		var c model.Checkpoint
		var sessionID, providerSnapshotID sql.NullString
		var createdAt int64

		if err := rows.Scan(&c.ID, &sessionID, &c.SandboxID, &c.Label, &c.Type, &providerSnapshotID, &createdAt); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}

		c.SessionID = fromNullString(sessionID)
		c.ProviderSnapshotID = fromNullString(providerSnapshotID)
		c.CreatedAt = time.Unix(createdAt, 0).UTC()

		checkpoints = append(checkpoints, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return checkpoints, nil
}

// GetSCMToken retrieves a stored source-host token for a user.
func (r *Repository) GetSCMToken(ctx context.Context, userID, host string) (*model.SCMToken, error) {
	query := `SELECT user_id, host, access_token, created_at FROM scm_tokens WHERE user_id = ? AND host = ?`

	var t model.SCMToken
	var createdAt int64

	row := r.db.QueryRowContext(ctx, query, userID, host)
	if err := row.Scan(&t.UserID, &t.Host, &t.AccessToken, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scm token for user %s on %s: %w", userID, host, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query scm token: %w", err)
	}

	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &t, nil
}

// UpsertSCMToken stores or replaces a source-host token for a user.
func (r *Repository) UpsertSCMToken(ctx context.Context, t model.SCMToken) error {
	query := `
		INSERT INTO scm_tokens (user_id, host, access_token, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, host) DO UPDATE SET access_token = excluded.access_token
	`

	if _, err := r.db.ExecContext(ctx, query, t.UserID, t.Host, t.AccessToken, t.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("could not upsert scm token: %w", err)
	}

	return nil
}
