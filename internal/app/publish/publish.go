// Package publish turns a finished build into a pull request, staging and
// pushing the sandbox working tree and opening the PR on the source host with
// the invoking user's connected credential.
package publish

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/scmhost"
	"github.com/featden/featd/internal/storage"
	"github.com/featden/featd/internal/workspace"
)

const (
	workspaceDir = "/workspace"
	gitTimeout   = 2 * time.Minute
)

// ServiceConfig is the configuration for the publish service.
type ServiceConfig struct {
	Host       scmhost.Host
	Workspace  workspace.Provider
	Repository storage.Repository
	// SCMHostName keys token lookups, it identifies the source host the
	// tokens were issued for.
	SCMHostName string
	Logger      log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Host == nil {
		return fmt.Errorf("scm host is required")
	}
	if c.Workspace == nil {
		return fmt.Errorf("workspace provider is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.SCMHostName == "" {
		c.SCMHostName = "github.com"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Publish"})
	return nil
}

// Service handles pull request publishing business logic.
type Service struct {
	host      scmhost.Host
	workspace workspace.Provider
	repo      storage.Repository
	hostName  string
	logger    log.Logger
}

// NewService creates a new publish service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		host:      cfg.Host,
		workspace: cfg.Workspace,
		repo:      cfg.Repository,
		hostName:  cfg.SCMHostName,
		logger:    cfg.Logger,
	}, nil
}

// CreateOptions are the options for creating a pull request.
type CreateOptions struct {
	SessionID string
	UserID    string
	// Title and Description override the generated PR title and body.
	Title       string
	Description string
}

// Create publishes the session's changes as a pull request. The session must
// be ready and the user must have a connected source-host credential, a clean
// working tree aborts with ErrNoChanges.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*scmhost.PullRequest, error) {
	session, err := s.repo.GetSession(ctx, opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("could not get session: %w", err)
	}
	if session.Status != model.SessionStatusReady {
		return nil, fmt.Errorf("session %s is %s, only finished builds can be published: %w", session.ID, session.Status, model.ErrPreconditionFailed)
	}
	if session.SandboxID == nil {
		return nil, fmt.Errorf("session %s has no sandbox: %w", session.ID, model.ErrPreconditionFailed)
	}

	token, err := s.repo.GetSCMToken(ctx, opts.UserID, s.hostName)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("no %s connection for user %s: %w", s.hostName, opts.UserID, model.ErrUnauthorized)
		}
		return nil, fmt.Errorf("could not get credential: %w", err)
	}

	sandbox, err := s.repo.GetSandbox(ctx, *session.SandboxID)
	if err != nil {
		return nil, fmt.Errorf("could not get sandbox: %w", err)
	}

	if err := s.pushBranch(ctx, session, sandbox.WorkspaceID, token.AccessToken); err != nil {
		return nil, err
	}

	title := opts.Title
	if title == "" {
		title = session.Name
	}
	body := opts.Description
	if body == "" {
		body = fmt.Sprintf("Automated changes for feature session %s.", session.ID)
	}

	pr, err := s.host.CreatePullRequest(ctx, token.AccessToken, scmhost.PullRequestOptions{
		RepoFullName: session.RepoFullName,
		HeadBranch:   session.BranchName,
		Title:        title,
		Body:         body,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open pull request: %w", err)
	}

	now := time.Now().UTC()
	msg := model.Message{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		SessionID: session.ID,
		Role:      model.MessageRoleSystem,
		Content:   fmt.Sprintf("Opened pull request #%d: %s", pr.Number, pr.URL),
		CreatedAt: now,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		s.logger.Warningf("Could not record PR message for session %s: %v", session.ID, err)
	}

	if err := session.TransitionTo(model.SessionStatusReviewing); err != nil {
		s.logger.Errorf("Could not transition session %s to reviewing: %v", session.ID, err)
	} else if err := s.repo.UpdateSession(ctx, *session); err != nil {
		s.logger.Errorf("Could not update session %s: %v", session.ID, err)
	}

	s.logger.WithValues(log.Kv{"session": session.ID}).Infof("Published PR #%d", pr.Number)

	return pr, nil
}

// pushBranch stages, commits and pushes the working tree on the session's
// branch. Each git step surfaces its own failure, nothing is swallowed.
func (s *Service) pushBranch(ctx context.Context, session *model.FeatureSession, workspaceID, token string) error {
	status, err := s.git(ctx, workspaceID, "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("git status failed: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		return fmt.Errorf("working tree is clean, nothing to publish: %w", model.ErrNoChanges)
	}

	if _, err := s.git(ctx, workspaceID, "checkout", "-B", session.BranchName); err != nil {
		return fmt.Errorf("git checkout failed: %w", err)
	}
	if _, err := s.git(ctx, workspaceID, "add", "-A"); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}

	commitMsg := fmt.Sprintf("%s\n\nFeature session: %s", session.Name, session.ID)
	if _, err := s.git(ctx, workspaceID, "commit", "-m", commitMsg); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}

	pushURL := authenticatedRemote(session.RepoURL, token)
	if _, err := s.git(ctx, workspaceID, "push", pushURL, "HEAD:"+session.BranchName); err != nil {
		// Never echo the push URL, it embeds the credential.
		return fmt.Errorf("git push of branch %s failed: %w", session.BranchName, redactToken(err, token))
	}

	return nil
}

// git runs one git step as a plain argv, no shell sits between the session's
// user-supplied values and the sandbox.
func (s *Service) git(ctx context.Context, workspaceID string, args ...string) (string, error) {
	res, err := s.workspace.Exec(ctx, workspaceID, append([]string{"git"}, args...), workspace.ExecOpts{
		WorkingDir: workspaceDir,
		Timeout:    gitTimeout,
	})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// authenticatedRemote embeds the user token into the clone URL for the push.
func authenticatedRemote(repoURL, token string) string {
	if rest, ok := strings.CutPrefix(repoURL, "https://"); ok {
		return "https://x-access-token:" + token + "@" + rest
	}
	return repoURL
}

// redactToken keeps credentials out of surfaced errors.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "***"))
}
