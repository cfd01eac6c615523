// Package github implements the SCM host on top of the GitHub API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gogh "github.com/google/go-github/v68/github"

	"github.com/featden/featd/internal/log"
	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/scmhost"
)

// HostConfig is the configuration for the GitHub SCM host.
type HostConfig struct {
	// BaseURL overrides the API endpoint, used for GitHub Enterprise and
	// tests. Empty means api.github.com.
	BaseURL string
	Logger  log.Logger
}

func (c *HostConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "scmhost.GitHub"})
	return nil
}

// Host is the GitHub implementation of scmhost.Host.
type Host struct {
	baseURL string
	logger  log.Logger
}

// NewHost creates a new GitHub SCM host.
func NewHost(cfg HostConfig) (*Host, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Host{
		baseURL: cfg.BaseURL,
		logger:  cfg.Logger,
	}, nil
}

// client builds a per-call authenticated client, tokens belong to users and
// vary between calls.
func (h *Host) client(token string) (*gogh.Client, error) {
	c := gogh.NewClient(nil).WithAuthToken(token)
	if h.baseURL != "" {
		var err error
		c, err = c.WithEnterpriseURLs(h.baseURL, h.baseURL)
		if err != nil {
			return nil, fmt.Errorf("could not set API base URL: %w", err)
		}
	}
	return c, nil
}

// CreatePullRequest opens a pull request and returns its URL and number.
func (h *Host) CreatePullRequest(ctx context.Context, token string, opts scmhost.PullRequestOptions) (*scmhost.PullRequest, error) {
	owner, repo, err := splitRepo(opts.RepoFullName)
	if err != nil {
		return nil, err
	}

	gh, err := h.client(token)
	if err != nil {
		return nil, err
	}

	base := opts.BaseBranch
	if base == "" {
		base, err = h.DefaultBranch(ctx, token, opts.RepoFullName)
		if err != nil {
			return nil, err
		}
	}

	pr, resp, err := gh.PullRequests.Create(ctx, owner, repo, &gogh.NewPullRequest{
		Title: gogh.Ptr(opts.Title),
		Body:  gogh.Ptr(opts.Body),
		Head:  gogh.Ptr(opts.HeadBranch),
		Base:  gogh.Ptr(base),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w", mapError(resp, err))
	}

	h.logger.Infof("Created PR #%d on %s", pr.GetNumber(), opts.RepoFullName)
	return &scmhost.PullRequest{
		URL:    pr.GetHTMLURL(),
		Number: pr.GetNumber(),
	}, nil
}

// DefaultBranch returns the repository's default branch.
func (h *Host) DefaultBranch(ctx context.Context, token, repoFullName string) (string, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return "", err
	}

	gh, err := h.client(token)
	if err != nil {
		return "", err
	}

	r, resp, err := gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("getting repository: %w", mapError(resp, err))
	}

	return r.GetDefaultBranch(), nil
}

// mapError translates GitHub API failures into domain errors so callers can
// map them without knowing the transport.
func mapError(resp *gogh.Response, err error) error {
	if resp == nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%v: %w", err, model.ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("%v: %w", err, model.ErrNotFound)
	case http.StatusUnprocessableEntity:
		// GitHub answers 422 for an already open PR on the same head.
		return fmt.Errorf("%v: %w", err, model.ErrAlreadyExists)
	}
	return err
}

func splitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q, expected \"owner/repo\": %w", fullName, model.ErrNotValid)
	}
	return parts[0], parts[1], nil
}
