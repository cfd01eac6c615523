package scmhost

import (
	"context"
)

// PullRequestOptions configures a new pull request.
type PullRequestOptions struct {
	// RepoFullName is the repository in "owner/repo" format.
	RepoFullName string
	// HeadBranch is the source branch with the session's changes.
	HeadBranch string
	// BaseBranch is the target branch. Empty means the repository default.
	BaseBranch string
	Title      string
	Body       string
}

// PullRequest is a created pull request.
type PullRequest struct {
	URL    string
	Number int
}

// Host abstracts the SCM hosting provider used to publish session changes.
type Host interface {
	// CreatePullRequest opens a pull request on behalf of the token owner.
	CreatePullRequest(ctx context.Context, token string, opts PullRequestOptions) (*PullRequest, error)
	// DefaultBranch returns the repository's default branch.
	DefaultBranch(ctx context.Context, token, repoFullName string) (string, error)
}
