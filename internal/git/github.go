package git

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// PullRequest describes a pull request to open.
type PullRequest struct {
	Owner string
	Repo  string
	Title string
	Body  string
	Head  string
	Base  string
}

// PullRequester opens pull requests.
type PullRequester interface {
	CreatePullRequest(ctx context.Context, pr PullRequest) (string, error)
}

// GitHub opens pull requests through the GitHub REST API.
type GitHub struct {
	client *github.Client
}

// NewGitHub creates a GitHub client authenticated with token. baseURL
// overrides the API endpoint (GitHub Enterprise or tests) when non-empty.
func NewGitHub(ctx context.Context, token, baseURL string) (*GitHub, error) {
	if token == "" {
		return nil, errors.New("GitHub token not set")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse GitHub API URL: %w", err)
		}
		if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
			u.Path += "/"
		}
		client.BaseURL = u
	}
	return &GitHub{client: client}, nil
}

// CreatePullRequest opens pr and returns its HTML URL.
func (g *GitHub) CreatePullRequest(ctx context.Context, pr PullRequest) (string, error) {
	created, _, err := g.client.PullRequests.Create(ctx, pr.Owner, pr.Repo, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.Head),
		Base:  github.String(pr.Base),
		Body:  github.String(pr.Body),
	})
	if err != nil {
		return "", fmt.Errorf("create pull request: %w", err)
	}
	return created.GetHTMLURL(), nil
}
