// Package git commits quality fixes and opens pull requests for them.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// Config configures commits, pushes and pull requests.
type Config struct {
	Remote      string `yaml:"remote"`
	BaseBranch  string `yaml:"base_branch"`
	GitHubRepo  string `yaml:"github_repo"` // owner/name; derived from the remote when empty
	TokenEnv    string `yaml:"token_env"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Runner runs git commands go-git does not cover. Interface for testing.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit implements Runner using exec.CommandContext.
type ExecGit struct{}

func (g *ExecGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Repo is the git adapter for one working tree.
type Repo struct {
	root   string
	cfg    Config
	git    Runner
	prs    PullRequester
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Repo adapter. prs may be nil when pull requests are never opened.
func New(root string, cfg Config, git Runner, prs PullRequester, logger *zap.Logger) *Repo {
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{root: root, cfg: cfg, git: git, prs: prs, logger: logger, now: time.Now}
}

// Branch returns the current branch, or "" on a detached HEAD.
func (r *Repo) Branch() (string, error) {
	repo, err := gogit.PlainOpen(r.root)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return "", nil
}

// Commit stages every change and commits it. It returns the commit hash, or
// "" when the tree was already clean.
func (r *Repo) Commit(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	repo, err := gogit.PlainOpen(r.root)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		r.logger.Info("nothing to commit")
		return "", nil
	}

	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{Author: r.author(repo)})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	r.logger.Info("committed", zap.String("hash", hash.String()), zap.Int("files", len(status)))
	return hash.String(), nil
}

func (r *Repo) author(repo *gogit.Repository) *object.Signature {
	sig := &object.Signature{Name: r.cfg.AuthorName, Email: r.cfg.AuthorEmail, When: r.now()}
	if sig.Name == "" || sig.Email == "" {
		if cfg, err := repo.ConfigScoped(config.GlobalScope); err == nil {
			if sig.Name == "" {
				sig.Name = cfg.User.Name
			}
			if sig.Email == "" {
				sig.Email = cfg.User.Email
			}
		}
	}
	if sig.Name == "" {
		sig.Name = "hookforge"
	}
	if sig.Email == "" {
		sig.Email = "hookforge@localhost"
	}
	return sig
}

// Push pushes the current branch and sets its upstream.
func (r *Repo) Push(ctx context.Context, branch string) error {
	if r.git == nil {
		return errors.New("no git runner configured")
	}
	if _, err := r.git.Run(ctx, r.root, "push", "-u", r.cfg.Remote, branch); err != nil {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	return nil
}

// CreatePR pushes the current branch and opens a pull request against the
// base branch. It returns the pull request URL.
func (r *Repo) CreatePR(ctx context.Context, title, body string) (string, error) {
	if r.prs == nil {
		return "", errors.New("no pull request client configured")
	}
	branch, err := r.Branch()
	if err != nil {
		return "", err
	}
	if branch == "" {
		return "", errors.New("cannot open a pull request from a detached HEAD")
	}
	if branch == r.cfg.BaseBranch {
		return "", fmt.Errorf("current branch is the base branch %q", branch)
	}
	owner, name, err := r.repoSlug()
	if err != nil {
		return "", err
	}
	if err := r.Push(ctx, branch); err != nil {
		return "", err
	}
	url, err := r.prs.CreatePullRequest(ctx, PullRequest{
		Owner: owner,
		Repo:  name,
		Title: title,
		Body:  body,
		Head:  branch,
		Base:  r.cfg.BaseBranch,
	})
	if err != nil {
		return "", err
	}
	r.logger.Info("pull request opened", zap.String("url", url))
	return url, nil
}

var remoteRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// repoSlug returns the GitHub owner and name from config or the remote URL.
func (r *Repo) repoSlug() (string, string, error) {
	if r.cfg.GitHubRepo != "" {
		owner, name, ok := strings.Cut(r.cfg.GitHubRepo, "/")
		if !ok || owner == "" || name == "" {
			return "", "", fmt.Errorf("github_repo %q must be owner/name", r.cfg.GitHubRepo)
		}
		return owner, name, nil
	}
	repo, err := gogit.PlainOpen(r.root)
	if err != nil {
		return "", "", fmt.Errorf("open repository: %w", err)
	}
	remote, err := repo.Remote(r.cfg.Remote)
	if err != nil {
		return "", "", fmt.Errorf("remote %q: %w", r.cfg.Remote, err)
	}
	for _, u := range remote.Config().URLs {
		if owner, name, ok := ParseRemote(u); ok {
			return owner, name, nil
		}
	}
	return "", "", fmt.Errorf("remote %q is not a GitHub repository", r.cfg.Remote)
}

// ParseRemote extracts owner and name from a GitHub remote URL.
func ParseRemote(url string) (string, string, bool) {
	m := remoteRe.FindStringSubmatch(url)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Token reads the GitHub token from the configured environment variable.
func Token(cfg Config) string {
	env := cfg.TokenEnv
	if env == "" {
		env = "GITHUB_TOKEN"
	}
	return os.Getenv(env)
}
