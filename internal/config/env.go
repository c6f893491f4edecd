package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/docpipe/internal/job"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// DefaultTokenEnv names the variable holding the hosting token.
const DefaultTokenEnv = "GH_TOKEN"

// Environment variables consulted, in order, for the branch and the
// pull-request flag.
var (
	BranchEnv      = []string{"DOCPIPE_BRANCH", "TRAVIS_BRANCH", "GITHUB_REF_NAME"}
	PullRequestEnv = []string{"DOCPIPE_PULL_REQUEST", "TRAVIS_PULL_REQUEST"}
)

// EnvFiles are loaded from the repository directory when present. Earlier
// files win since loading never overrides.
var EnvFiles = []string{".env.local", ".env"}

// LoadDotEnv loads EnvFiles from dir into the process environment. Variables
// already set are never overwritten. It returns the files that were loaded.
func LoadDotEnv(dir string) ([]string, error) {
	var loaded []string
	for _, name := range EnvFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, err
		}
		loaded = append(loaded, path)
		slog.Debug("Loaded environment file", logfields.Path(path))
	}
	return loaded, nil
}

// ResolveOptions controls ResolveRunContext.
type ResolveOptions struct {
	// RepoDir is used for the HEAD fallback of the branch name.
	RepoDir string
	// TokenEnv names the variable holding the credential (DefaultTokenEnv if empty).
	TokenEnv string
	// Branch and PullRequest override every other source when set.
	Branch      string
	PullRequest *bool
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// ResolveRunContext builds the immutable RunContext for this invocation.
func ResolveRunContext(opts ResolveOptions) job.RunContext {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	tokenEnv := opts.TokenEnv
	if tokenEnv == "" {
		tokenEnv = DefaultTokenEnv
	}

	rc := job.RunContext{
		Branch: opts.Branch,
		Token:  job.Secret(getenv(tokenEnv)),
	}
	if rc.Branch == "" {
		rc.Branch = firstEnv(getenv, BranchEnv)
	}
	if rc.Branch == "" {
		rc.Branch = headBranch(opts.RepoDir)
	}

	switch {
	case opts.PullRequest != nil:
		rc.PullRequest = *opts.PullRequest
	case firstEnv(getenv, PullRequestEnv) != "":
		rc.PullRequest = job.ParsePullRequest(firstEnv(getenv, PullRequestEnv))
	default:
		rc.PullRequest = getenv("GITHUB_EVENT_NAME") == "pull_request"
	}

	slog.Debug("Resolved run context", slog.Any("context", rc), slog.String("token_env", tokenEnv))
	return rc
}

func firstEnv(getenv func(string) string, names []string) string {
	for _, n := range names {
		if v := getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// headBranch returns the short branch name HEAD points at, or "" for a
// detached HEAD or when dir is not inside a repository.
func headBranch(dir string) string {
	if dir == "" {
		dir = "."
	}
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		slog.Debug("No repository for branch detection", logfields.Path(dir), logfields.Error(err))
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		slog.Debug("Cannot resolve HEAD", logfields.Path(dir), logfields.Error(err))
		return ""
	}
	if !head.Name().IsBranch() {
		slog.Warn("HEAD is detached; branch unknown", logfields.Commit(head.Hash().String()))
		return ""
	}
	return head.Name().Short()
}
