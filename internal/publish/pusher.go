package publish

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// DefaultRemote is pushed to when PushOptions.Remote is empty.
const DefaultRemote = "origin"

const anonymousRemote = "docpipe-publish"

// PushOptions configures Pusher.Push.
type PushOptions struct {
	RepoDir string
	// Remote is either a configured remote name or a URL / local path.
	Remote string
	Branch string
	Force  bool
	// Token is sent as HTTP basic auth password for http(s) remotes only.
	Token string
	// Progress receives server-side progress messages, if set.
	Progress io.Writer
}

// PushResult describes a finished push.
type PushResult struct {
	Remote   string
	RefSpec  string
	UpToDate bool
}

// Pusher pushes a local branch to a remote with go-git.
type Pusher struct{}

// NewPusher returns a Pusher.
func NewPusher() *Pusher { return &Pusher{} }

// Push pushes refs/heads/<branch> to the same ref on the remote. An already
// up-to-date remote counts as success.
func (p *Pusher) Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	if opts.Branch == "" {
		return nil, errors.ValidationError("push requires a branch").Build()
	}
	repo, err := git.PlainOpenWithOptions(opts.RepoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.GitError("open repository").WithCause(err).WithContext("dir", opts.RepoDir).Build()
	}

	remote := opts.Remote
	if remote == "" {
		remote = DefaultRemote
	}
	refSpec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", opts.Branch, opts.Branch)
	if opts.Force {
		refSpec = "+" + refSpec
	}
	po := &git.PushOptions{
		RefSpecs: []config.RefSpec{config.RefSpec(refSpec)},
		Force:    opts.Force,
		Progress: opts.Progress,
	}

	var target *git.Remote
	if isRemoteURL(remote) {
		// Anonymous remote; nothing is written to the repository config.
		target = git.NewRemote(repo.Storer, &config.RemoteConfig{Name: anonymousRemote, URLs: []string{remote}})
	} else {
		target, err = repo.Remote(remote)
		if err != nil {
			return nil, errors.GitError("unknown remote").
				WithCategory(errors.CategoryConfig).
				WithCause(err).
				WithContext("remote", remote).
				Build()
		}
	}
	po.RemoteName = target.Config().Name
	url := remote
	if urls := target.Config().URLs; len(urls) > 0 {
		url = urls[0]
	}
	po.Auth = authFor(url, opts.Token)
	display := scrubString(url, opts.Token)

	slog.Info("Pushing branch", logfields.Branch(opts.Branch), logfields.URL(display), slog.Bool("force", opts.Force))
	res := &PushResult{Remote: display, RefSpec: refSpec}
	err = target.PushContext(ctx, po)
	if stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		res.UpToDate = true
		slog.Info("Remote already up to date", logfields.Branch(opts.Branch))
		return res, nil
	}
	if err != nil {
		return nil, classifyPushError(err, url, opts.Branch, opts.Token)
	}
	return res, nil
}

// authFor returns token basic auth for http(s) endpoints. Other transports
// (file, ssh) never receive the token.
func authFor(url, token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil
	}
	return &http.BasicAuth{
		Username: "token", // GitHub/GitLab use "token" as username
		Password: token,
	}
}

// isRemoteURL reports whether s is a URL or path rather than a remote name.
func isRemoteURL(s string) bool {
	return strings.Contains(s, "://") ||
		strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, ".") ||
		(strings.Contains(s, "@") && strings.Contains(s, ":"))
}
