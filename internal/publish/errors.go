package publish

import (
	stderrors "errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

const scrubMask = "***"

// classifyPushError translates go-git push failures into ClassifiedErrors. The
// token is scrubbed from every message before it is wrapped.
func classifyPushError(err error, remote, branch, token string) error {
	if err == nil {
		return nil
	}

	l := strings.ToLower(err.Error())
	builder := errors.GitError("push failed").
		WithCause(scrub(err, token)).
		WithContext("remote", scrubString(remote, token)).
		WithContext("branch", branch)

	switch {
	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed),
		strings.Contains(l, "authentication failed"),
		strings.Contains(l, "not authorized"),
		strings.Contains(l, "permission denied"):
		builder.WithCategory(errors.CategoryAuth).UserAction()
	case stderrors.Is(err, transport.ErrRepositoryNotFound),
		strings.Contains(l, "repository not found"),
		strings.Contains(l, "does not exist"):
		builder.WithCategory(errors.CategoryNotFound)
	case strings.Contains(l, "connection refused"),
		strings.Contains(l, "connection reset"),
		strings.Contains(l, "remote hung up"),
		strings.Contains(l, "i/o timeout"),
		strings.Contains(l, "no such host"):
		builder.WithCategory(errors.CategoryNetwork)
	case strings.Contains(l, "non-fast-forward"):
		builder.WithContext("diverged", true)
	}
	return builder.Build()
}

// scrub returns err with every occurrence of token masked. The original error
// is dropped from the chain so the token cannot leak through Unwrap.
func scrub(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return stderrors.New(scrubString(err.Error(), token))
}

func scrubString(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, scrubMask)
}
