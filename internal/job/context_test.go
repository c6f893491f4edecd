package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPredicate_Matches(t *testing.T) {
	pred := PublishPredicate()

	tests := []struct {
		name string
		rc   RunContext
		want bool
	}{
		{"master push", RunContext{Branch: "master"}, true},
		{"master pull request", RunContext{Branch: "master", PullRequest: true}, false},
		{"feature branch", RunContext{Branch: "feature-x"}, false},
		{"feature pull request", RunContext{Branch: "feature-x", PullRequest: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, pred.Matches(tt.rc))
		})
	}

	require.True(t, Predicate{}.Matches(RunContext{Branch: "anything", PullRequest: true}))
}

func TestPredicate_String(t *testing.T) {
	require.Equal(t, `branch == "master" && !pull_request`, PublishPredicate().String())
	require.Equal(t, "always", Predicate{}.String())
}

func TestSecret_NeverRendered(t *testing.T) {
	const token = "ghp_supersecretvalue"
	rc := RunContext{Branch: "master", Token: Secret(token)}

	require.Equal(t, token, rc.Token.Reveal())
	require.NotContains(t, fmt.Sprintf("%v %+v %#v %s", rc, rc, rc, rc.Token), token)

	js, err := json.Marshal(rc)
	require.NoError(t, err)
	require.NotContains(t, string(js), token)

	ys, err := yaml.Marshal(rc)
	require.NoError(t, err)
	require.NotContains(t, string(ys), token)

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("ctx", "rc", rc, "token", rc.Token)
	require.NotContains(t, buf.String(), token)
	require.Contains(t, buf.String(), "token_set=true")
}

func TestParsePullRequest(t *testing.T) {
	require.False(t, ParsePullRequest("false"))
	require.False(t, ParsePullRequest(""))
	require.False(t, ParsePullRequest(" FALSE "))
	require.True(t, ParsePullRequest("42"))
	require.True(t, ParsePullRequest("true"))
}

func TestStage_Kind(t *testing.T) {
	require.Equal(t, KindCommand, Command("a", "true").Kind())
	require.Equal(t, KindForEachFile, ForEachFile("a", "*.md", "cat {file}").Kind())
	require.Equal(t, KindConditional, Conditional("a", Predicate{}, Command("b", "true")).Kind())
	require.Equal(t, KindBuiltin, Builtin("a", ActionGitPush, nil).Kind())
	require.Equal(t, KindInvalid, Stage{Name: "a", ForEach: "*.md"}.Kind())
}
