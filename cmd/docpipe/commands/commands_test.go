package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpipe/internal/config"
	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/pipeline"
)

const testJob = `os: linux
script:
  - name: build
    role: build
    run: echo building
  - name: test
    role: test
    run: echo testing
after_success:
  - name: publish
    when:
      branch: master
      pull_request: false
    steps:
      - name: render
        run: echo rendering
`

// execute parses args like the binary does and runs the selected command.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("docpipe"), kong.Exit(func(int) { t.Fatalf("unexpected exit for %v", args) }))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)

	var out bytes.Buffer
	g := &Global{Context: context.Background(), Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), Out: &out}
	err = kctx.Run(g, &cli)
	return out.String(), err
}

func writeJob(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, config.DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func exitCode(err error) int {
	return errors.NewCLIErrorAdapter(false, slog.Default()).ExitCodeFor(err)
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "init", "-o", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "initialized successfully")
	assert.FileExists(t, filepath.Join(dir, config.DefaultFile))

	_, err = execute(t, "init", "-o", dir)
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfig, exitCode(err))

	_, err = execute(t, "init", "-o", dir, "--force")
	require.NoError(t, err)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeJob(t, dir, testJob)
	out, err := execute(t, "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (2 main stages, 1 after_success entries)")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("script: []\n"), 0o600))
	_, err = execute(t, "validate", "-f", bad)
	require.Error(t, err)
	assert.Equal(t, errors.ExitValidation, exitCode(err))

	_, err = execute(t, "validate", "-f", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfig, exitCode(err))
}

func TestPlanCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeJob(t, dir, testJob)

	out, err := execute(t, "plan", "-f", path, "--workdir", dir, "--branch", "feature")
	require.NoError(t, err)
	assert.Contains(t, out, `branch="feature"`)
	assert.Contains(t, out, "building")
	assert.Contains(t, out, `no (branch == "master" && !pull_request)`)

	out, err = execute(t, "plan", "-f", path, "--workdir", dir, "--branch", "master", "--pull-request", "false", "--json")
	require.NoError(t, err)
	var plan []pipeline.PlannedStage
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	require.Len(t, plan, 3)
	assert.Equal(t, pipeline.PhasePublish, plan[2].Phase)
	assert.True(t, plan[2].Runs)
}

func runArgs(dir, path string, extra ...string) []string {
	args := []string{
		"run", "-f", path,
		"--workdir", dir,
		"--history-db", filepath.Join(dir, "history.db"),
		"--metrics-file", filepath.Join(dir, "metrics", "docpipe.prom"),
		"--token-env", "DOCPIPE_TEST_TOKEN",
	}
	return append(args, extra...)
}

func TestRunCommandSkipsPublishOffMaster(t *testing.T) {
	dir := t.TempDir()
	path := writeJob(t, dir, testJob)

	out, err := execute(t, runArgs(dir, path, "--branch", "feature")...)
	require.NoError(t, err)
	assert.Contains(t, out, "publish: skipped")

	assert.FileExists(t, filepath.Join(dir, pipeline.ReportJSON))
	assert.FileExists(t, filepath.Join(dir, pipeline.ReportText))

	prom, err := os.ReadFile(filepath.Join(dir, "metrics", "docpipe.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "docpipe_run_outcomes_total")

	out, err = execute(t, "history", "--history-db", filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "feature")
	assert.Contains(t, out, "succeeded")
}

func TestRunCommandPublishesOnMaster(t *testing.T) {
	dir := t.TempDir()
	path := writeJob(t, dir, testJob)
	logDir := t.TempDir()

	out, err := execute(t, runArgs(dir, path, "--branch", "master", "--pull-request", "false", "--log-dir", logDir)...)
	require.NoError(t, err)
	assert.Contains(t, out, "publish: published")

	runs, err := os.ReadDir(logDir)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	logs, err := os.ReadDir(filepath.Join(logDir, runs[0].Name(), "logs"))
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestRunCommandStageFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeJob(t, dir, `script:
  - name: build
    run: echo compile error; exit 3
  - name: test
    run: echo never
`)
	out, err := execute(t, runArgs(dir, path, "--branch", "master")...)
	require.Error(t, err)
	assert.Equal(t, errors.ExitStageFailed, exitCode(err))
	assert.Contains(t, out, `halted at "build" (index 0)`)

	var failure *pipeline.StageFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, failure.ExitCode)
}

func TestRunCommandPublishFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeJob(t, dir, `script:
  - name: build
    run: "true"
after_success:
  - name: render
    run: exit 1
`)
	_, err := execute(t, runArgs(dir, path, "--branch", "master", "--pull-request", "false")...)
	require.NoError(t, err)

	_, err = execute(t, runArgs(dir, path, "--branch", "master", "--pull-request", "false", "--strict-publish")...)
	require.Error(t, err)
	assert.Equal(t, errors.ExitPublishFailed, exitCode(err))
}

func TestOutcomeError(t *testing.T) {
	cancelled := &pipeline.Outcome{Status: pipeline.StatusCancelled, FailedIndex: -1}
	assert.Equal(t, errors.ExitCanceled, exitCode(outcomeError(cancelled, false)))
	assert.ErrorIs(t, outcomeError(cancelled, false), pipeline.ErrCancelled)

	ok := &pipeline.Outcome{Status: pipeline.StatusSucceeded, Publish: pipeline.PublishOutcome{Status: pipeline.PublishSkipped}}
	assert.NoError(t, outcomeError(ok, true))

	publishFailed := &pipeline.Outcome{Status: pipeline.StatusSucceeded, Publish: pipeline.PublishOutcome{
		Status: pipeline.PublishFailed, FailedStep: "push",
		Err: &pipeline.PublishStepFailure{Step: "push", Index: 3, ExitCode: 1},
	}}
	assert.NoError(t, outcomeError(publishFailed, false))
	assert.Equal(t, errors.ExitPublishFailed, exitCode(outcomeError(publishFailed, true)))

	publishCancelled := &pipeline.Outcome{Status: pipeline.StatusSucceeded, Publish: pipeline.PublishOutcome{
		Status: pipeline.PublishFailed, FailedStep: "push",
		Err: &pipeline.PublishStepFailure{Step: "push", Index: 3, ExitCode: -1, Err: pipeline.ErrCancelled},
	}}
	for _, strict := range []bool{false, true} {
		err := outcomeError(publishCancelled, strict)
		require.Error(t, err)
		assert.Equal(t, errors.ExitCanceled, exitCode(err))
		assert.ErrorIs(t, err, pipeline.ErrCancelled)
	}
}

func TestRunCommandKeepsTokenFromStages(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOCPIPE_TEST_TOKEN", "ghp_stage_secret")
	path := writeJob(t, dir, `script:
  - name: build
    run: printf '[%s]' "$DOCPIPE_TEST_TOKEN" | rev
after_success:
  - name: publish
    when:
      branch: master
      pull_request: false
    steps:
      - name: announce
        secret_env: PUBLISH_TOKEN
        run: test "$PUBLISH_TOKEN" = ghp_stage_secret && test -z "$DOCPIPE_TEST_TOKEN"
`)
	_, err := execute(t, runArgs(dir, path, "--branch", "master", "--pull-request", "false", "--strict-publish")...)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, pipeline.ReportJSON))
	require.NoError(t, err)
	var report pipeline.Outcome
	require.NoError(t, json.Unmarshal(data, &report))
	require.Len(t, report.Results, 1)
	assert.Equal(t, "][", report.Results[0].Output)
	assert.Equal(t, pipeline.PublishPublished, report.Publish.Status)
	assert.NotContains(t, string(data), "terces_egats_phg")
}

func TestHistoryCommandUnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	out, err := execute(t, "history", "--history-db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")

	_, err = execute(t, "history", "--history-db", db, "--run", "nope")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, parseLogLevel(false, ""))
	assert.Equal(t, slog.LevelDebug, parseLogLevel(true, ""))
	assert.Equal(t, slog.LevelWarn, parseLogLevel(true, "WARN"))
	assert.Equal(t, slog.LevelError, parseLogLevel(false, "error"))
}
