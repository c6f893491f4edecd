package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docpipe/internal/config"
	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/job"
)

// Global carries process-wide state into subcommands.
type Global struct {
	Context context.Context
	Logger  *slog.Logger
	Out     io.Writer
}

func (g *Global) ctx() context.Context {
	if g == nil || g.Context == nil {
		return context.Background()
	}
	return g.Context
}

func (g *Global) logger() *slog.Logger {
	if g == nil || g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run      RunCmd      `cmd:"" help:"Run the job: main phase, then publish when it applies"`
	Validate ValidateCmd `cmd:"" help:"Parse and validate the job file"`
	Plan     PlanCmd     `cmd:"" help:"Print the scheduled stages without running them"`
	Init     InitCmd     `cmd:"" help:"Write the default job file"`
	History  HistoryCmd  `cmd:"" help:"List past runs from the history database"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := parseLogLevel(c.Verbose, os.Getenv("DOCPIPE_LOG_LEVEL"))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// parseLogLevel honours DOCPIPE_LOG_LEVEL first, then the verbose flag.
func parseLogLevel(verbose bool, env string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// JobFlag selects the job file.
type JobFlag struct {
	File string `short:"f" name:"file" help:"Job file path" default:"docpipe.yaml" env:"DOCPIPE_JOB"`
}

func (f JobFlag) load() (job.Spec, error) {
	return config.LoadJob(f.File)
}

// ContextFlags override RunContext resolution.
type ContextFlags struct {
	Branch      string `name:"branch" help:"Branch being built (default: CI environment, then git HEAD)"`
	PullRequest string `name:"pull-request" help:"Whether the build is for a pull request" enum:"auto,true,false" default:"auto"`
	TokenEnv    string `name:"token-env" help:"Environment variable holding the publish token" default:"GH_TOKEN"`
}

func (f ContextFlags) tokenEnv() string {
	if f.TokenEnv == "" {
		return config.DefaultTokenEnv
	}
	return f.TokenEnv
}

func (f ContextFlags) resolve(repoDir string) (job.RunContext, error) {
	if _, err := config.LoadDotEnv(repoDir); err != nil {
		return job.RunContext{}, errors.WrapError(err, errors.CategoryConfig, "load .env file").Build()
	}
	opts := config.ResolveOptions{RepoDir: repoDir, TokenEnv: f.tokenEnv(), Branch: f.Branch}
	if f.PullRequest != "" && f.PullRequest != "auto" {
		pr := f.PullRequest == "true"
		opts.PullRequest = &pr
	}
	return config.ResolveRunContext(opts), nil
}
