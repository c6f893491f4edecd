package job

import (
	"maps"
	"slices"
	"time"
)

// Kind identifies the shape of a stage.
type Kind string

const (
	KindCommand     Kind = "command"
	KindForEachFile Kind = "foreach"
	KindConditional Kind = "conditional"
	KindBuiltin     Kind = "builtin"
	KindInvalid     Kind = "invalid"
)

// Role tags a main-phase stage with its place in the build. Roles drive
// scheduling; stages without a role stay attached to the stage before them.
type Role string

const (
	RoleInstall Role = "install"
	RoleBuild   Role = "build"
	RoleDocTest Role = "doctest"
	RoleTest    Role = "test"
	RoleBench   Role = "bench"
	RoleDocGen  Role = "docgen"
)

// Builtin action names usable in the publish phase.
const (
	ActionGitImport = "git-import"
	ActionGitPush   = "git-push"
)

// FilePlaceholder is replaced by the shell-quoted file path in ForEachFile commands.
const FilePlaceholder = "{file}"

// Defaults applied by Normalize.
const (
	DefaultPlatform  = "linux"
	DefaultToolchain = "stable"
)

// Spec is the immutable job description.
type Spec struct {
	Platform     string  `yaml:"os"`
	Toolchain    string  `yaml:"toolchain"`
	Install      []Stage `yaml:"install,omitempty"`
	Script       []Stage `yaml:"script"`
	AfterSuccess []Stage `yaml:"after_success,omitempty"`
}

// Stage is one entry in a phase.
type Stage struct {
	Name         string            `yaml:"name"`
	Role         Role              `yaml:"role,omitempty"`
	Run          string            `yaml:"run,omitempty"`
	ForEach      string            `yaml:"foreach,omitempty"`
	OnlyWithCode bool              `yaml:"only_with_code,omitempty"`
	When         *Predicate        `yaml:"when,omitempty"`
	Steps        []Stage           `yaml:"steps,omitempty"`
	Uses         string            `yaml:"uses,omitempty"`
	With         map[string]string `yaml:"with,omitempty"`
	Dir          string            `yaml:"dir,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	SecretEnv    string            `yaml:"secret_env,omitempty"`
	Timeout      time.Duration     `yaml:"timeout,omitempty"`
}

// Kind infers the stage kind from the fields that are set.
func (s Stage) Kind() Kind {
	switch {
	case s.When != nil || len(s.Steps) > 0:
		return KindConditional
	case s.Uses != "":
		return KindBuiltin
	case s.ForEach != "" && s.Run != "":
		return KindForEachFile
	case s.Run != "" && s.ForEach == "":
		return KindCommand
	default:
		return KindInvalid
	}
}

// Command returns a FixedCommand stage.
func Command(name, run string) Stage {
	return Stage{Name: name, Run: run}
}

// ForEachFile returns a stage that runs run once for every file matching pattern.
func ForEachFile(name, pattern, run string) Stage {
	return Stage{Name: name, ForEach: pattern, Run: run}
}

// Conditional returns a block whose steps run only when pred matches the RunContext.
func Conditional(name string, pred Predicate, steps ...Stage) Stage {
	return Stage{Name: name, When: &pred, Steps: steps}
}

// Builtin returns an in-process action stage.
func Builtin(name, uses string, with map[string]string) Stage {
	return Stage{Name: name, Uses: uses, With: with}
}

// WithRole returns a copy of s tagged with role r.
func (s Stage) WithRole(r Role) Stage {
	s.Role = r
	return s
}

// clone deep-copies the slices and maps of a stage.
func (s Stage) clone() Stage {
	out := s
	out.With = maps.Clone(s.With)
	out.Env = maps.Clone(s.Env)
	if s.When != nil {
		w := s.When.clone()
		out.When = &w
	}
	out.Steps = cloneStages(s.Steps)
	return out
}

func cloneStages(in []Stage) []Stage {
	if in == nil {
		return nil
	}
	out := make([]Stage, len(in))
	for i, s := range in {
		out[i] = s.clone()
	}
	return out
}

// Clone returns a deep copy of the spec.
func (s Spec) Clone() Spec {
	return Spec{
		Platform:     s.Platform,
		Toolchain:    s.Toolchain,
		Install:      cloneStages(s.Install),
		Script:       cloneStages(s.Script),
		AfterSuccess: cloneStages(s.AfterSuccess),
	}
}

// MainPhase returns install followed by script. Indices into the result are the
// global stage indices reported in outcomes.
func (s Spec) MainPhase() []Stage {
	return slices.Concat(s.Install, s.Script)
}
