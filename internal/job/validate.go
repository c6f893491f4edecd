package job

import (
	stderrors "errors"
	"fmt"

	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

// Validate checks structural rules and the doc-test ordering constraint. It
// expects a scheduled spec; an unscheduled spec with a misplaced doctest fails.
func Validate(spec Spec) error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if spec.Toolchain != "" && spec.Toolchain != DefaultToolchain {
		add("toolchain %q is not supported (only %q)", spec.Toolchain, DefaultToolchain)
	}
	if len(spec.Script) == 0 {
		add("script must contain at least one stage")
	}

	seen := map[string]bool{}
	for _, phase := range []struct {
		name   string
		stages []Stage
	}{{"install", spec.Install}, {"script", spec.Script}} {
		for _, s := range phase.stages {
			checkName(s, phase.name, seen, add)
			switch s.Kind() {
			case KindCommand, KindForEachFile:
			case KindConditional:
				add("%s stage %q: conditional blocks are only allowed in after_success", phase.name, s.Name)
			case KindBuiltin:
				add("%s stage %q: builtin actions are only allowed in after_success", phase.name, s.Name)
			default:
				add("%s stage %q: one of run, foreach+run, when+steps or uses is required", phase.name, s.Name)
			}
			if s.SecretEnv != "" {
				add("%s stage %q: secret_env is only allowed in after_success", phase.name, s.Name)
			}
		}
	}

	publishSeen := map[string]bool{}
	for _, s := range spec.AfterSuccess {
		checkName(s, "after_success", publishSeen, add)
		if s.Kind() == KindConditional {
			if s.When == nil {
				add("after_success block %q: when is required", s.Name)
			} else {
				checkPredicate(s.Name, *s.When, add)
			}
			if len(s.Steps) == 0 {
				add("after_success block %q: steps must not be empty", s.Name)
			}
			stepSeen := map[string]bool{}
			for _, st := range s.Steps {
				checkName(st, "after_success step", stepSeen, add)
				if st.Kind() == KindConditional {
					add("after_success step %q: nested conditional blocks are not supported", st.Name)
					continue
				}
				validatePublishStep(st, add)
			}
			continue
		}
		validatePublishStep(s, add)
	}

	if err := checkDocTestOrder(spec.Script); err != nil {
		problems = append(problems, err)
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.ValidationError("invalid job spec").
		WithCause(stderrors.Join(problems...)).
		WithContext("problems", len(problems)).
		Build()
}

func checkName(s Stage, where string, seen map[string]bool, add func(string, ...any)) {
	if s.Name == "" {
		add("%s stage without name", where)
		return
	}
	if seen[s.Name] {
		add("%s stage %q: duplicate name", where, s.Name)
	}
	seen[s.Name] = true
}

// checkPredicate rejects block predicates that are empty or can never hold
// together with PublishPredicate, which gates the whole publish phase.
func checkPredicate(block string, p Predicate, add func(string, ...any)) {
	if p.Branch == "" && p.PullRequest == nil {
		add("after_success block %q: when must set branch or pull_request", block)
		return
	}
	gate := PublishPredicate()
	if (p.Branch != "" && p.Branch != gate.Branch) || (p.PullRequest != nil && *p.PullRequest) {
		add("after_success block %q: when (%s) can never hold; publishing requires %s", block, p, gate)
	}
}

func validatePublishStep(s Stage, add func(string, ...any)) {
	switch s.Kind() {
	case KindCommand, KindForEachFile:
	case KindBuiltin:
		switch s.Uses {
		case ActionGitImport:
			if s.With["dir"] == "" {
				add("step %q: %s requires with.dir", s.Name, s.Uses)
			}
			if s.With["branch"] == "" {
				add("step %q: %s requires with.branch", s.Name, s.Uses)
			}
		case ActionGitPush:
			if s.With["branch"] == "" {
				add("step %q: %s requires with.branch", s.Name, s.Uses)
			}
		default:
			add("step %q: unknown action %q", s.Name, s.Uses)
		}
		if s.SecretEnv != "" {
			add("step %q: secret_env is not used by builtin actions", s.Name)
		}
	default:
		add("step %q: one of run, foreach+run or uses is required", s.Name)
	}
}

// checkDocTestOrder enforces build < doctest < {test, bench, docgen}.
func checkDocTestOrder(script []Stage) error {
	lastBuild, firstLater := -1, -1
	var docTests []int
	for i, s := range script {
		switch s.Role {
		case RoleBuild:
			lastBuild = i
		case RoleDocTest:
			docTests = append(docTests, i)
		case RoleTest, RoleBench, RoleDocGen:
			if firstLater < 0 {
				firstLater = i
			}
		}
	}
	if len(docTests) == 0 {
		return nil
	}
	if lastBuild < 0 {
		return fmt.Errorf("doctest stage %q requires a build stage before it", script[docTests[0]].Name)
	}
	for _, i := range docTests {
		if i < lastBuild {
			return fmt.Errorf("doctest stage %q must run after build stage %q", script[i].Name, script[lastBuild].Name)
		}
		if firstLater >= 0 && i > firstLater {
			return fmt.Errorf("doctest stage %q must run before stage %q", script[i].Name, script[firstLater].Name)
		}
	}
	return nil
}
