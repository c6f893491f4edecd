package job

import "slices"

var roleRank = map[Role]int{
	RoleInstall: 0,
	RoleBuild:   1,
	RoleDocTest: 2,
	RoleTest:    3,
	RoleBench:   4,
	RoleDocGen:  5,
}

// Schedule returns a normalized copy of spec: defaults are filled in and the
// script is stably ordered by role so that build < doctest < test < bench < docgen
// regardless of the order the stages were declared in. A stage without a role
// keeps the rank of the stage before it, so helper steps travel with their anchor.
func Schedule(spec Spec) Spec {
	out := spec.Clone()
	if out.Platform == "" {
		out.Platform = DefaultPlatform
	}
	if out.Toolchain == "" {
		out.Toolchain = DefaultToolchain
	}
	out.Script = orderByRole(out.Script)
	return out
}

func orderByRole(stages []Stage) []Stage {
	type ranked struct {
		rank  int
		stage Stage
	}
	items := make([]ranked, len(stages))
	prev := 0
	for i, s := range stages {
		if r, ok := roleRank[s.Role]; ok {
			prev = r
		}
		items[i] = ranked{rank: prev, stage: s}
	}
	slices.SortStableFunc(items, func(a, b ranked) int { return a.rank - b.rank })
	out := make([]Stage, len(items))
	for i, it := range items {
		out[i] = it.stage
	}
	return out
}
