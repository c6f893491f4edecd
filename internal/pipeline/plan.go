package pipeline

import (
	"git.home.luguber.info/inful/docpipe/internal/executor"
	"git.home.luguber.info/inful/docpipe/internal/job"
)

// PlannedStage is one row of a dry-run plan.
type PlannedStage struct {
	Phase   Phase    `json:"phase"`
	Index   int      `json:"index"`
	Name    string   `json:"name"`
	Kind    job.Kind `json:"kind"`
	Role    job.Role `json:"role,omitempty"`
	State   State    `json:"state"`
	Command string   `json:"command"`
	// Block and Predicate are set for steps nested in a conditional block.
	Block     string `json:"block,omitempty"`
	Predicate string `json:"predicate,omitempty"`
	// Runs reports whether the step would run if every main stage succeeds.
	Runs bool `json:"runs"`
}

// Plan schedules spec and lists every stage in execution order with the state
// it runs in, without executing anything.
func Plan(spec job.Spec, rc job.RunContext) []PlannedStage {
	spec = job.Schedule(spec)
	x := &run{rc: rc, redact: executor.NewRedactor(rc.Token.Reveal())}

	var plan []PlannedStage
	state := StatePending
	for i, st := range spec.MainPhase() {
		state = mainState(st, i < len(spec.Install), state)
		plan = append(plan, PlannedStage{
			Phase: PhaseMain, Index: i, Name: st.Name, Kind: st.Kind(), Role: st.Role,
			State: state, Command: x.describe(st), Runs: true,
		})
	}

	index := 0
	for _, entry := range spec.AfterSuccess {
		steps, block := []job.Stage{entry}, ""
		if entry.Kind() == job.KindConditional {
			steps, block = entry.Steps, entry.Name
		}
		gate, runs := entryPredicate(entry, rc)
		pred := gate.String()
		if runs && entry.Kind() == job.KindConditional && entry.When != nil {
			pred = entry.When.String()
		}
		for pos, st := range steps {
			plan = append(plan, PlannedStage{
				Phase: PhasePublish, Index: index, Name: st.Name, Kind: st.Kind(), Role: st.Role,
				State: publishState(st, pos), Command: x.describe(st),
				Block: block, Predicate: pred, Runs: runs,
			})
			index++
		}
	}
	return plan
}
