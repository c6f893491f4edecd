package pipeline

import "git.home.luguber.info/inful/docpipe/internal/job"

// Phase names the two halves of a run.
type Phase string

const (
	PhaseMain    Phase = "main"
	PhasePublish Phase = "publish"
)

// State is a node of the run state machine.
type State string

// Main phase states.
const (
	StatePending        State = "pending"
	StateInstalling     State = "installing"
	StateBuilding       State = "building"
	StateTestingDocs    State = "testing_docs"
	StateTesting        State = "testing"
	StateBenchmarking   State = "benchmarking"
	StateGeneratingDocs State = "generating_docs"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
	StateCancelled      State = "cancelled"
)

// Publish phase states.
const (
	StateCheckPredicate    State = "check_predicate"
	StateInstallingDocTool State = "installing_doc_tool"
	StateRenderingSite     State = "rendering_site"
	StateImportingHistory  State = "importing_history"
	StatePushing           State = "pushing"
	StatePublished         State = "published"
	StatePublishFailed     State = "publish_failed"
	StatePublishSkipped    State = "publish_skipped"
)

var roleStates = map[job.Role]State{
	job.RoleInstall: StateInstalling,
	job.RoleBuild:   StateBuilding,
	job.RoleDocTest: StateTestingDocs,
	job.RoleTest:    StateTesting,
	job.RoleBench:   StateBenchmarking,
	job.RoleDocGen:  StateGeneratingDocs,
}

// mainState derives the state for a main-phase stage. Install-list stages are
// always Installing; script stages follow their role and unroled stages keep
// the current state (Building when nothing ran yet).
func mainState(st job.Stage, inInstall bool, current State) State {
	if inInstall {
		return StateInstalling
	}
	if s, ok := roleStates[st.Role]; ok {
		return s
	}
	if current == StatePending || current == StateInstalling {
		return StateBuilding
	}
	return current
}

var publishSequence = []State{
	StateInstallingDocTool,
	StateRenderingSite,
	StateImportingHistory,
	StatePushing,
}

// publishState derives the state for a publish step: builtins map to their
// action, commands to their position in the four-step publish sequence.
func publishState(st job.Stage, pos int) State {
	switch st.Uses {
	case job.ActionGitImport:
		return StateImportingHistory
	case job.ActionGitPush:
		return StatePushing
	}
	if pos >= len(publishSequence) {
		return StatePushing
	}
	return publishSequence[pos]
}
