// Package pipeline runs a docpipe job: the main phase (install then script,
// strictly sequential, halting at the first failure) followed by the
// after_success publish phase, which runs only when the main phase succeeded
// and its predicate matches the RunContext.
//
// The Runner reports every state transition, stage boundary and output line
// to Observers. The Outcome it returns keeps the main verdict (Status) and the
// publish verdict (Publish.Status) on separate channels so a publish failure
// never changes the build result.
package pipeline
