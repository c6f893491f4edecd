// Package job defines the immutable description of a docpipe job (Spec) and the
// per-invocation RunContext it executes against.
//
// A Spec has three phases: install, script (together the main phase) and
// after_success (the publish phase). Each phase is an ordered list of stages. A
// stage is a tagged variant whose kind is inferred from the fields that are set:
//
//	run                  FixedCommand
//	foreach + run        ForEachFile
//	when + steps         ConditionalBlock
//	uses + with          Builtin
//
// Specs are normalized with Schedule and checked with Validate before execution.
package job
