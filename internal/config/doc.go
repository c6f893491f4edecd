// Package config loads the docpipe job file and resolves the RunContext.
//
// The job file is YAML decoded with unknown fields rejected; it is read once
// and never re-read or mutated. RunContext values come from the process
// environment (after optional .env files) and, for the branch, from the
// repository HEAD. Nothing outside this package reads CI environment
// variables.
package config
