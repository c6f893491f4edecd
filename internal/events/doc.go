// Package events publishes run lifecycle events to NATS so dashboards and
// chat bots can follow a docpipe run while it executes.
package events
