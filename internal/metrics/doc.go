// Package metrics provides run and stage metrics for docpipe.
//
// Components receive a Recorder through dependency injection. NoopRecorder is
// the default so callers never need nil checks. PrometheusRecorder registers
// collectors on a caller-supplied registry; since docpipe is a one-shot CLI the
// registry is exported with WriteTextfile for the node-exporter textfile
// collector instead of being served over HTTP.
package metrics
