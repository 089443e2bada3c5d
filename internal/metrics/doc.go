// Package metrics provides the observability hooks used by verifybuild.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so nothing needs nil checks:
//
//	executor := sandbox.NewExecutor(runner, sess).WithRecorder(recorder)
//
// The CLI installs a PrometheusRecorder when --metrics-file is given and writes
// the registry in textfile format when the command finishes, for pickup by a
// node exporter textfile collector.
package metrics
