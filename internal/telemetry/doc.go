// Package telemetry wraps OpenTelemetry SDK setup for the execution core.
// When telemetry is disabled, no exporters are created and the global
// providers remain noop; the executor's spans become free.
package telemetry
