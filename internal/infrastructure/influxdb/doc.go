// Package influxdb records finished action script runs as points in the
// action_runs measurement.
//
// Client satisfies automation.RunRecorder. Writes are batched and never
// block a run; batch failures reach the SetOnError callback.
package influxdb
