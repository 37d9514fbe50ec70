package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/deskpilot/internal/automation"
)

// MeasurementRuns holds one point per finished top-level action script run.
const MeasurementRuns = "action_runs"

// RecordRun writes a run summary to InfluxDB.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Failures arrive through the SetOnError callback.
//
// Tags: name, ok. Fields: run_id, duration_ms, steps, succeeded, failed,
// skipped and, for failed runs, message.
func (c *Client) RecordRun(summary automation.RunSummary) {
	if !c.IsConnected() {
		return
	}
	c.w.WritePoint(runPoint(summary))
}

// runPoint converts a run summary into a point timestamped at its start.
func runPoint(summary automation.RunSummary) *write.Point {
	ts := summary.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := map[string]any{
		"run_id":      summary.RunID,
		"duration_ms": float64(summary.Duration) / float64(time.Millisecond),
		"steps":       summary.Steps,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
	}
	if !summary.OK {
		fields["message"] = summary.Message
	}

	return write.NewPoint(
		MeasurementRuns,
		map[string]string{
			"name": summary.Name,
			"ok":   strconv.FormatBool(summary.OK),
		},
		fields,
		ts,
	)
}
