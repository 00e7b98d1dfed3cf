package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/automationd/internal/automation"
)

// WriteProgramExecution mirrors one completed program dispatch as a point in
// the "program_executions" measurement, tagged by address and outcome so a
// dashboard can chart fault rate and duration per program over time
// (SPEC_FULL.md §15's InfluxDB mirror of execution history). The write is
// non-blocking and best-effort: SQLite via Repository.CreateExecution is the
// durable record, this is a secondary time-series view.
func (c *Client) WriteProgramExecution(exec automation.Execution) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"execution_id": exec.ID,
	}
	if exec.DurationMS != nil {
		fields["duration_ms"] = *exec.DurationMS
	}

	point := write.NewPoint(
		"program_executions",
		map[string]string{
			"program_address": strconv.Itoa(exec.ProgramAddr),
			"trigger_type":    exec.TriggerType,
			"outcome":         exec.Outcome,
		},
		fields,
		exec.TriggeredAt,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
