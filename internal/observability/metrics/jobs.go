// Package metrics centralizes the metric names and tag shapes emitted by the
// orchestration engine so dashboards stay stable as call sites move.
package metrics

import (
	"time"

	"github.com/fundingcalc/jobs-engine/internal/domain/model"
	"github.com/fundingcalc/jobs-engine/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// EmitJobsCreated counts jobs accepted by a batch create.
func EmitJobsCreated(sink statsd.Sink, count int) {
	if sink == nil || count <= 0 {
		return
	}
	sink.Count("jobs.created", int64(count), nil)
}

// EmitJobCompleted counts a job reaching a terminal state, tagged by how it
// ended.
func EmitJobCompleted(sink statsd.Sink, status model.CompletionStatus) {
	if sink == nil {
		return
	}
	sink.Count("jobs.completed", 1, map[string]string{
		"completion_status": string(status),
	})
}

// EmitJobLogAppended counts ingested job logs, split by terminal reports.
func EmitJobLogAppended(sink statsd.Sink, terminal bool) {
	if sink == nil {
		return
	}
	kind := "progress"
	if terminal {
		kind = "terminal"
	}
	sink.Count("jobs.log_appended", 1, map[string]string{"kind": kind})
}

// EmitSweep records one timeout sweep: how many candidates were inspected,
// how many timed out, and how long the pass took.
func EmitSweep(sink statsd.Sink, inspected, timedOut int, took time.Duration, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	tags := map[string]string{"result": result}
	sink.Count("sweep.runs", 1, tags)
	sink.Gauge("sweep.inspected", float64(inspected), nil)
	if timedOut > 0 {
		sink.Count("sweep.timed_out", int64(timedOut), nil)
	}
	sink.Timing("sweep.duration", took, tags)
}

// EmitMessageHandled counts one consumed broker message per handler outcome.
func EmitMessageHandled(sink statsd.Sink, source string, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	sink.Count("consumer.messages", 1, map[string]string{
		"source": source,
		"result": result,
	})
}
