// Package metrics names and tags the refresh engine's StatsD metrics.
package metrics

import (
	"time"

	obserrors "github.com/target/refresh-orchestrator/internal/observability/errors"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// ResultOf picks the result tag for an operation that touched count items.
func ResultOf(count int, err error) string {
	switch {
	case err != nil:
		return ResultError
	case count == 0:
		return ResultNoop
	default:
		return ResultSuccess
	}
}

// PassMetric summarizes one orchestration pass.
type PassMetric struct {
	Trigger  string
	Phases   map[string]int
	Duration time.Duration
	Err      error
}

// EmitPass records the pass duration and a per-phase count.
func EmitPass(sink statsd.Sink, in PassMetric) {
	if sink == nil {
		return
	}
	tags := withErrorClass(map[string]string{
		"trigger": in.Trigger,
		"result":  ResultOf(1, in.Err),
	}, in.Err)

	sink.Count("refresh.pass", 1, tags)
	if in.Duration > 0 {
		sink.Timing("refresh.pass_duration", in.Duration, CloneTags(tags))
	}
	for phase, n := range in.Phases {
		sink.Count("refresh.pass_phase", int64(n), map[string]string{"phase": phase})
	}
}

// RunTransitionMetric describes a run entering a status.
type RunTransitionMetric struct {
	Status string
	Source string
	Err    error
}

// EmitRunTransition counts runs moving into a status, or failing to.
func EmitRunTransition(sink statsd.Sink, in RunTransitionMetric) {
	if sink == nil {
		return
	}
	tags := withErrorClass(map[string]string{
		"status": in.Status,
		"source": in.Source,
		"result": ResultOf(1, in.Err),
	}, in.Err)
	sink.Count("refresh.run.transition", 1, tags)
}

// EmitDispatch counts one query dispatch. reused marks a running execution that was picked up instead of resubmitted.
func EmitDispatch(sink statsd.Sink, reused bool, err error) {
	if sink == nil {
		return
	}
	result := ResultOf(1, err)
	if reused && err == nil {
		result = "reused"
	}
	sink.Count("refresh.dispatch", 1, withErrorClass(map[string]string{"result": result}, err))
}

func withErrorClass(tags map[string]string, err error) map[string]string {
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	return tags
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
