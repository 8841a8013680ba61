// Package telemetry provides in-process pipeline counters, exposed through
// the health endpoint. No external reporting.
package telemetry

import "sync/atomic"

// PipelineStats counts pipeline outcomes. Safe for concurrent use.
type PipelineStats struct {
	analyzed   atomic.Int64
	allowed    atomic.Int64
	flagged    atomic.Int64
	blocked    atomic.Int64
	rejected   atomic.Int64
	earlyExits atomic.Int64
	degraded   atomic.Int64
	sinkDrops  atomic.Int64
}

// RecordVerdict tallies one completed analysis.
func (s *PipelineStats) RecordVerdict(decision string, earlyExit, degraded bool) {
	if s == nil {
		return
	}
	s.analyzed.Add(1)
	switch decision {
	case "allow":
		s.allowed.Add(1)
	case "flag":
		s.flagged.Add(1)
	case "block":
		s.blocked.Add(1)
	}
	if earlyExit {
		s.earlyExits.Add(1)
	}
	if degraded {
		s.degraded.Add(1)
	}
}

// RecordRejected tallies a message rejected before analysis.
func (s *PipelineStats) RecordRejected() {
	if s == nil {
		return
	}
	s.rejected.Add(1)
}

// RecordSinkDrop tallies a verdict dropped by the audit sink backpressure
// guard.
func (s *PipelineStats) RecordSinkDrop() {
	if s == nil {
		return
	}
	s.sinkDrops.Add(1)
}

// Snapshot returns current counter values keyed for JSON exposure.
func (s *PipelineStats) Snapshot() map[string]int64 {
	if s == nil {
		return nil
	}
	return map[string]int64{
		"analyzed":    s.analyzed.Load(),
		"allowed":     s.allowed.Load(),
		"flagged":     s.flagged.Load(),
		"blocked":     s.blocked.Load(),
		"rejected":    s.rejected.Load(),
		"early_exits": s.earlyExits.Load(),
		"degraded":    s.degraded.Load(),
		"sink_drops":  s.sinkDrops.Load(),
	}
}
