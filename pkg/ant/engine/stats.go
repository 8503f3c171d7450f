package engine

import "sync/atomic"

type counter uint64

func (c *counter) inc()         { atomic.AddUint64((*uint64)(c), 1) }
func (c *counter) add(n uint64) { atomic.AddUint64((*uint64)(c), n) }
func (c *counter) get() uint64  { return atomic.LoadUint64((*uint64)(c)) }

// counters is updated from the read loop and from sending callers; the
// status server samples it concurrently.
type counters struct {
	frames          counter
	resyncs         counter
	transportErrors counter
	suppressed      counter
	bursts          counter
	queued          counter
	drained         counter
	drainsSkipped   counter
	unrecognized    counter
}

// Stats is a point-in-time snapshot of the engine counters.
type Stats struct {
	FramesDecoded        uint64 `json:"frames_decoded"`
	Resyncs              uint64 `json:"resyncs"`
	TransportErrors      uint64 `json:"transport_errors"`
	BroadcastsSuppressed uint64 `json:"broadcasts_suppressed"`
	BurstsCompleted      uint64 `json:"bursts_completed"`
	FramesQueued         uint64 `json:"frames_queued"`
	FramesDrained        uint64 `json:"frames_drained"`
	DrainsSkipped        uint64 `json:"drains_skipped"`
	UnrecognizedFrames   uint64 `json:"unrecognized_frames"`
}

func (c *counters) snapshot() Stats {
	return Stats{
		FramesDecoded:        c.frames.get(),
		Resyncs:              c.resyncs.get(),
		TransportErrors:      c.transportErrors.get(),
		BroadcastsSuppressed: c.suppressed.get(),
		BurstsCompleted:      c.bursts.get(),
		FramesQueued:         c.queued.get(),
		FramesDrained:        c.drained.get(),
		DrainsSkipped:        c.drainsSkipped.get(),
		UnrecognizedFrames:   c.unrecognized.get(),
	}
}
