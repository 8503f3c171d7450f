// Package engine implements the ANT protocol state machine: frame assembly
// from the transport stream, classification and callback dispatch, burst
// reassembly, and timeslot-scheduled transmission.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/openant/ant/pkg/ant/message"
	"github.com/openant/ant/pkg/ant/transport"
	"github.com/openant/ant/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// The link layer wants two zero pad bytes after every frame.
var writePad = []byte{0x00, 0x00}

// Engine owns the perpetual read loop over a claimed transport and the
// outgoing frame paths. All callback dispatch happens on the read loop;
// Send* methods are safe from any goroutine.
type Engine struct {
	tr       transport.Transport
	handler  Handler
	asm      *assembler
	disp     *dispatcher
	sched    *scheduler
	writeAPI api.WriteAPI
	logger   zerolog.Logger
	stats    counters

	writeMu sync.Mutex
	cancel  context.CancelFunc
}

type Option func(e *Engine) error

// WithHandler installs the callback receiver. Without it decoded traffic is
// dropped.
func WithHandler(h Handler) Option {
	return func(e *Engine) error {
		e.handler = h
		return nil
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

func WithInfluxDB(writeAPI api.WriteAPI) Option {
	return func(e *Engine) error {
		e.writeAPI = writeAPI
		return nil
	}
}

func New(tr transport.Transport, opts ...Option) (*Engine, error) {
	if tr == nil {
		return nil, fmt.Errorf("must specify a transport")
	}
	e := &Engine{
		tr:       tr,
		handler:  noopHandler{},
		sched:    &scheduler{},
		writeAPI: &util.MockWriteAPI{}, // overwritten with option
		logger:   log.Logger,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.asm = newAssembler(tr, e.logger, &e.stats)
	e.disp = newDispatcher(e.handler, e.logger, &e.stats)
	return e, nil
}

// Run executes the read loop until ctx is cancelled or Stop is called:
// assemble one frame, dispatch it, then drain the outgoing queue if the
// frame marked a broadcast timeslot. Transport faults are logged and the
// loop continues; reception availability wins over fail-fast.
func (e *Engine) Run(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)
	e.logger.Debug().Msg("engine read loop started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := e.asm.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.stats.transportErrors.inc()
			e.logger.Warn().Err(err).Msg("read failed")
			continue
		}
		e.stats.frames.inc()
		go e.writeAPI.WritePoint(influxdb2.NewPoint("ant.frame.received",
			map[string]string{
				"id": fmt.Sprintf("%02x", frame.ID),
			},
			map[string]interface{}{
				"bytes": len(frame.Payload),
			}, time.Now()))

		e.disp.dispatch(frame)

		// The drain runs for every broadcast frame, including ones the
		// dispatcher suppressed as duplicates: a repeat still marks a slot.
		if frame.ID == message.IDBroadcastData {
			e.drainQueue()
		}
	}
}

// Stop terminates the read loop. Closing the transport interrupts a read in
// flight; queued outgoing frames are not flushed.
func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.tr.Close()
}

func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

func (e *Engine) drainQueue() {
	var written int
	var acquired bool
	var err error
	micros := util.TimeOperationMicroseconds(func() {
		written, acquired, err = e.sched.drain(e.writeFrame)
	})
	if !acquired {
		e.stats.drainsSkipped.inc()
		return
	}
	if err != nil {
		e.stats.transportErrors.inc()
		e.logger.Warn().Err(err).Msg("drain write failed")
	}
	if written > 0 {
		e.stats.drained.add(uint64(written))
		e.logger.Debug().Int("written", written).Msg("drained queued messages")
		go e.writeAPI.WritePoint(influxdb2.NewPoint("ant.queue.drained",
			map[string]string{},
			map[string]interface{}{
				"written":  written,
				"duration": micros,
			}, time.Now()))
	}
}

// Send encodes and writes a frame immediately, bypassing the timeslot queue.
func (e *Engine) Send(id byte, payload []byte) error {
	frame := message.Frame{ID: id, Payload: payload}
	return e.writeFrame(frame)
}

// SendQueued appends a frame to the timeslot queue; it is written during a
// later broadcast period, in FIFO order.
func (e *Engine) SendQueued(id byte, payload []byte) error {
	if len(payload) > message.MaxPayload {
		return fmt.Errorf("%w: %d bytes", message.ErrPayloadTooLarge, len(payload))
	}
	e.sched.enqueue(message.Frame{ID: id, Payload: payload})
	e.stats.queued.inc()
	return nil
}

// QueuedFrames reports how many outgoing frames await a timeslot.
func (e *Engine) QueuedFrames() int {
	return e.sched.pending()
}

func (e *Engine) writeFrame(frame message.Frame) error {
	raw, err := message.Encode(frame.ID, frame.Payload)
	if err != nil {
		return err
	}
	raw = append(raw, writePad...)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if _, err := e.tr.Write(raw); err != nil {
		return fmt.Errorf("transport write: %w", err)
	}
	e.logger.Debug().Hex("data", raw).Msg("wrote frame")
	return nil
}
