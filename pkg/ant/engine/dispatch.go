package engine

import (
	"bytes"

	"github.com/openant/ant/pkg/ant/message"
	"github.com/rs/zerolog"
)

// NoChannel is passed to OnResponse for messages that are not tied to a
// channel (notifications and requested-message responses).
const NoChannel = -1

// Handler receives decoded traffic from the engine's read loop. Both methods
// are invoked synchronously on the read loop, in decode order, never
// concurrently. Implementations must not block for long or reception stalls.
type Handler interface {
	// OnResponse delivers notifications and request/response-style messages.
	// For generic channel responses id is the embedded message id being
	// responded to, not the frame id.
	OnResponse(channel int, id byte, data []byte)

	// OnChannelEvent delivers per-channel asynchronous events. For received
	// data the code is one of the synthetic EventRx* values.
	OnChannelEvent(channel byte, code message.Code, data []byte)
}

type noopHandler struct{}

func (noopHandler) OnResponse(int, byte, []byte)              {}
func (noopHandler) OnChannelEvent(byte, message.Code, []byte) {}

// dispatcher classifies decoded frames and routes them to the handler. Its
// only memory is the last seen payload (broadcast duplicate suppression) and
// the per-channel burst accumulators.
type dispatcher struct {
	handler  Handler
	burst    *burstAssembler
	lastData []byte
	logger   zerolog.Logger
	stats    *counters
}

func newDispatcher(handler Handler, logger zerolog.Logger, stats *counters) *dispatcher {
	return &dispatcher{
		handler: handler,
		burst:   newBurstAssembler(),
		logger:  logger,
		stats:   stats,
	}
}

// dispatch routes one frame. Broadcast frames whose payload matches the
// previous frame's payload are suppressed: broadcast slots retransmit the
// last payload until new data exists, so a repeat only marks a new timeslot.
func (d *dispatcher) dispatch(frame message.Frame) {
	data := frame.Payload
	// The duplicate marker tracks every frame, not just broadcasts.
	defer func() { d.lastData = data }()

	if frame.ID == message.IDBroadcastData && bytes.Equal(data, d.lastData) {
		d.stats.suppressed.inc()
		d.logger.Debug().Msg("no new data this period")
		return
	}

	switch {
	case frame.ID == message.IDStartupMessage || frame.ID == message.IDSerialErrorMessage:
		d.handler.OnResponse(NoChannel, frame.ID, data)

	case frame.ID == message.IDResponseVersion ||
		frame.ID == message.IDResponseCapabilities ||
		frame.ID == message.IDResponseSerialNumber:
		d.handler.OnResponse(NoChannel, frame.ID, data)

	case frame.ID == message.IDResponseChannelStatus || frame.ID == message.IDResponseChannelID:
		if !d.wellFormed(frame, 1) {
			return
		}
		d.handler.OnResponse(int(data[0]), frame.ID, data[1:])

	// The generic channel response splits on its embedded code: code 0x01
	// (an RF event) goes to the channel-event path, everything else is a
	// command response. Observed device behavior; do not "correct".
	case frame.ID == message.IDResponseChannel:
		if !d.wellFormed(frame, 2) {
			return
		}
		if data[1] != 0x01 {
			d.handler.OnResponse(int(data[0]), data[1], data[2:])
		} else {
			d.logger.Debug().Stringer("frame", frame).Msg("channel event")
			d.handler.OnChannelEvent(data[0], message.Code(data[1]), data[2:])
		}

	case frame.ID == message.IDBroadcastData:
		if !d.wellFormed(frame, 1) {
			return
		}
		d.handler.OnChannelEvent(data[0], message.EventRxBroadcast, data[1:])

	case frame.ID == message.IDAcknowledgeData:
		if !d.wellFormed(frame, 1) {
			return
		}
		d.handler.OnChannelEvent(data[0], message.EventRxAcknowledged, data[1:])

	case frame.ID == message.IDBurstTransferData:
		if channel, burst, done := d.burst.feed(data); done {
			d.stats.bursts.inc()
			d.handler.OnChannelEvent(channel, message.EventRxBurstPacket, burst)
		}

	default:
		d.stats.unrecognized.inc()
		d.logger.Warn().Stringer("frame", frame).Msg("unrecognized message")
	}
}

func (d *dispatcher) wellFormed(frame message.Frame, min int) bool {
	if len(frame.Payload) >= min {
		return true
	}
	d.stats.unrecognized.inc()
	d.logger.Warn().Stringer("frame", frame).Msg("truncated payload")
	return false
}
