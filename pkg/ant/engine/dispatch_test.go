package engine

import (
	"bytes"
	"testing"

	"github.com/openant/ant/pkg/ant/message"
	"github.com/rs/zerolog"
)

func newTestDispatcher() (*dispatcher, *recordHandler, *counters) {
	handler := &recordHandler{}
	stats := &counters{}
	return newDispatcher(handler, zerolog.Nop(), stats), handler, stats
}

func TestDispatchNotification(t *testing.T) {
	d, h, _ := newTestDispatcher()
	d.dispatch(message.Frame{ID: message.IDStartupMessage, Payload: []byte{0x20}})

	if len(h.responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(h.responses))
	}
	r := h.responses[0]
	if r.channel != NoChannel || r.id != message.IDStartupMessage || !bytes.Equal(r.data, []byte{0x20}) {
		t.Errorf("response = %+v", r)
	}
}

func TestDispatchChannellessResponse(t *testing.T) {
	d, h, _ := newTestDispatcher()
	d.dispatch(message.Frame{ID: message.IDResponseCapabilities, Payload: []byte{8, 3, 0, 0xBA, 0x36, 0}})

	if len(h.responses) != 1 || h.responses[0].channel != NoChannel ||
		h.responses[0].id != message.IDResponseCapabilities {
		t.Errorf("responses = %+v", h.responses)
	}
}

func TestDispatchChannelResponse(t *testing.T) {
	d, h, _ := newTestDispatcher()
	d.dispatch(message.Frame{ID: message.IDResponseChannelStatus, Payload: []byte{0x02, 0x01}})

	if len(h.responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(h.responses))
	}
	r := h.responses[0]
	if r.channel != 2 || r.id != message.IDResponseChannelStatus || !bytes.Equal(r.data, []byte{0x01}) {
		t.Errorf("response = %+v", r)
	}
}

// The generic channel response routes on its embedded code: any code but
// 0x01 is a command response, 0x01 is an RF event.
func TestDispatchGenericResponseSplit(t *testing.T) {
	d, h, _ := newTestDispatcher()

	d.dispatch(message.Frame{ID: message.IDResponseChannel, Payload: []byte{0x00, 0x05, 0x00}})
	if len(h.responses) != 1 || len(h.events) != 0 {
		t.Fatalf("code 5: responses=%d events=%d, want 1/0", len(h.responses), len(h.events))
	}
	if r := h.responses[0]; r.channel != 0 || r.id != 0x05 || !bytes.Equal(r.data, []byte{0x00}) {
		t.Errorf("response = %+v", r)
	}

	d.dispatch(message.Frame{ID: message.IDResponseChannel, Payload: []byte{0x00, 0x01, 0x03}})
	if len(h.responses) != 1 || len(h.events) != 1 {
		t.Fatalf("code 1: responses=%d events=%d, want 1/1", len(h.responses), len(h.events))
	}
	if e := h.events[0]; e.channel != 0 || e.code != 1 || !bytes.Equal(e.data, []byte{0x03}) {
		t.Errorf("event = %+v", e)
	}
}

func TestDispatchBroadcastSuppression(t *testing.T) {
	d, h, stats := newTestDispatcher()
	first := []byte{0x03, 1, 2, 3, 4, 5, 6, 7, 8}
	changed := []byte{0x03, 1, 2, 3, 4, 5, 6, 7, 9}

	d.dispatch(message.Frame{ID: message.IDBroadcastData, Payload: first})
	d.dispatch(message.Frame{ID: message.IDBroadcastData, Payload: first})
	if len(h.events) != 1 {
		t.Fatalf("got %d events after duplicate, want 1", len(h.events))
	}
	if stats.suppressed.get() != 1 {
		t.Errorf("suppressed = %d, want 1", stats.suppressed.get())
	}

	d.dispatch(message.Frame{ID: message.IDBroadcastData, Payload: changed})
	if len(h.events) != 2 {
		t.Fatalf("got %d events after new payload, want 2", len(h.events))
	}
	if e := h.events[1]; e.channel != 3 || e.code != message.EventRxBroadcast || !bytes.Equal(e.data, changed[1:]) {
		t.Errorf("event = %+v", e)
	}
}

// The last-payload marker tracks every inbound frame, not just broadcasts.
func TestDispatchLastPayloadTracksAllFrames(t *testing.T) {
	d, h, _ := newTestDispatcher()
	payload := []byte{0x00, 1, 1, 1, 1, 1, 1, 1, 1}

	d.dispatch(message.Frame{ID: message.IDBroadcastData, Payload: payload})
	d.dispatch(message.Frame{ID: message.IDAcknowledgeData, Payload: []byte{0x00, 0xFF}})
	d.dispatch(message.Frame{ID: message.IDBroadcastData, Payload: payload})

	// The ack overwrote the marker, so the third frame is new data again.
	if len(h.events) != 3 {
		t.Errorf("got %d events, want 3", len(h.events))
	}
}

func TestDispatchAcknowledge(t *testing.T) {
	d, h, _ := newTestDispatcher()
	d.dispatch(message.Frame{ID: message.IDAcknowledgeData, Payload: []byte{0x01, 0xAB, 0xCD}})

	if len(h.events) != 1 {
		t.Fatalf("got %d events, want 1", len(h.events))
	}
	e := h.events[0]
	if e.channel != 1 || e.code != message.EventRxAcknowledged || !bytes.Equal(e.data, []byte{0xAB, 0xCD}) {
		t.Errorf("event = %+v", e)
	}
}

func burstPayload(channel, seq byte, data ...byte) []byte {
	return append([]byte{channel | seq<<burstSeqShift}, data...)
}

func TestDispatchBurstReassembly(t *testing.T) {
	d, h, stats := newTestDispatcher()

	d.dispatch(message.Frame{ID: message.IDBurstTransferData, Payload: burstPayload(3, 0, 1, 2, 3)})
	d.dispatch(message.Frame{ID: message.IDBurstTransferData, Payload: burstPayload(3, 1, 4, 5, 6)})
	if len(h.events) != 0 {
		t.Fatalf("got %d events before terminal packet, want 0", len(h.events))
	}

	d.dispatch(message.Frame{ID: message.IDBurstTransferData, Payload: burstPayload(3, 2|burstTerminalSeq, 7, 8)})
	if len(h.events) != 1 {
		t.Fatalf("got %d events after terminal packet, want 1", len(h.events))
	}
	e := h.events[0]
	if e.channel != 3 || e.code != message.EventRxBurstPacket || !bytes.Equal(e.data, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("event = %+v", e)
	}
	if stats.bursts.get() != 1 {
		t.Errorf("bursts = %d, want 1", stats.bursts.get())
	}
}

func TestDispatchBurstPerChannel(t *testing.T) {
	d, h, _ := newTestDispatcher()

	d.dispatch(message.Frame{ID: message.IDBurstTransferData, Payload: burstPayload(1, 0, 0x11)})
	d.dispatch(message.Frame{ID: message.IDBurstTransferData, Payload: burstPayload(2, 0, 0x22)})
	d.dispatch(message.Frame{ID: message.IDBurstTransferData, Payload: burstPayload(1, 1|burstTerminalSeq, 0x13)})
	d.dispatch(message.Frame{ID: message.IDBurstTransferData, Payload: burstPayload(2, 1|burstTerminalSeq, 0x24)})

	if len(h.events) != 2 {
		t.Fatalf("got %d events, want 2", len(h.events))
	}
	if e := h.events[0]; e.channel != 1 || !bytes.Equal(e.data, []byte{0x11, 0x13}) {
		t.Errorf("channel 1 burst = %+v", e)
	}
	if e := h.events[1]; e.channel != 2 || !bytes.Equal(e.data, []byte{0x22, 0x24}) {
		t.Errorf("channel 2 burst = %+v", e)
	}
}

func TestDispatchUnrecognized(t *testing.T) {
	d, h, stats := newTestDispatcher()
	d.dispatch(message.Frame{ID: 0x99, Payload: []byte{0x00}})

	if len(h.responses) != 0 || len(h.events) != 0 {
		t.Errorf("unrecognized frame was delivered: %+v %+v", h.responses, h.events)
	}
	if stats.unrecognized.get() != 1 {
		t.Errorf("unrecognized = %d, want 1", stats.unrecognized.get())
	}
}
