package engine

// Burst packet payload layout: the first byte packs the channel number in its
// low 5 bits and a 3-bit sequence code in its high 3 bits. Bit 2 of the
// sequence code marks the final packet of a transfer.
const (
	burstChannelMask  = 0x1F
	burstSeqShift     = 5
	burstTerminalSeq  = 0b100
	burstTerminalByte = burstTerminalSeq << burstSeqShift // 0x80
)

// burstAssembler accumulates burst packet data per channel until a terminal
// packet completes the transfer. Sequence continuity between packets is not
// checked: the device-side protocol never enforced it, and out-of-order or
// repeated non-terminal packets are accepted as-is.
type burstAssembler struct {
	pending map[byte][]byte
}

func newBurstAssembler() *burstAssembler {
	return &burstAssembler{pending: make(map[byte][]byte)}
}

// feed consumes one burst packet payload. When the packet carries the
// terminal flag it returns the channel, the fully reassembled data and true;
// otherwise it buffers and returns false.
func (b *burstAssembler) feed(payload []byte) (byte, []byte, bool) {
	if len(payload) == 0 {
		return 0, nil, false
	}
	seq := payload[0] >> burstSeqShift
	channel := payload[0] & burstChannelMask

	b.pending[channel] = append(b.pending[channel], payload[1:]...)

	if seq&burstTerminalSeq == 0 {
		return 0, nil, false
	}
	data := b.pending[channel]
	delete(b.pending, channel)
	return channel, data, true
}
