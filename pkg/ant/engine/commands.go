package engine

import (
	"encoding/binary"

	"github.com/openant/ant/pkg/ant/message"
)

// Channel configuration and control commands. Each is a plain encode-and-send
// of a fixed message id and argument layout; pair with the session package to
// wait for the device's answer.

func (e *Engine) UnassignChannel(channel byte) error {
	return e.Send(message.IDUnassignChannel, []byte{channel})
}

func (e *Engine) AssignChannel(channel, channelType, network byte) error {
	return e.Send(message.IDAssignChannel, []byte{channel, channelType, network})
}

func (e *Engine) OpenChannel(channel byte) error {
	return e.Send(message.IDOpenChannel, []byte{channel})
}

func (e *Engine) CloseChannel(channel byte) error {
	return e.Send(message.IDCloseChannel, []byte{channel})
}

func (e *Engine) OpenRxScanMode() error {
	return e.Send(message.IDOpenRxScanMode, []byte{0x00})
}

func (e *Engine) SetChannelID(channel byte, deviceNumber uint16, deviceType, transmissionType byte) error {
	payload := []byte{channel, 0, 0, deviceType, transmissionType}
	binary.LittleEndian.PutUint16(payload[1:3], deviceNumber)
	return e.Send(message.IDSetChannelID, payload)
}

func (e *Engine) SetChannelPeriod(channel byte, period uint16) error {
	payload := []byte{channel, 0, 0}
	binary.LittleEndian.PutUint16(payload[1:3], period)
	return e.Send(message.IDSetChannelPeriod, payload)
}

func (e *Engine) SetChannelSearchTimeout(channel, timeout byte) error {
	return e.Send(message.IDSetChannelSearchTimeout, []byte{channel, timeout})
}

func (e *Engine) SetChannelRFFreq(channel, rfFreq byte) error {
	return e.Send(message.IDSetChannelRFFreq, []byte{channel, rfFreq})
}

func (e *Engine) SetNetworkKey(network byte, key []byte) error {
	return e.Send(message.IDSetNetworkKey, append([]byte{network}, key...))
}

func (e *Engine) SetTransmitPower(power byte) error {
	return e.Send(message.IDSetTransmitPower, []byte{0x00, power})
}

// SetSearchWaveform is undocumented but sent by the vendor daemon.
func (e *Engine) SetSearchWaveform(channel byte, waveform uint16) error {
	payload := []byte{channel, 0, 0}
	binary.LittleEndian.PutUint16(payload[1:3], waveform)
	return e.Send(message.IDSetSearchWaveform, payload)
}

func (e *Engine) ResetSystem() error {
	return e.Send(message.IDResetSystem, []byte{0x00})
}

func (e *Engine) Sleep() error {
	return e.Send(message.IDSleepMessage, []byte{0x00})
}

// RequestMessage asks the device to send the identified message (channel
// status, capabilities, serial number, ...).
func (e *Engine) RequestMessage(channel, requestedID byte) error {
	return e.Send(message.IDRequestMessage, []byte{channel, requestedID})
}

// SendAcknowledgedData queues a single acknowledged data payload for the
// channel's next timeslot.
func (e *Engine) SendAcknowledgedData(channel byte, data []byte) error {
	return e.SendQueued(message.IDAcknowledgeData, append([]byte{channel}, data...))
}

// SendBurstTransferPacket queues one raw burst packet. channelSeq packs the
// channel number and the 3-bit sequence code.
func (e *Engine) SendBurstTransferPacket(channelSeq byte, data []byte) error {
	return e.SendQueued(message.IDBurstTransferData, append([]byte{channelSeq}, data...))
}

// SendBurstTransfer queues a whole burst sequence. Packets carry a rolling
// 2-bit sequence code; the final packet additionally sets the terminal flag.
// The drain writes the entire sequence in a single timeslot.
func (e *Engine) SendBurstTransfer(channel byte, packets [][]byte) error {
	for i, data := range packets {
		seq := byte(i % 4)
		if i == len(packets)-1 {
			seq |= burstTerminalSeq
		}
		channelSeq := channel | seq<<burstSeqShift
		if err := e.SendBurstTransferPacket(channelSeq, data); err != nil {
			return err
		}
	}
	return nil
}
