package message

import (
	"errors"
	"fmt"
)

// SyncByte marks the start of every frame on the wire.
const SyncByte byte = 0xA4

// MaxPayload is the largest payload a single frame can carry; the length
// field is one byte.
const MaxPayload = 255

// Wire layout: sync(1) | length(1) | id(1) | payload(length) | checksum(1).
// The checksum is the XOR of every preceding byte.
const Overhead = 4

var (
	ErrInvalidFrame    = errors.New("invalid frame")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrShortFrame      = errors.New("frame too short")
)

// Message IDs.
const (
	IDInvalid byte = 0x00

	// Configuration messages
	IDUnassignChannel                 byte = 0x41
	IDAssignChannel                   byte = 0x42
	IDSetChannelID                    byte = 0x51
	IDSetChannelPeriod                byte = 0x43
	IDSetChannelSearchTimeout         byte = 0x44
	IDSetChannelRFFreq                byte = 0x45
	IDSetNetworkKey                   byte = 0x46
	IDSetTransmitPower                byte = 0x47
	IDSetSearchWaveform               byte = 0x49
	IDAddChannelID                    byte = 0x59
	IDConfigList                      byte = 0x5A
	IDSetChannelTxPower               byte = 0x60
	IDLowPriorityChannelSearchTimeout byte = 0x63
	IDSerialNumberSetChannel          byte = 0x65
	IDEnableExtRxMessages             byte = 0x66
	IDEnableLED                       byte = 0x68
	IDEnableCrystal                   byte = 0x6D
	IDLibConfig                       byte = 0x6E
	IDFrequencyAgility                byte = 0x70
	IDProximitySearch                 byte = 0x71
	IDChannelSearchPriority           byte = 0x75

	// Notifications
	IDStartupMessage     byte = 0x6F
	IDSerialErrorMessage byte = 0xAE

	// Control messages
	IDResetSystem    byte = 0x4A
	IDOpenChannel    byte = 0x4B
	IDCloseChannel   byte = 0x4C
	IDOpenRxScanMode byte = 0x5B
	IDRequestMessage byte = 0x4D
	IDSleepMessage   byte = 0xC5

	// Data messages
	IDBroadcastData     byte = 0x4E
	IDAcknowledgeData   byte = 0x4F
	IDBurstTransferData byte = 0x50

	// Responses (per channel)
	IDResponseChannel byte = 0x40

	// Responses to RequestMessage
	IDResponseChannelStatus byte = 0x52
	IDResponseChannelID     byte = 0x51
	IDResponseVersion       byte = 0x3E
	IDResponseCapabilities  byte = 0x54
	IDResponseSerialNumber  byte = 0x61
)

// Code is a channel response or event code carried inside a response frame,
// or one of the synthetic RX event codes used on the channel-event path.
type Code int

const (
	ResponseNoError Code = 0

	EventRxSearchTimeout     Code = 1
	EventRxFail              Code = 2
	EventTx                  Code = 3
	EventTransferRxFailed    Code = 4
	EventTransferTxCompleted Code = 5
	EventTransferTxFailed    Code = 6
	EventChannelClosed       Code = 7
	EventRxFailGoToSearch    Code = 8
	EventChannelCollision    Code = 9
	EventTransferTxStart     Code = 10

	ChannelInWrongState Code = 21
	ChannelNotOpened    Code = 22
	ChannelIDNotSet     Code = 24
	CloseAllChannels    Code = 25

	TransferInProgress          Code = 31
	TransferSequenceNumberError Code = 32
	TransferInError             Code = 33

	MessageSizeExceedsLimit  Code = 39
	InvalidMessage           Code = 40
	InvalidNetworkNumber     Code = 41
	InvalidListID            Code = 48
	InvalidScanTxChannel     Code = 49
	InvalidParameterProvided Code = 51
	EventSerialQueOverflow   Code = 52
	EventQueOverflow         Code = 53
	NVMFullError             Code = 64
	NVMWriteError            Code = 65
	USBStringWriteFail       Code = 112
	MesgSerialErrorID        Code = 174

	// Synthetic codes for data delivered on the channel-event path. These
	// never appear on the wire; the dispatcher assigns them.
	EventRxBroadcast    Code = 1000
	EventRxAcknowledged Code = 2000
	EventRxBurstPacket  Code = 3000
)

var codeNames = map[Code]string{
	ResponseNoError:             "RESPONSE_NO_ERROR",
	EventRxSearchTimeout:        "EVENT_RX_SEARCH_TIMEOUT",
	EventRxFail:                 "EVENT_RX_FAIL",
	EventTx:                     "EVENT_TX",
	EventTransferRxFailed:       "EVENT_TRANSFER_RX_FAILED",
	EventTransferTxCompleted:    "EVENT_TRANSFER_TX_COMPLETED",
	EventTransferTxFailed:       "EVENT_TRANSFER_TX_FAILED",
	EventChannelClosed:          "EVENT_CHANNEL_CLOSED",
	EventRxFailGoToSearch:       "EVENT_RX_FAIL_GO_TO_SEARCH",
	EventChannelCollision:       "EVENT_CHANNEL_COLLISION",
	EventTransferTxStart:        "EVENT_TRANSFER_TX_START",
	ChannelInWrongState:         "CHANNEL_IN_WRONG_STATE",
	ChannelNotOpened:            "CHANNEL_NOT_OPENED",
	ChannelIDNotSet:             "CHANNEL_ID_NOT_SET",
	CloseAllChannels:            "CLOSE_ALL_CHANNELS",
	TransferInProgress:          "TRANSFER_IN_PROGRESS",
	TransferSequenceNumberError: "TRANSFER_SEQUENCE_NUMBER_ERROR",
	TransferInError:             "TRANSFER_IN_ERROR",
	MessageSizeExceedsLimit:     "MESSAGE_SIZE_EXCEEDS_LIMIT",
	InvalidMessage:              "INVALID_MESSAGE",
	InvalidNetworkNumber:        "INVALID_NETWORK_NUMBER",
	InvalidListID:               "INVALID_LIST_ID",
	InvalidScanTxChannel:        "INVALID_SCAN_TX_CHANNEL",
	InvalidParameterProvided:    "INVALID_PARAMETER_PROVIDED",
	EventSerialQueOverflow:      "EVENT_SERIAL_QUE_OVERFLOW",
	EventQueOverflow:            "EVENT_QUE_OVERFLOW",
	NVMFullError:                "NVM_FULL_ERROR",
	NVMWriteError:               "NVM_WRITE_ERROR",
	USBStringWriteFail:          "USB_STRING_WRITE_FAIL",
	MesgSerialErrorID:           "MESG_SERIAL_ERROR_ID",
	EventRxBroadcast:            "EVENT_RX_BROADCAST",
	EventRxAcknowledged:         "EVENT_RX_ACKNOWLEDGED",
	EventRxBurstPacket:          "EVENT_RX_BURST_PACKET",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE_%d", int(c))
}

// Frame is a single decoded protocol message. Frames are value objects;
// Encode and Decode never retain or mutate them.
type Frame struct {
	ID      byte
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("<frame %02x:% 02x>", f.ID, f.Payload)
}

// Checksum computes the frame checksum: XOR over sync, length, id and every
// payload byte.
func Checksum(id byte, payload []byte) byte {
	sum := SyncByte ^ byte(len(payload)) ^ id
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// Encode serialises a frame into its on-wire representation.
func Encode(id byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, 0, Overhead+len(payload))
	buf = append(buf, SyncByte, byte(len(payload)), id)
	buf = append(buf, payload...)
	buf = append(buf, Checksum(id, payload))
	return buf, nil
}

// Decode parses exactly one frame from buf. The declared length must match
// the number of payload bytes present and the trailing checksum must verify;
// callers decide resynchronization policy on failure.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < Overhead {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf))
	}
	if buf[0] != SyncByte {
		return Frame{}, fmt.Errorf("%w: bad sync byte %02x", ErrInvalidFrame, buf[0])
	}
	length := int(buf[1])
	if length != len(buf)-Overhead {
		return Frame{}, fmt.Errorf("%w: declared length %d, have %d payload bytes",
			ErrInvalidFrame, length, len(buf)-Overhead)
	}
	payload := make([]byte, length)
	copy(payload, buf[3:3+length])
	if sum := Checksum(buf[2], payload); sum != buf[len(buf)-1] {
		return Frame{}, fmt.Errorf("%w: checksum %02x, expected %02x",
			ErrInvalidFrame, buf[len(buf)-1], sum)
	}
	return Frame{ID: buf[2], Payload: payload}, nil
}
