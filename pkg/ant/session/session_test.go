package session

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/openant/ant/pkg/ant/message"
	"github.com/rs/zerolog"
)

// nullTransport accepts writes and never produces reads; session tests feed
// traffic through the handler methods directly.
type nullTransport struct{}

func (nullTransport) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}
func (nullTransport) Write(p []byte) (int, error) { return len(p), nil }
func (nullTransport) Close() error                { return nil }

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(nullTransport{}, WithTimeout(200*time.Millisecond), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestWaitForResponseNoError(t *testing.T) {
	s := newTestSession(t)
	s.OnResponse(0, message.IDAssignChannel, []byte{0x00})

	r, err := s.WaitForResponse(message.IDAssignChannel)
	if err != nil {
		t.Fatalf("WaitForResponse() error = %v", err)
	}
	if r.Channel != 0 || r.ID != message.IDAssignChannel {
		t.Errorf("response = %+v", r)
	}
}

func TestWaitForResponseDeviceError(t *testing.T) {
	s := newTestSession(t)
	s.OnResponse(0, message.IDOpenChannel, []byte{byte(message.ChannelInWrongState)})

	_, err := s.WaitForResponse(message.IDOpenChannel)
	var devErr DeviceError
	if !errors.As(err, &devErr) || devErr.Code != message.ChannelInWrongState {
		t.Errorf("WaitForResponse() error = %v, want CHANNEL_IN_WRONG_STATE", err)
	}
}

func TestWaitForResponseSkipsUnrelated(t *testing.T) {
	s := newTestSession(t)
	s.OnResponse(0, message.IDAssignChannel, []byte{0x00})
	s.OnResponse(0, message.IDOpenChannel, []byte{0x00})

	if _, err := s.WaitForResponse(message.IDOpenChannel); err != nil {
		t.Fatalf("WaitForResponse() error = %v", err)
	}
	// The unrelated response must still be claimable.
	if _, err := s.WaitForResponse(message.IDAssignChannel); err != nil {
		t.Errorf("WaitForResponse() error = %v, want retained response", err)
	}
}

func TestWaitForResponseTimeout(t *testing.T) {
	s := newTestSession(t)
	start := time.Now()
	if _, err := s.WaitForResponse(message.IDOpenChannel); !errors.Is(err, ErrTimeout) {
		t.Errorf("WaitForResponse() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("timed out after %v, want the configured timeout", elapsed)
	}
}

func TestWaitForResponseWhileBlocked(t *testing.T) {
	s := newTestSession(t)
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.OnResponse(0, message.IDSetNetworkKey, []byte{0x00})
	}()

	if _, err := s.WaitForResponse(message.IDSetNetworkKey); err != nil {
		t.Errorf("WaitForResponse() error = %v", err)
	}
}

func TestWaitForEventMatchesCode(t *testing.T) {
	s := newTestSession(t)
	s.OnChannelEvent(0, 1, []byte{byte(message.EventTx)})
	s.OnChannelEvent(0, 1, []byte{byte(message.EventTransferTxCompleted)})

	e, err := s.WaitForEvent(message.EventTransferTxCompleted)
	if err != nil {
		t.Fatalf("WaitForEvent() error = %v", err)
	}
	if message.Code(e.Data[0]) != message.EventTransferTxCompleted {
		t.Errorf("event = %+v", e)
	}
}

func TestWaitForEventTransferFailed(t *testing.T) {
	s := newTestSession(t)
	s.OnChannelEvent(0, 1, []byte{byte(message.EventTransferTxFailed)})

	if _, err := s.WaitForEvent(message.EventTransferTxCompleted); !errors.Is(err, ErrTransferFailed) {
		t.Errorf("WaitForEvent() error = %v, want ErrTransferFailed", err)
	}
}

func TestSendAcknowledgedDataRetries(t *testing.T) {
	s := newTestSession(t)

	// First attempt fails, second completes.
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.OnChannelEvent(0, 1, []byte{byte(message.EventTransferTxFailed)})
		time.Sleep(10 * time.Millisecond)
		s.OnChannelEvent(0, 1, []byte{byte(message.EventTransferTxCompleted)})
	}()

	if err := s.SendAcknowledgedData(0, []byte{1, 2, 3}); err != nil {
		t.Errorf("SendAcknowledgedData() error = %v", err)
	}
	if got := s.Engine().QueuedFrames(); got != 2 {
		t.Errorf("QueuedFrames() = %d, want both attempts queued", got)
	}
}

func TestSendBurstTransferWaitsForCompletion(t *testing.T) {
	s := newTestSession(t)
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.OnChannelEvent(0, 1, []byte{byte(message.EventTransferTxStart)})
		s.OnChannelEvent(0, 1, []byte{byte(message.EventTransferTxCompleted)})
	}()

	if err := s.SendBurstTransfer(0, [][]byte{{1}, {2}}); err != nil {
		t.Errorf("SendBurstTransfer() error = %v", err)
	}
}

func TestNextEvent(t *testing.T) {
	s := newTestSession(t)
	s.OnChannelEvent(4, message.EventRxBroadcast, []byte{9, 9})

	e, err := s.NextEvent()
	if err != nil {
		t.Fatalf("NextEvent() error = %v", err)
	}
	if e.Channel != 4 || e.Code != message.EventRxBroadcast || !bytes.Equal(e.Data, []byte{9, 9}) {
		t.Errorf("event = %+v", e)
	}
}

func TestDeviceErrorString(t *testing.T) {
	err := DeviceError{Code: message.ChannelNotOpened}
	want := "device responded with error 22:CHANNEL_NOT_OPENED"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
