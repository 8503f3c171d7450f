// Package session layers blocking request/response semantics on top of the
// engine: commands that wait for the device's answer, and queued transfers
// that wait for their completion event.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openant/ant/pkg/ant/engine"
	"github.com/openant/ant/pkg/ant/message"
	"github.com/openant/ant/pkg/ant/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout      = 10 * time.Second
	maxTransferAttempts = 3

	// Waiters are woken on every delivery and additionally on a coarse tick
	// so deadline expiry is always observed.
	wakeInterval = 50 * time.Millisecond
)

var (
	ErrTimeout        = errors.New("timed out waiting for message")
	ErrTransferFailed = errors.New("transfer failed")
)

// DeviceError is a non-zero response code returned by the device for a
// command.
type DeviceError struct {
	Code message.Code
}

func (e DeviceError) Error() string {
	return fmt.Sprintf("device responded with error %d:%s", int(e.Code), e.Code)
}

// Response is a delivered response-path message.
type Response struct {
	Channel int
	ID      byte
	Data    []byte
}

// Event is a delivered channel-event-path message.
type Event struct {
	Channel byte
	Code    message.Code
	Data    []byte
}

// Session owns an engine and queues everything the engine delivers, so
// callers can block for the message they are interested in. Messages that
// nobody has claimed yet stay queued.
type Session struct {
	eng     *engine.Engine
	engOpts []engine.Option
	timeout time.Duration
	logger  zerolog.Logger

	respMu    sync.Mutex
	respCond  *sync.Cond
	responses []Response

	eventMu   sync.Mutex
	eventCond *sync.Cond
	events    []Event
}

type Option func(s *Session)

func WithTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		s.timeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithEngineOptions forwards extra options to the engine the session builds.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *Session) {
		s.engOpts = opts
	}
}

// New builds a session and its engine over the claimed transport. Run must
// be started before any waiting command is used.
func New(tr transport.Transport, opts ...Option) (*Session, error) {
	s := &Session{
		timeout: defaultTimeout,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.respCond = sync.NewCond(&s.respMu)
	s.eventCond = sync.NewCond(&s.eventMu)

	engOpts := append([]engine.Option{engine.WithHandler(s), engine.WithLogger(s.logger)}, s.engOpts...)
	eng, err := engine.New(tr, engOpts...)
	if err != nil {
		return nil, err
	}
	s.eng = eng
	return s, nil
}

// Engine exposes the underlying engine for raw sends and stats.
func (s *Session) Engine() *engine.Engine {
	return s.eng
}

func (s *Session) Run(ctx context.Context) error {
	return s.eng.Run(ctx)
}

func (s *Session) Stop() error {
	return s.eng.Stop()
}

// OnResponse implements engine.Handler; it runs on the engine's read loop.
func (s *Session) OnResponse(channel int, id byte, data []byte) {
	s.respMu.Lock()
	s.responses = append(s.responses, Response{Channel: channel, ID: id, Data: data})
	s.respCond.Broadcast()
	s.respMu.Unlock()
}

// OnChannelEvent implements engine.Handler; it runs on the engine's read loop.
func (s *Session) OnChannelEvent(channel byte, code message.Code, data []byte) {
	s.eventMu.Lock()
	s.events = append(s.events, Event{Channel: channel, Code: code, Data: data})
	s.eventCond.Broadcast()
	s.eventMu.Unlock()
}

// wakePeriodically broadcasts on cond until the returned stop func is
// called. sync.Cond has no timed wait; this bounds every Wait below.
func wakePeriodically(cond *sync.Cond) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(wakeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				cond.Broadcast()
			}
		}
	}()
	return func() { close(done) }
}

func (s *Session) waitResponse(match func(Response) bool) (Response, error) {
	s.respMu.Lock()
	defer s.respMu.Unlock()

	deadline := time.Now().Add(s.timeout)
	stop := wakePeriodically(s.respCond)
	defer stop()

	for {
		for i, r := range s.responses {
			if match(r) {
				s.responses = append(s.responses[:i], s.responses[i+1:]...)
				return r, nil
			}
		}
		if !time.Now().Before(deadline) {
			return Response{}, ErrTimeout
		}
		s.respCond.Wait()
	}
}

func (s *Session) waitEvent(match func(Event) bool) (Event, error) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	deadline := time.Now().Add(s.timeout)
	stop := wakePeriodically(s.eventCond)
	defer stop()

	for {
		for i, e := range s.events {
			if match(e) {
				s.events = append(s.events[:i], s.events[i+1:]...)
				return e, nil
			}
			// A failed transfer surfaces as an RF event; turn it into an
			// error for whoever is waiting instead of leaving it queued.
			if e.Code == 1 && len(e.Data) > 0 && message.Code(e.Data[0]) == message.EventTransferTxFailed {
				s.events = append(s.events[:i], s.events[i+1:]...)
				return Event{}, ErrTransferFailed
			}
		}
		if !time.Now().Before(deadline) {
			return Event{}, ErrTimeout
		}
		s.eventCond.Wait()
	}
}

// WaitForResponse blocks until the device answers the identified command and
// converts a non-zero response code into a DeviceError.
func (s *Session) WaitForResponse(id byte) (Response, error) {
	r, err := s.waitResponse(func(r Response) bool { return r.ID == id })
	if err != nil {
		return Response{}, err
	}
	if len(r.Data) > 0 && message.Code(r.Data[0]) != message.ResponseNoError {
		return Response{}, DeviceError{Code: message.Code(r.Data[0])}
	}
	return r, nil
}

// WaitForSpecial blocks until a requested message (channel id, version,
// capabilities, ...) arrives. No response code is interpreted.
func (s *Session) WaitForSpecial(id byte) (Response, error) {
	return s.waitResponse(func(r Response) bool { return r.ID == id })
}

// WaitForEvent blocks until an RF event carrying one of the accepted codes
// arrives.
func (s *Session) WaitForEvent(okCodes ...message.Code) (Event, error) {
	return s.waitEvent(func(e Event) bool {
		if len(e.Data) == 0 {
			return false
		}
		got := message.Code(e.Data[0])
		for _, code := range okCodes {
			if got == code {
				return true
			}
		}
		return false
	})
}

// NextEvent blocks until any channel event arrives.
func (s *Session) NextEvent() (Event, error) {
	return s.waitEvent(func(Event) bool { return true })
}

func (s *Session) ResetSystem() (Response, error) {
	if err := s.eng.ResetSystem(); err != nil {
		return Response{}, err
	}
	return s.WaitForSpecial(message.IDStartupMessage)
}

func (s *Session) AssignChannel(channel, channelType, network byte) error {
	if err := s.eng.AssignChannel(channel, channelType, network); err != nil {
		return err
	}
	_, err := s.WaitForResponse(message.IDAssignChannel)
	return err
}

func (s *Session) UnassignChannel(channel byte) error {
	if err := s.eng.UnassignChannel(channel); err != nil {
		return err
	}
	_, err := s.WaitForResponse(message.IDUnassignChannel)
	return err
}

func (s *Session) OpenChannel(channel byte) error {
	if err := s.eng.OpenChannel(channel); err != nil {
		return err
	}
	_, err := s.WaitForResponse(message.IDOpenChannel)
	return err
}

func (s *Session) CloseChannel(channel byte) error {
	if err := s.eng.CloseChannel(channel); err != nil {
		return err
	}
	_, err := s.WaitForResponse(message.IDCloseChannel)
	return err
}

func (s *Session) SetChannelID(channel byte, deviceNumber uint16, deviceType, transmissionType byte) error {
	if err := s.eng.SetChannelID(channel, deviceNumber, deviceType, transmissionType); err != nil {
		return err
	}
	_, err := s.WaitForResponse(message.IDSetChannelID)
	return err
}

func (s *Session) SetChannelPeriod(channel byte, period uint16) error {
	if err := s.eng.SetChannelPeriod(channel, period); err != nil {
		return err
	}
	_, err := s.WaitForResponse(message.IDSetChannelPeriod)
	return err
}

func (s *Session) SetChannelSearchTimeout(channel, timeout byte) error {
	if err := s.eng.SetChannelSearchTimeout(channel, timeout); err != nil {
		return err
	}
	_, err := s.WaitForResponse(message.IDSetChannelSearchTimeout)
	return err
}

func (s *Session) SetChannelRFFreq(channel, rfFreq byte) error {
	if err := s.eng.SetChannelRFFreq(channel, rfFreq); err != nil {
		return err
	}
	_, err := s.WaitForResponse(message.IDSetChannelRFFreq)
	return err
}

func (s *Session) SetNetworkKey(network byte, key []byte) error {
	if err := s.eng.SetNetworkKey(network, key); err != nil {
		return err
	}
	_, err := s.WaitForResponse(message.IDSetNetworkKey)
	return err
}

func (s *Session) SetSearchWaveform(channel byte, waveform uint16) error {
	if err := s.eng.SetSearchWaveform(channel, waveform); err != nil {
		return err
	}
	_, err := s.WaitForResponse(message.IDSetSearchWaveform)
	return err
}

// RequestMessage asks the device for the identified message and blocks for
// the reply.
func (s *Session) RequestMessage(channel, requestedID byte) (Response, error) {
	if err := s.eng.RequestMessage(channel, requestedID); err != nil {
		return Response{}, err
	}
	return s.WaitForSpecial(requestedID)
}

// SendAcknowledgedData queues the payload and blocks until the device
// reports the transfer completed, retrying a failed transfer a bounded
// number of times.
func (s *Session) SendAcknowledgedData(channel byte, data []byte) error {
	var lastErr error
	for attempt := 0; attempt < maxTransferAttempts; attempt++ {
		if err := s.eng.SendAcknowledgedData(channel, data); err != nil {
			return err
		}
		_, err := s.WaitForEvent(message.EventTransferTxCompleted)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransferFailed) {
			return err
		}
		lastErr = err
		s.logger.Warn().Uint8("channel", channel).Msg("acknowledged transfer failed, retrying")
	}
	return lastErr
}

// SendBurstTransfer queues a whole burst sequence and blocks until the
// device reports it started and completed, retrying failed transfers.
func (s *Session) SendBurstTransfer(channel byte, packets [][]byte) error {
	var lastErr error
	for attempt := 0; attempt < maxTransferAttempts; attempt++ {
		if err := s.eng.SendBurstTransfer(channel, packets); err != nil {
			return err
		}
		err := s.awaitBurstCompletion()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransferFailed) {
			return err
		}
		lastErr = err
		s.logger.Warn().Uint8("channel", channel).Msg("burst transfer failed, retrying")
	}
	return lastErr
}

func (s *Session) awaitBurstCompletion() error {
	if _, err := s.WaitForEvent(message.EventTransferTxStart); err != nil {
		return err
	}
	_, err := s.WaitForEvent(message.EventTransferTxCompleted)
	return err
}
