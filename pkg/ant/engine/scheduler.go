package engine

import (
	"sync"

	"github.com/openant/ant/pkg/ant/message"
)

// scheduler holds outgoing frames awaiting a broadcast timeslot. Any caller
// may enqueue; only the read loop drains, triggered by inbound broadcast
// frames.
type scheduler struct {
	mu    sync.Mutex
	queue []message.Frame
}

func (s *scheduler) enqueue(frame message.Frame) {
	s.mu.Lock()
	s.queue = append(s.queue, frame)
	s.mu.Unlock()
}

// drain writes queued frames for one timeslot. The queue lock is taken
// non-blocking: if an enqueueing caller holds it the drain is skipped and
// retried on the next broadcast frame, so the read loop never stalls.
//
// One ordinary frame is written per slot, but a queued burst sequence is
// written through in one shot: non-terminal burst packets do not end the
// slot, the terminal packet (or any non-burst frame) does.
func (s *scheduler) drain(write func(message.Frame) error) (int, bool, error) {
	if !s.mu.TryLock() {
		return 0, false, nil
	}
	defer s.mu.Unlock()

	written := 0
	for len(s.queue) > 0 {
		frame := s.queue[0]
		s.queue = s.queue[1:]
		if err := write(frame); err != nil {
			return written, true, err
		}
		written++
		if frame.ID != message.IDBurstTransferData ||
			len(frame.Payload) == 0 ||
			frame.Payload[0]&burstTerminalByte != 0 {
			break
		}
	}
	return written, true, nil
}

func (s *scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
