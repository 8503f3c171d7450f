package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/openant/ant/pkg/ant/message"
	"github.com/openant/ant/pkg/ant/transport"
	"github.com/rs/zerolog"
)

const readChunkSize = 4096

// assembler accumulates transport reads and carves complete frames out of
// the stream. It owns the buffer exclusively; only the engine's read loop
// calls into it.
type assembler struct {
	tr     transport.Transport
	buf    []byte
	logger zerolog.Logger
	stats  *counters
}

func newAssembler(tr transport.Transport, logger zerolog.Logger, stats *counters) *assembler {
	return &assembler{
		tr:     tr,
		buf:    make([]byte, 0, readChunkSize),
		logger: logger,
		stats:  stats,
	}
}

// next returns the next fully validated frame, reading from the transport as
// needed. Bytes are only ever consumed into returned frames or dropped during
// resynchronization after a corrupt frame. A zero-byte read is retried.
func (a *assembler) next(ctx context.Context) (message.Frame, error) {
	chunk := make([]byte, readChunkSize)
	for {
		if frame, ok := a.extract(); ok {
			return frame, nil
		}
		if err := ctx.Err(); err != nil {
			return message.Frame{}, err
		}
		n, err := a.tr.Read(chunk)
		if err != nil {
			return message.Frame{}, fmt.Errorf("transport read: %w", err)
		}
		a.buf = append(a.buf, chunk[:n]...)
	}
}

// extract attempts to carve one frame off the front of the buffer. A decode
// failure discards bytes up to the next plausible sync byte so a single
// corrupt byte cannot stall reception.
func (a *assembler) extract() (message.Frame, bool) {
	for {
		if len(a.buf) > 0 && a.buf[0] != message.SyncByte {
			a.resync(1)
			continue
		}
		if len(a.buf) < message.Overhead {
			return message.Frame{}, false
		}
		need := int(a.buf[1]) + message.Overhead
		if len(a.buf) < need {
			return message.Frame{}, false
		}
		frame, err := message.Decode(a.buf[:need])
		if err != nil {
			a.logger.Warn().Err(err).Msg("dropping corrupt frame")
			a.resync(1)
			continue
		}
		a.buf = a.buf[need:]
		return frame, true
	}
}

// resync drops skip bytes and then everything up to the next sync byte.
func (a *assembler) resync(skip int) {
	a.buf = a.buf[skip:]
	if i := bytes.IndexByte(a.buf, message.SyncByte); i >= 0 {
		a.buf = a.buf[i:]
	} else {
		a.buf = a.buf[:0]
	}
	a.stats.resyncs.inc()
}
