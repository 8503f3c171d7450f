// Package transport provides the byte-stream endpoints the protocol engine
// reads frames from and writes frames to.
package transport

// Transport is a claimed endpoint to an ANT device. Read may return fewer
// bytes than requested, including zero; chunks are not aligned to frame
// boundaries. Write must push the whole buffer or fail.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}
