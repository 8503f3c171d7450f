package transport

import (
	"os"
	"time"
)

// FileTransport replays a raw capture of stick traffic from a file, pacing
// reads so downstream behaves roughly as it would against real hardware.
// Writes are discarded. Useful for offline debugging of the decode path.
type FileTransport struct {
	readFile    *os.File
	readSize    int
	timeBetween time.Duration
}

func NewFileTransport(file string, readSize int, timeBetween time.Duration) (*FileTransport, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	return &FileTransport{
		readFile:    f,
		readSize:    readSize,
		timeBetween: timeBetween,
	}, nil
}

func (f *FileTransport) Read(p []byte) (int, error) {
	time.Sleep(f.timeBetween)
	if len(p) > f.readSize {
		p = p[:f.readSize]
	}
	return f.readFile.Read(p)
}

func (f *FileTransport) Write(p []byte) (int, error) {
	return len(p), nil
}

func (f *FileTransport) Close() error {
	return f.readFile.Close()
}
