package util

import "github.com/influxdata/influxdb-client-go/api/write"

// MockWriteAPI is the engine's default metrics sink when no InfluxDB client
// is configured; every write is discarded.
type MockWriteAPI struct{}

func (m *MockWriteAPI) WriteRecord(line string) {}

func (m *MockWriteAPI) WritePoint(point *write.Point) {}

func (m *MockWriteAPI) Flush() {}

func (m *MockWriteAPI) Close() {}

func (m *MockWriteAPI) Errors() <-chan error { return nil }
