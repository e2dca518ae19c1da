package arrow

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ErrNoRecords is returned when an IPC stream carries a schema but no batch.
var ErrNoRecords = errors.New("no records in IPC data")

// IPCWriter writes Arrow RecordBatches to the IPC stream format.
type IPCWriter struct {
	allocator memory.Allocator
}

// NewIPCWriter creates a new IPCWriter.
func NewIPCWriter() *IPCWriter {
	return &IPCWriter{
		allocator: memory.DefaultAllocator,
	}
}

// WriteTo streams a single record to w.
func (w *IPCWriter) WriteTo(out io.Writer, record arrow.Record) error {
	writer := ipc.NewWriter(out, ipc.WithSchema(record.Schema()), ipc.WithAllocator(w.allocator))

	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// SerializeToIPC serializes an Arrow Record to IPC bytes.
func (w *IPCWriter) SerializeToIPC(record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.WriteTo(&buf, record); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeFromIPC reads the first Arrow Record of an IPC stream.
// The caller owns the returned record and must Release it.
func (w *IPCWriter) DeserializeFromIPC(data []byte) (arrow.Record, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(w.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if reader.Err() != nil {
			return nil, reader.Err()
		}
		return nil, ErrNoRecords
	}

	record := reader.Record()
	record.Retain()

	return record, nil
}
