package data

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Converter handles journal to Arrow conversion.
type Converter struct {
	allocator memory.Allocator
	schema    *arrow.Schema
}

// NewConverter creates a new Converter with the default memory allocator.
func NewConverter() *Converter {
	return &Converter{
		allocator: memory.DefaultAllocator,
		schema:    ResolutionSchema(),
	}
}

// ResolutionsToArrowBatch converts journal entries to an Arrow RecordBatch.
// An empty slice gives a batch with zero rows.
func (c *Converter) ResolutionsToArrowBatch(entries []Resolution) arrow.Record {
	builder := array.NewRecordBuilder(c.allocator, c.schema)
	defer builder.Release()

	correlationBuilder := builder.Field(0).(*array.StringBuilder)
	requesterBuilder := builder.Field(1).(*array.StringBuilder)
	repliesBuilder := builder.Field(2).(*array.Int64Builder)
	winnerBuilder := builder.Field(3).(*array.Int64Builder)
	outcomeBuilder := builder.Field(4).(*array.StringBuilder)
	latencyBuilder := builder.Field(5).(*array.Float64Builder)
	resolvedBuilder := builder.Field(6).(*array.Float64Builder)

	for _, e := range entries {
		correlationBuilder.Append(e.CorrelationID)
		requesterBuilder.Append(e.Requester)
		repliesBuilder.Append(int64(e.Replies))
		winnerBuilder.Append(int64(e.WinnerLength))
		outcomeBuilder.Append(e.Outcome)
		latencyBuilder.Append(e.LatencyMs)
		resolvedBuilder.Append(e.ResolvedAt)
	}

	return builder.NewRecord()
}

// ArrowBatchToResolutions converts an Arrow RecordBatch back to journal entries.
func (c *Converter) ArrowBatchToResolutions(record arrow.Record) ([]Resolution, error) {
	if record == nil {
		return nil, errors.New("record is nil")
	}
	if err := ValidateSchema(record, c.schema); err != nil {
		return nil, err
	}

	correlationCol := record.Column(0).(*array.String)
	requesterCol := record.Column(1).(*array.String)
	repliesCol := record.Column(2).(*array.Int64)
	winnerCol := record.Column(3).(*array.Int64)
	outcomeCol := record.Column(4).(*array.String)
	latencyCol := record.Column(5).(*array.Float64)
	resolvedCol := record.Column(6).(*array.Float64)

	entries := make([]Resolution, record.NumRows())
	for i := range entries {
		entries[i] = Resolution{
			CorrelationID: correlationCol.Value(i),
			Requester:     requesterCol.Value(i),
			Replies:       int(repliesCol.Value(i)),
			WinnerLength:  int(winnerCol.Value(i)),
			Outcome:       outcomeCol.Value(i),
			LatencyMs:     latencyCol.Value(i),
			ResolvedAt:    resolvedCol.Value(i),
		}
	}
	return entries, nil
}

// ArrowBatchToJSON converts an Arrow RecordBatch of journal entries to JSON bytes.
func (c *Converter) ArrowBatchToJSON(record arrow.Record) ([]byte, error) {
	if record == nil || record.NumRows() == 0 {
		return []byte("[]"), nil
	}

	entries, err := c.ArrowBatchToResolutions(record)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entries)
}

// ValidateSchema checks if a record matches the expected schema.
func ValidateSchema(record arrow.Record, expected *arrow.Schema) error {
	if record == nil {
		return errors.New("record is nil")
	}

	actual := record.Schema()
	if actual.NumFields() != expected.NumFields() {
		return fmt.Errorf("field count mismatch: got %d, expected %d",
			actual.NumFields(), expected.NumFields())
	}

	for i := 0; i < actual.NumFields(); i++ {
		actualField := actual.Field(i)
		expectedField := expected.Field(i)

		if actualField.Name != expectedField.Name {
			return fmt.Errorf("field %d name mismatch: got %s, expected %s",
				i, actualField.Name, expectedField.Name)
		}

		if !arrow.TypeEqual(actualField.Type, expectedField.Type) {
			return fmt.Errorf("field %s type mismatch: got %s, expected %s",
				actualField.Name, actualField.Type, expectedField.Type)
		}
	}

	return nil
}
