// Package data provides the resolution journal of the relay hub and its Apache Arrow form.
package data

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// ResolutionSchema returns the Arrow schema for journal entries.
//
// Fields:
//   - correlation_id: string - Correlation id of the answered request
//   - requester: string - Peer handle of the asker
//   - replies: int64 - Number of replies collected
//   - winner_length: int64 - Payload length of the answer sent
//   - outcome: string - complete, timeout, alone or requester_left
//   - latency_ms: float64 - Time from fan-out to answer
//   - resolved_at: float64 - Unix timestamp of the answer
func ResolutionSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "correlation_id", Type: arrow.BinaryTypes.String, Nullable: true},
			{Name: "requester", Type: arrow.BinaryTypes.String, Nullable: true},
			{Name: "replies", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
			{Name: "winner_length", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
			{Name: "outcome", Type: arrow.BinaryTypes.String, Nullable: true},
			{Name: "latency_ms", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
			{Name: "resolved_at", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		},
		nil,
	)
}
