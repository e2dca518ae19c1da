// Package protocol defines the JSON wire messages exchanged between peers and the relay hub.
//
// This package implements:
//   - Kind: the four message kinds understood by the hub
//   - Message: a decoded message that remembers its original bytes for verbatim relay
//   - Decode/Encode: the wire codec
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxMessageSize is the largest wire message the hub accepts.
const MaxMessageSize = 4 * 1024 * 1024

// Common errors for message decoding
var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownType      = errors.New("unknown message type")
	ErrMessageTooLarge  = errors.New("message too large")
)

// Kind identifies what a message asks of the hub.
type Kind int

const (
	KindUnknown Kind = iota
	GetChainRequest
	GetChainResponse
	NewBlockRequest
	NewBlockAnnouncement
)

// wire names of each kind
const (
	typeGetChainRequest      = "GetLongestChainRequest"
	typeGetChainResponse     = "GetLongestChainResponse"
	typeNewBlockRequest      = "NewBlockRequest"
	typeNewBlockAnnouncement = "NewBlockAnnouncement"
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case GetChainRequest:
		return typeGetChainRequest
	case GetChainResponse:
		return typeGetChainResponse
	case NewBlockRequest:
		return typeNewBlockRequest
	case NewBlockAnnouncement:
		return typeNewBlockAnnouncement
	default:
		return "Unknown"
	}
}

// ParseKind maps a wire type name to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case typeGetChainRequest:
		return GetChainRequest, true
	case typeGetChainResponse:
		return GetChainResponse, true
	case typeNewBlockRequest:
		return NewBlockRequest, true
	case typeNewBlockAnnouncement:
		return NewBlockAnnouncement, true
	}
	return KindUnknown, false
}

// Message is one decoded wire message.
//
// Payload elements are opaque block records; the hub never looks inside them.
type Message struct {
	Kind          Kind
	CorrelationID string
	Payload       []json.RawMessage

	// original encoding, forwarded unchanged when set
	raw []byte
}

type wireMessage struct {
	Type          string            `json:"type"`
	CorrelationID string            `json:"correlationId"`
	Payload       []json.RawMessage `json:"payload"`
}

// Decode parses a wire message. The returned message keeps a copy of data
// so that relaying it does not re-encode it.
func Decode(data []byte) (*Message, error) {
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}

	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	kind, ok := ParseKind(w.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}

	if w.CorrelationID == "" && kind.IsChain() {
		return nil, fmt.Errorf("%w: %s without correlationId", ErrMalformedMessage, kind)
	}

	raw := make([]byte, len(data))
	copy(raw, data)

	return &Message{
		Kind:          kind,
		CorrelationID: w.CorrelationID,
		Payload:       w.Payload,
		raw:           raw,
	}, nil
}

// Encode returns the wire form of the message: the original bytes for a
// decoded message, a fresh encoding otherwise.
func (m *Message) Encode() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}

	payload := m.Payload
	if payload == nil {
		payload = []json.RawMessage{}
	}

	data, err := json.Marshal(wireMessage{
		Type:          m.Kind.String(),
		CorrelationID: m.CorrelationID,
		Payload:       payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// Len is the number of block records in the payload.
func (m *Message) Len() int {
	return len(m.Payload)
}

// IsChain reports whether the kind takes part in a longest chain query.
func (k Kind) IsChain() bool {
	return k == GetChainRequest || k == GetChainResponse
}

// NewChainRequest builds a GetLongestChainRequest.
func NewChainRequest(correlationID string) *Message {
	return &Message{
		Kind:          GetChainRequest,
		CorrelationID: correlationID,
	}
}

// NewChainResponse builds a GetLongestChainResponse carrying the given chain.
func NewChainResponse(correlationID string, chain []json.RawMessage) *Message {
	return &Message{
		Kind:          GetChainResponse,
		CorrelationID: correlationID,
		Payload:       chain,
	}
}

// NewBlockMessage builds a NewBlockRequest or NewBlockAnnouncement carrying one block.
func NewBlockMessage(kind Kind, correlationID string, block json.RawMessage) *Message {
	return &Message{
		Kind:          kind,
		CorrelationID: correlationID,
		Payload:       []json.RawMessage{block},
	}
}
