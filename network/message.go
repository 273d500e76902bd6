package network

import (
	"github.com/google/uuid"
)

// Kind identifies a wire message type.
type Kind uint8

const (
	KindTransaction Kind = iota
	KindBlockHeader
	KindPrevote
	KindPrecommit
	KindRequestBlock
)

func (k Kind) String() string {
	switch k {
	case KindTransaction:
		return "transaction"
	case KindBlockHeader:
		return "block_header"
	case KindPrevote:
		return "prevote"
	case KindPrecommit:
		return "precommit"
	case KindRequestBlock:
		return "request_block"
	}
	return "unknown"
}

// Message is the transport envelope. ID is the sole dedupe key at receivers:
// two independently created messages are distinct even when their payloads
// are identical, while simulator duplicates of one message share an ID.
// Height is a hint for the event log, zero when the payload has no height.
type Message struct {
	Kind      Kind
	Sender    string
	ID        string
	Timestamp float64
	Height    uint64
	Payload   []byte
}

// NewMessage wraps a payload in a fresh envelope. timestamp is virtual time.
func NewMessage(kind Kind, sender string, timestamp float64, height uint64, payload []byte) *Message {
	return &Message{
		Kind:      kind,
		Sender:    sender,
		ID:        uuid.New().String(),
		Timestamp: timestamp,
		Height:    height,
		Payload:   payload,
	}
}
