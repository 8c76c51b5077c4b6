package syncreq

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/naitive/backend/internal/domain/lender"
)

type EventType string

const (
	EventLenderCreated EventType = "lender.created"
	EventLenderUpdated EventType = "lender.updated"
	EventLendersSync   EventType = "lenders.sync"
)

var (
	ErrInvalidEnvelope = errors.New("invalid_envelope")
	ErrUnknownEvent    = errors.New("unknown_event")
)

// Envelope is the webhook body sent by Flex.
type Envelope struct {
	EventID string          `json:"event_id"`
	Event   EventType       `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Item is one decoded payload of a batch. Err is set when the payload could
// not be decoded; such items are reported and skipped.
type Item struct {
	Payload lender.Payload
	Err     error
}

type Batch []Item

func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return &env, nil
}

// Batch normalizes single-lender and bulk events to a list of items.
func (e *Envelope) Batch() (Batch, error) {
	switch e.Event {
	case EventLenderCreated, EventLenderUpdated:
		if len(e.Data) == 0 || string(e.Data) == "null" {
			return nil, nil
		}
		return Batch{decodeItem(e.Data)}, nil
	case EventLendersSync:
		var body struct {
			Lenders []json.RawMessage `json:"lenders"`
		}
		if len(e.Data) > 0 {
			if err := json.Unmarshal(e.Data, &body); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
			}
		}
		out := make(Batch, 0, len(body.Lenders))
		for _, raw := range body.Lenders {
			out = append(out, decodeItem(raw))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Event)
	}
}

func decodeItem(raw json.RawMessage) Item {
	p, err := lender.DecodePayload(raw)
	return Item{Payload: p, Err: err}
}
