package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType is the normalized kind of an inbound gateway event.
type EventType string

const (
	EventChargeSuccess EventType = "charge.success"
	EventChargeRefund  EventType = "charge.refund"
	EventUnknown       EventType = "unknown"
)

// Event is the decoded webhook envelope. Raw keeps the full data
// object for the payment snapshot.
type Event struct {
	Type        EventType
	RawType     string
	Reference   string
	AmountMinor int64
	Raw         map[string]any
}

// ParseEvent decodes the gateway envelope. Unrecognized event names
// come back as EventUnknown rather than an error; only a malformed
// body fails.
func ParseEvent(body []byte) (*Event, error) {
	var envelope struct {
		Event string `json:"event"`
		Data  struct {
			Reference string  `json:"reference"`
			Amount    float64 `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if envelope.Event == "" {
		return nil, fmt.Errorf("webhook payload missing event field")
	}

	var raw struct {
		Data map[string]any `json:"data"`
	}
	_ = json.Unmarshal(body, &raw)

	event := &Event{
		RawType:     envelope.Event,
		Reference:   envelope.Data.Reference,
		AmountMinor: int64(envelope.Data.Amount),
		Raw:         raw.Data,
	}

	switch {
	case envelope.Event == "charge.success":
		event.Type = EventChargeSuccess
	case strings.HasPrefix(envelope.Event, "charge.refund") || envelope.Event == "refund.processed":
		// Gateways disagree on the exact name: charge.refund,
		// charge.refunded and refund.processed all mean the same.
		event.Type = EventChargeRefund
	default:
		event.Type = EventUnknown
	}

	return event, nil
}
