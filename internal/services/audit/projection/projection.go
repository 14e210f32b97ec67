// Package projection turns stored audit entries into the replay event
// document sent to delivery channels.
package projection

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/paysignal/internal/services/audit/domain"
)

// TimestampLayout is RFC 3339 with nanosecond precision, always rendered in UTC.
const TimestampLayout = time.RFC3339Nano

// Event is the serialized form of one audit entry. Absent optional fields
// encode as null; metadata always encodes as an object.
type Event struct {
	EventID       string         `json:"event_id" yaml:"event_id"`
	TransactionID string         `json:"payment_transaction_id" yaml:"payment_transaction_id"`
	EventType     string         `json:"event_type" yaml:"event_type"`
	PreviousState *string        `json:"previous_state" yaml:"previous_state"`
	NewState      string         `json:"new_state" yaml:"new_state"`
	Timestamp     string         `json:"timestamp" yaml:"timestamp"`
	SourceService string         `json:"source_service" yaml:"source_service"`
	CorrelationID *string        `json:"correlation_id" yaml:"correlation_id"`
	Metadata      map[string]any `json:"metadata" yaml:"metadata"`
}

// Project maps entry onto its event document. It never fails.
func Project(entry domain.AuditEntry) Event {
	event := Event{
		EventID:       entry.EventID,
		TransactionID: entry.TransactionID,
		EventType:     string(entry.EventType),
		NewState:      string(entry.NewState),
		Timestamp:     entry.Timestamp.UTC().Format(TimestampLayout),
		SourceService: entry.SourceService,
		Metadata:      make(map[string]any, len(entry.Metadata)),
	}
	if entry.PreviousState != nil {
		prev := string(*entry.PreviousState)
		event.PreviousState = &prev
	}
	if entry.CorrelationID != nil {
		id := *entry.CorrelationID
		event.CorrelationID = &id
	}
	for key, value := range entry.Metadata {
		event.Metadata[key] = value
	}
	return event
}

// Encode serializes event as JSON. Map keys are emitted in sorted order, so
// equal events encode to identical bytes.
func Encode(event Event) ([]byte, error) {
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", event.EventID, err)
	}
	return data, nil
}
