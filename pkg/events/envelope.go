// Package events defines the wire contract for the event bus: the envelope
// shape, the canonical/alias topic registry, and payload validation
// (spec.md §4.1, C1). Grounded in the teacher's system/events package, which
// keeps a registry of EventHandler/EventFilter pairs and a Request struct
// carrying job-scoped metadata; here that becomes a schema registry plus a
// generic Envelope.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Metadata is broker-injected and must never be depended on by business
// logic (spec.md §3: "Business logic must not depend on _metadata").
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	Topic         string    `json:"topic"`
}

// Envelope is the transmitted shape of every event on the bus: the required
// event_id/job_id, the topic-specific payload, and broker metadata.
type Envelope struct {
	EventID  string          `json:"event_id"`
	JobID    string          `json:"job_id"`
	Payload  json.RawMessage `json:"payload"`
	Metadata Metadata        `json:"_metadata"`
}

// NewEventID generates a UUIDv4 suitable for event_id/job_id/match_id.
func NewEventID() string {
	return uuid.NewString()
}

// NewEnvelope builds an Envelope for topic with payload marshaled to JSON.
// The caller-supplied jobID and an auto-generated event_id are both injected
// into the payload if it is a JSON object and those fields are absent, so
// downstream consumers can always find job_id/event_id at the payload level
// as the schema table in spec.md §6.1 requires, independent of the envelope
// wrapper.
func NewEnvelope(topic, jobID string, payload any) (*Envelope, error) {
	merged, err := mergeEnvelopeFields(payload, jobID)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		EventID: merged.eventID,
		JobID:   jobID,
		Payload: merged.raw,
		Metadata: Metadata{
			Timestamp:     time.Now().UTC(),
			CorrelationID: uuid.NewString(),
			Topic:         topic,
		},
	}, nil
}

type mergedPayload struct {
	raw     json.RawMessage
	eventID string
}

func mergeEnvelopeFields(payload any, jobID string) (mergedPayload, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return mergedPayload{}, err
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		// Non-object payloads are passed through unmodified; schema
		// validation will reject them if the topic requires object fields.
		return mergedPayload{raw: raw}, nil
	}

	eventID, _ := asMap["event_id"].(string)
	if eventID == "" {
		eventID = uuid.NewString()
		asMap["event_id"] = eventID
	}
	if jobID != "" {
		if _, ok := asMap["job_id"]; !ok {
			asMap["job_id"] = jobID
		}
	}

	merged, err := json.Marshal(asMap)
	if err != nil {
		return mergedPayload{}, err
	}
	return mergedPayload{raw: merged, eventID: eventID}, nil
}
