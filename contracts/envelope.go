package contracts

import (
	"encoding/json"
	"fmt"
)

// QueueEnvelope is the body of a message routed through the direct exchange
type QueueEnvelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// LogEnvelope is the value of a record written to a service topic.
// UniqueID is the correlation id; a consumer replies only when it is set.
type LogEnvelope struct {
	UniqueID string          `json:"uniqueId,omitempty"`
	Event    EventName       `json:"event"`
	Data     json.RawMessage `json:"data"`
}

// Reply is what a correlation waiter receives: the replier's payload under "message"
type Reply struct {
	Message json.RawMessage `json:"message"`
}

// Decode unmarshals the reply payload into v
func (r Reply) Decode(v any) error {
	if len(r.Message) == 0 {
		return fmt.Errorf("decode reply: empty message")
	}
	return json.Unmarshal(r.Message, v)
}

// NewQueueEnvelope marshals payload into a queue envelope
func NewQueueEnvelope(event EventName, payload any) (QueueEnvelope, error) {
	if err := event.Validate(); err != nil {
		return QueueEnvelope{}, err
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return QueueEnvelope{}, err
	}
	return QueueEnvelope{Event: event, Data: data}, nil
}

// NewLogEnvelope marshals payload into a log envelope tagged with id
func NewLogEnvelope(id string, event EventName, payload any) (LogEnvelope, error) {
	if err := event.Validate(); err != nil {
		return LogEnvelope{}, err
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return LogEnvelope{}, err
	}
	return LogEnvelope{UniqueID: id, Event: event, Data: data}, nil
}

// DecodeQueueEnvelope parses a delivery body
func DecodeQueueEnvelope(body []byte) (QueueEnvelope, error) {
	var env QueueEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("decode queue envelope: %w", err)
	}
	if env.Event == "" {
		return env, ErrEmptyEnvelope
	}
	return env, nil
}

// DecodeLogEnvelope parses a record value
func DecodeLogEnvelope(value []byte) (LogEnvelope, error) {
	var env LogEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return env, fmt.Errorf("decode log envelope: %w", err)
	}
	if env.Event == "" {
		return env, ErrEmptyEnvelope
	}
	return env, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage("{}"), nil
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("marshal payload: invalid JSON")
		}
		return json.RawMessage(p), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}
