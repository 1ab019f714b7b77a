package natsbus

import (
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/cloudevents/sdk-go/v2/types"
	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
)

// CloudEvents extension attribute names. CloudEvents requires extension
// names to be lowercase alphanumeric, hence no separators.
const (
	extRequestID = "requestid"
	extReplyTo   = "replyto"
)

// encode renders an envelope as a structured-mode CloudEvents JSON document.
// The event type is the contract kind, so a subject's traffic is uniform.
func encode(source string, env bus.Envelope) ([]byte, error) {
	payload, err := contracts.Encode(env.Message)
	if err != nil {
		return nil, err
	}

	e := cloudevents.NewEvent()
	e.SetID(env.ID.String())
	e.SetType(env.Kind())
	e.SetSource(source)
	e.SetTime(time.Now().UTC())
	if env.RequestID != uuid.Nil {
		e.SetExtension(extRequestID, env.RequestID.String())
	}
	if env.ReplyTo != "" {
		e.SetExtension(extReplyTo, env.ReplyTo)
	}
	if err := e.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return nil, fmt.Errorf("natsbus: set event data: %w", err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("natsbus: marshal event: %w", err)
	}
	return data, nil
}

// decode parses a CloudEvents JSON document back into an envelope. Unknown
// contract kinds surface as errors so the subscriber can drop the message.
func decode(data []byte) (bus.Envelope, error) {
	var e event.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return bus.Envelope{}, fmt.Errorf("natsbus: unmarshal event: %w", err)
	}

	msg, err := contracts.Decode(e.Type(), e.Data())
	if err != nil {
		return bus.Envelope{}, err
	}

	env := bus.Envelope{Message: msg}
	if id, err := uuid.Parse(e.ID()); err == nil {
		env.ID = id
	}
	exts := e.Extensions()
	if raw, ok := exts[extRequestID]; ok {
		if s, err := types.ToString(raw); err == nil {
			if rid, err := uuid.Parse(s); err == nil {
				env.RequestID = rid
			}
		}
	}
	if raw, ok := exts[extReplyTo]; ok {
		if s, err := types.ToString(raw); err == nil {
			env.ReplyTo = s
		}
	}
	return env, nil
}
