// Package contracts defines every message kind exchanged between the
// platform's services: saga commands and events, request/reply pairs, and
// the fault envelope.
//
// Each contract is a plain struct carrying its correlation identifiers as
// named fields. The set of kinds is a closed, explicit union: consumers
// switch on the concrete type, and the registry below lets transport
// adapters decode a wire payload back into the right Go type without
// reflection over arbitrary structs.
package contracts

import (
	"encoding/json"
	"fmt"
)

// Message is implemented by every contract in this package.
// Kind returns the stable wire name of the message, which is also used as
// the topic (broker subject) the message is published on.
type Message interface {
	Kind() string
}

// registry maps a kind to a factory producing a pointer to the zero value
// of the matching contract, ready to be unmarshalled into.
var registry = map[string]func() Message{}

func register(kind string, factory func() Message) {
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("contracts: duplicate kind %q", kind))
	}
	registry[kind] = factory
}

// Decode unmarshals a JSON payload into the contract type registered for
// kind. It returns an error for unknown kinds so transport adapters can
// drop (rather than misroute) messages from newer or foreign producers.
func Decode(kind string, data []byte) (Message, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("contracts: unknown kind %q", kind)
	}
	msg := factory()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("contracts: decode %q: %w", kind, err)
	}
	return msg, nil
}

// Encode marshals a contract to its JSON wire form.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("contracts: encode %q: %w", msg.Kind(), err)
	}
	return data, nil
}
