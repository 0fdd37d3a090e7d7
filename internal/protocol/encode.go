package protocol

import (
	"encoding/json"
	"fmt"
)

// wireEnvelope fixes the field layout of the serialized form. Command is
// a pointer so pure responses carry an explicit null, and Message is
// always present, defaulting to an empty mapping.
type wireEnvelope struct {
	Type       Kind     `json:"type"`
	Command    *string  `json:"command"`
	Message    any      `json:"message"`
	Attributes []string `json:"attributes,omitempty"`
}

// Marshal serializes e. Byte-slice body values become base64 text via
// the standard JSON encoding of []byte.
func Marshal(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrEncode)
	}
	if !e.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q outside the tag set", ErrEncode, string(e.Kind))
	}
	w := wireEnvelope{
		Type:       e.Kind,
		Message:    e.Body,
		Attributes: e.Attributes,
	}
	if e.Command != "" {
		cmd := e.Command
		w.Command = &cmd
	}
	if w.Message == nil {
		w.Message = map[string]any{}
	}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return out, nil
}

// Builder assembles one envelope at a time. Marshal serializes and
// resets it, so a single builder can be reused across requests.
type Builder struct {
	env Envelope
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Prepare sets the envelope's kind, command and body, replacing any
// prior state.
func (b *Builder) Prepare(kind Kind, command string, body any) *Builder {
	b.env = Envelope{Kind: kind, Command: command, Body: body}
	return b
}

// Attr adds one key to the body mapping. A non-map body is replaced by
// a fresh mapping first.
func (b *Builder) Attr(key string, value any) *Builder {
	m, ok := b.env.Body.(map[string]any)
	if !ok {
		m = map[string]any{}
		b.env.Body = m
	}
	m[key] = value
	return b
}

// AttributeKeys declares the ordered body keys carried alongside the
// body for receivers with no schema knowledge.
func (b *Builder) AttributeKeys(keys ...string) *Builder {
	b.env.Attributes = keys
	return b
}

// Envelope returns a copy of the pending envelope without resetting.
func (b *Builder) Envelope() Envelope {
	return b.env
}

// Marshal serializes the pending envelope and clears the builder.
func (b *Builder) Marshal() ([]byte, error) {
	env := b.env
	b.env = Envelope{}
	return Marshal(&env)
}
