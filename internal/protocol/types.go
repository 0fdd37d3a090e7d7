package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind is the directional tag of an envelope: one of the request verbs
// or one of the response statuses. An envelope carries exactly one.
type Kind string

const (
	Get    Kind = "get"
	Post   Kind = "post"
	Put    Kind = "put"
	Delete Kind = "delete"

	OK  Kind = "ok"
	Err Kind = "error"
)

// Wrapper keys distinguish protocol tags from ordinary payload strings
// on the wire. Bodies may legitimately contain the literal text "ok".
const (
	requestTagKey  = "__REQUEST__"
	responseTagKey = "__RESPONSE__"
	statusTagKey   = "__STATUS__"
)

// IsRequest reports whether k is one of the request verbs.
func (k Kind) IsRequest() bool {
	switch k {
	case Get, Post, Put, Delete:
		return true
	}
	return false
}

// IsResponse reports whether k is one of the response statuses.
func (k Kind) IsResponse() bool {
	return k == OK || k == Err
}

// Valid reports whether k belongs to the closed tag set.
func (k Kind) Valid() bool {
	return k.IsRequest() || k.IsResponse()
}

// MarshalJSON emits the tagged wrapper form, e.g. {"__REQUEST__":"get"}.
func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: kind %q outside the tag set", ErrEncode, string(k))
	}
	key := requestTagKey
	if k.IsResponse() {
		key = responseTagKey
	}
	return json.Marshal(map[string]string{key: string(k)})
}

func requestKind(v string) (Kind, error) {
	k := Kind(v)
	if !k.IsRequest() {
		return "", fmt.Errorf("%w: unknown request tag %q", ErrDecode, v)
	}
	return k, nil
}

func responseKind(v string) (Kind, error) {
	k := Kind(v)
	if !k.IsResponse() {
		return "", fmt.Errorf("%w: unknown response tag %q", ErrDecode, v)
	}
	return k, nil
}

// Status is the outcome tag carried in response bodies.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusInvalidRequest   Status = "invalid_request"
	StatusEmptyParameter   Status = "empty_parameter"
	StatusInvalidParameter Status = "invalid_parameter"
	StatusUploadFailed     Status = "upload_failed"
)

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusInvalidRequest, StatusEmptyParameter,
		StatusInvalidParameter, StatusUploadFailed:
		return true
	}
	return false
}

// MarshalJSON emits the tagged wrapper form, e.g. {"__STATUS__":"success"}.
func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: status %q outside the tag set", ErrEncode, string(s))
	}
	return json.Marshal(map[string]string{statusTagKey: string(s)})
}

func statusTag(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status tag %q", ErrDecode, v)
	}
	return s, nil
}

// Envelope is the unit of communication. Body holds the command payload:
// a string-keyed map for most commands, but scalars, lists and base64
// file data are all legal. Attributes optionally enumerates the body's
// expected keys for receivers with no prior schema knowledge.
type Envelope struct {
	Kind       Kind
	Command    string
	Body       any
	Attributes []string
}

// BodyMap returns the body as a string-keyed map, or an empty map when
// the body is absent or not a mapping.
func (e *Envelope) BodyMap() map[string]any {
	if m, ok := e.Body.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// BodyString returns the body as a string when it is one.
func (e *Envelope) BodyString() (string, bool) {
	s, ok := e.Body.(string)
	return s, ok
}

// BodyStatus returns the body as a Status when it is one.
func (e *Envelope) BodyStatus() (Status, bool) {
	s, ok := e.Body.(Status)
	return s, ok
}

// Attr returns one value from the body mapping.
func (e *Envelope) Attr(key string) (any, bool) {
	m, ok := e.Body.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// AttrString returns one body value as a string, "" when missing or not
// a string.
func (e *Envelope) AttrString(key string) string {
	v, ok := e.Attr(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
