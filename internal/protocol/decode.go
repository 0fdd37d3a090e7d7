package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Unmarshal parses one serialized envelope. Tag recognition is applied
// recursively into every mapping and list value, and string values that
// look like nested JSON documents are re-parsed to unwrap payloads that
// were pre-serialized before being embedded. A string that fails the
// re-parse is kept as-is and logged.
func Unmarshal(data []byte) (*Envelope, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	kindRaw, ok := raw["type"]
	if !ok {
		return nil, fmt.Errorf("%w: missing type", ErrDecode)
	}
	kindVal, err := decodeValue(kindRaw)
	if err != nil {
		return nil, err
	}
	kind, ok := kindVal.(Kind)
	if !ok {
		return nil, fmt.Errorf("%w: type is not a protocol tag", ErrDecode)
	}

	env := &Envelope{Kind: kind}

	if cmd, ok := raw["command"].(string); ok {
		env.Command = cmd
	}

	body, err := decodeValue(raw["message"])
	if err != nil {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	env.Body = body

	if attrs, ok := raw["attributes"].([]any); ok {
		keys := make([]string, 0, len(attrs))
		for _, a := range attrs {
			if s, ok := a.(string); ok {
				keys = append(keys, s)
			}
		}
		env.Attributes = keys
	}

	return env, nil
}

func decodeValue(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if tag, recognized, err := decodeTag(t); recognized {
			return tag, err
		}
		for key, val := range t {
			decoded, err := decodeValue(val)
			if err != nil {
				return nil, err
			}
			t[key] = decoded
		}
		return t, nil
	case []any:
		for i, val := range t {
			decoded, err := decodeValue(val)
			if err != nil {
				return nil, err
			}
			t[i] = decoded
		}
		return t, nil
	case string:
		return decodeString(t)
	default:
		return v, nil
	}
}

// decodeTag recognizes the one-entry wrapper objects that carry protocol
// tags. A wrapper key with a value outside the closed set is a decode
// failure, not payload data.
func decodeTag(m map[string]any) (any, bool, error) {
	if len(m) != 1 {
		return nil, false, nil
	}
	for _, key := range []string{requestTagKey, responseTagKey, statusTagKey} {
		raw, ok := m[key]
		if !ok {
			continue
		}
		v, ok := raw.(string)
		if !ok {
			return nil, true, fmt.Errorf("%w: non-string value in %s wrapper", ErrDecode, key)
		}
		switch key {
		case requestTagKey:
			k, err := requestKind(v)
			return k, true, err
		case responseTagKey:
			k, err := responseKind(v)
			return k, true, err
		default:
			s, err := statusTag(v)
			return s, true, err
		}
	}
	return nil, false, nil
}

// decodeString attempts to unwrap a string that is itself a serialized
// JSON document. Only strings shaped like containers are tried, so
// ordinary payload text and base64 file data pass through untouched.
func decodeString(s string) (any, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 {
		return s, nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return s, nil
	}
	var nested any
	if err := json.Unmarshal([]byte(trimmed), &nested); err != nil {
		log.Debug().Err(err).Msg("embedded payload re-parse failed, keeping string")
		return s, nil
	}
	decoded, err := decodeValue(nested)
	if err != nil {
		// The nested document parsed but carries a malformed tag; the
		// original string is the safer value to hand the caller.
		log.Debug().Err(err).Msg("embedded payload tag decode failed, keeping string")
		return s, nil
	}
	return decoded, nil
}
