// Package message implements the wire envelope model: tagged message
// kinds, field-assertion helpers, and the single typed parse error the
// core uses for every structural or authorization failure.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the four message shapes the bridge understands.
type Kind string

const (
	Registration Kind = "registration"
	APICall      Kind = "api_call"
	Operation    Kind = "operation"
	Disconnect   Kind = "disconnect"
)

// InvalidMessageError is raised for every structural or authorization
// failure of an envelope. Reason names the offending field or check in
// a human-legible way; callers match substrings of it (e.g. "secret",
// "message_type") rather than a machine code, mirroring the source's
// own exception-message-as-contract style.
type InvalidMessageError struct {
	Reason string
}

func (e *InvalidMessageError) Error() string { return e.Reason }

func invalid(format string, args ...any) *InvalidMessageError {
	return &InvalidMessageError{Reason: fmt.Sprintf(format, args...)}
}

// Envelope is a parsed message: its discriminator, its decoded body
// (nil for Disconnect), and — for every kind but Registration — the
// client's claimed ID and secret.
type Envelope struct {
	Kind        Kind
	Message     map[string]any
	ClientID    int64
	HasClientID bool
	Secret      string
}

// ParseEnvelope decodes raw as a JSON object and enforces the basic
// envelope shape from spec §4.2:
//   - the envelope is a JSON object
//   - message_type is a string naming one of the four kinds (case-insensitive)
//   - message is an object, for every kind but disconnect
//   - client_id is an integer and secret is a string, for every kind but registration
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, invalid("the given message is not a JSON object: %v", err)
	}

	rawType, err := RequireString(top, "message_type")
	if err != nil {
		return nil, err
	}
	kind, err := kindFromString(rawType)
	if err != nil {
		return nil, err
	}

	env := &Envelope{Kind: kind}

	if kind != Disconnect {
		body, err := RequireObject(top, "message")
		if err != nil {
			return nil, err
		}
		env.Message = body
	}

	if kind != Registration {
		id, err := RequireInt(top, "client_id")
		if err != nil {
			return nil, err
		}
		secret, err := RequireString(top, "secret")
		if err != nil {
			return nil, err
		}
		env.ClientID = id
		env.HasClientID = true
		env.Secret = secret
	}

	return env, nil
}

func kindFromString(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case string(Registration):
		return Registration, nil
	case string(APICall):
		return APICall, nil
	case string(Operation):
		return Operation, nil
	case string(Disconnect):
		return Disconnect, nil
	default:
		return "", invalid("the given message_type %q is unknown", s)
	}
}

// ClientIDFromRaw extracts a top-level client_id from an envelope that
// otherwise failed to parse, so the broker can still route an error
// reply to a known client. Returns ok=false if absent or not an
// integer.
func ClientIDFromRaw(raw []byte) (id int64, ok bool) {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return 0, false
	}
	v, present := top["client_id"]
	if !present {
		return 0, false
	}
	n, isNumber := v.(float64)
	if !isNumber {
		return 0, false
	}
	return int64(n), true
}
