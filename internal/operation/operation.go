// Package operation implements the client-side interpreter for
// multi-step scripts: a sequence of api_call bodies, executed in order,
// with JSON-path substitution of earlier results into later parameters
// (spec §4.7).
package operation

import (
	"fmt"

	"github.com/mumble-voip/mumble-json-bridge/internal/message"
)

// Error is raised for a malformed script, a missing substitution
// target, or an interior call returning an error reply.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func opError(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Script is the parsed form of an operation message's body:
// {"sequence": [call, ...], "save_results": {name: index}?}.
type Script struct {
	Sequence    []map[string]any
	SaveResults map[string]int
}

// ParseScript decodes an operation message body into a Script.
func ParseScript(body map[string]any) (*Script, error) {
	rawSequence, err := message.RequireArray(body, "sequence")
	if err != nil {
		return nil, err
	}

	sequence := make([]map[string]any, 0, len(rawSequence))
	for i, item := range rawSequence {
		call, ok := item.(map[string]any)
		if !ok {
			return nil, opError("sequence[%d] is not a JSON object", i)
		}
		sequence = append(sequence, call)
	}

	saveResults := map[string]int{}
	if raw, ok := body["save_results"]; ok {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, opError(`"save_results" is expected to be of type object`)
		}
		for name, rawIndex := range obj {
			idx, ok := rawIndex.(float64)
			if !ok || idx != float64(int(idx)) {
				return nil, opError("save_results[%q] is not an integer index", name)
			}
			saveResults[name] = int(idx)
		}
	}

	return &Script{Sequence: sequence, SaveResults: saveResults}, nil
}

// RunCallFunc issues one api_call message body and returns its decoded
// reply. In production this is session.Session.Process (wrapped to
// carry the "api_call" message_type); tests supply a stub.
type RunCallFunc func(body map[string]any) (map[string]any, error)

// Run executes script's calls in order, substituting earlier results
// into each call body before issuing it, and returns the final call's
// reply. Any call whose reply has response_type == "error", or any
// substitution failure, aborts the sequence with an *Error.
func Run(script *Script, runCall RunCallFunc) (map[string]any, error) {
	results := make([]map[string]any, 0, len(script.Sequence))
	named := map[string]map[string]any{}

	var last map[string]any
	for i, call := range script.Sequence {
		substituted, err := substitute(call, i, results, named)
		if err != nil {
			return nil, err
		}

		reply, err := runCall(map[string]any{
			"message_type": "api_call",
			"message":      substituted,
		})
		if err != nil {
			// A transport-level failure (e.g. pipe.ErrTimeout) is not
			// itself an operation failure: propagate it unwrapped so
			// callers can still distinguish it with errors.Is.
			return nil, err
		}

		if reply["response_type"] == "error" {
			msg := errorMessageOf(reply)
			return nil, opError("call %d returned an error reply: %s", i, msg)
		}

		results = append(results, reply)
		for name, idx := range script.SaveResults {
			if idx == i {
				named[name] = reply
			}
		}
		last = reply
	}

	return last, nil
}

func errorMessageOf(reply map[string]any) string {
	response, ok := reply["response"].(map[string]any)
	if !ok {
		return "unknown error"
	}
	msg, _ := response["error_message"].(string)
	if msg == "" {
		return "unknown error"
	}
	return msg
}
