// Package dispatch defines the API Dispatcher contract the broker calls
// into for every api_call message, and the reply-shaping helper built on
// top of it. The catalog behind the contract — function names, parameter
// shapes, the host API itself — is deliberately out of scope here; see
// internal/demoapi for a concrete catalog used by the runnable demo host.
package dispatch

import "github.com/mumble-voip/mumble-json-bridge/internal/message"

// Dispatcher validates name and params against a static catalog,
// invokes the host API, and returns a JSON-serializable result (or an
// error). Implementations report parameter and name problems as
// *message.InvalidMessageError so the broker can turn them into error
// replies.
type Dispatcher interface {
	Call(name string, params map[string]any) (any, error)
}

// Execute runs an api_call message body (the decoded {"function":...,
// "parameter":...} object) against d and builds the success reply shape
// from spec §4.5: {function, status:"executed", return_value?}.
//
// Any error d.Call returns propagates unchanged; callers distinguish
// *message.InvalidMessageError from other failures with errors.As.
func Execute(d Dispatcher, body map[string]any) (map[string]any, error) {
	name, err := message.RequireString(body, "function")
	if err != nil {
		return nil, err
	}

	var params map[string]any
	if raw, ok := body["parameter"]; ok {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &message.InvalidMessageError{
				Reason: `the "parameter" field is expected to be of type object`,
			}
		}
		params = obj
	}

	result, err := d.Call(name, params)
	if err != nil {
		return nil, err
	}

	reply := map[string]any{
		"function": name,
		"status":   "executed",
	}
	if result != nil {
		reply["return_value"] = result
	}
	return reply, nil
}
