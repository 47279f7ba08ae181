// Package demoapi is a small, static host-API catalog standing in for
// the out-of-scope plugin API (spec §4.5's "opaque dispatcher"). It
// implements dispatch.Dispatcher against the same fixture values the
// original bridge's test mock uses, so the runnable demo host and the
// end-to-end scenarios have something real to call.
//
// A production host never uses this package: it supplies its own
// Dispatcher over its real plugin API.
package demoapi

import (
	"fmt"

	"github.com/mumble-voip/mumble-json-bridge/internal/message"
)

// Fixture values mirrored from the original mock's in-memory world: one
// known plugin, one known connection, two known users in two channels.
const (
	pluginID         = 42
	activeConnection = 13

	localUserID  = 5
	otherUserID  = 7
	localUserName = "Local user"
	otherUserName = "Other user"

	localUserChannel     = 244
	otherUserChannel     = 243
	localUserChannelName = "Channel of local user"
	otherUserChannelName = "Channel of other user"

	localUserComment = "I am the local user"
	otherUserComment = "I am another user"
)

// Catalog is the fixed set of functions this demo host exposes. It
// implements dispatch.Dispatcher.
type Catalog struct{}

// New returns the demo catalog.
func New() Catalog { return Catalog{} }

// handlers maps a function name to its implementation. Declared as a
// package-level table rather than a switch, matching the static
// function-pointer table the original mock registers its API with.
var handlers = map[string]func(params map[string]any) (any, error){
	"getActiveServerConnection": func(params map[string]any) (any, error) {
		return activeConnection, nil
	},
	"isConnectionSynchronized": func(params map[string]any) (any, error) {
		if _, err := requireKnownConnection(params); err != nil {
			return nil, err
		}
		return true, nil
	},
	"getLocalUserID": func(params map[string]any) (any, error) {
		if _, err := requireKnownConnection(params); err != nil {
			return nil, err
		}
		return localUserID, nil
	},
	"getUserName": func(params map[string]any) (any, error) {
		if _, err := requireKnownConnection(params); err != nil {
			return nil, err
		}
		id, err := requireIntParam(params, "user_id")
		if err != nil {
			return nil, err
		}
		switch id {
		case localUserID:
			return localUserName, nil
		case otherUserID:
			return otherUserName, nil
		default:
			return nil, invalidParam("no such user_id %d", id)
		}
	},
	"findUserByName": func(params map[string]any) (any, error) {
		if _, err := requireKnownConnection(params); err != nil {
			return nil, err
		}
		name, err := message.RequireString(params, "user_name")
		if err != nil {
			return nil, err
		}
		switch name {
		case localUserName:
			return localUserID, nil
		case otherUserName:
			return otherUserID, nil
		default:
			return nil, invalidParam("no such user_name %q", name)
		}
	},
	"getChannelOfUser": func(params map[string]any) (any, error) {
		if _, err := requireKnownConnection(params); err != nil {
			return nil, err
		}
		id, err := requireIntParam(params, "user_id")
		if err != nil {
			return nil, err
		}
		switch id {
		case localUserID:
			return localUserChannel, nil
		case otherUserID:
			return otherUserChannel, nil
		default:
			return nil, invalidParam("no such user_id %d", id)
		}
	},
	"getUserComment": func(params map[string]any) (any, error) {
		if _, err := requireKnownConnection(params); err != nil {
			return nil, err
		}
		id, err := requireIntParam(params, "user_id")
		if err != nil {
			return nil, err
		}
		switch id {
		case localUserID:
			return localUserComment, nil
		case otherUserID:
			return otherUserComment, nil
		default:
			return nil, invalidParam("no such user_id %d", id)
		}
	},
	"getAllUsers": func(params map[string]any) (any, error) {
		if _, err := requireKnownConnection(params); err != nil {
			return nil, err
		}
		return []any{localUserID, otherUserID}, nil
	},
}

// noParamFunctions is the set of functions that take no "parameter"
// object at all — the Go analogue of the original's parameterless API
// entries.
var noParamFunctions = map[string]bool{
	"getActiveServerConnection": true,
}

// Call implements dispatch.Dispatcher.
func (Catalog) Call(name string, params map[string]any) (any, error) {
	handler, ok := handlers[name]
	if !ok {
		return nil, invalidParam("unknown function %q", name)
	}
	if noParamFunctions[name] && len(params) > 0 {
		return nil, invalidParam("function %q takes no parameters", name)
	}
	if !noParamFunctions[name] && params == nil {
		return nil, invalidParam("function %q requires a \"parameter\" object", name)
	}
	return handler(params)
}

func invalidParam(format string, args ...any) error {
	return &message.InvalidMessageError{Reason: fmt.Sprintf(format, args...)}
}

func requireIntParam(params map[string]any, field string) (int, error) {
	n, err := message.RequireInt(params, field)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// requireKnownConnection asserts params carries a "connection" field
// matching the one fixture connection every handler but
// getActiveServerConnection requires.
func requireKnownConnection(params map[string]any) (int, error) {
	conn, err := requireIntParam(params, "connection")
	if err != nil {
		return 0, err
	}
	if conn != activeConnection {
		return 0, invalidParam("connection %d not found", conn)
	}
	return conn, nil
}
