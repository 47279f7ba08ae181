package demoapi

import (
	"testing"

	"github.com/mumble-voip/mumble-json-bridge/internal/message"
	"github.com/stretchr/testify/require"
)

func TestGetLocalUserID(t *testing.T) {
	c := New()
	result, err := c.Call("getLocalUserID", map[string]any{"connection": 13.0})
	require.NoError(t, err)
	require.Equal(t, localUserID, result)
}

func TestGetUserNameKnownUsers(t *testing.T) {
	c := New()

	result, err := c.Call("getUserName", map[string]any{"connection": 13.0, "user_id": 5.0})
	require.NoError(t, err)
	require.Equal(t, "Local user", result)

	result, err = c.Call("getUserName", map[string]any{"connection": 13.0, "user_id": 7.0})
	require.NoError(t, err)
	require.Equal(t, "Other user", result)
}

func TestGetUserNameUnknownUser(t *testing.T) {
	c := New()
	_, err := c.Call("getUserName", map[string]any{"connection": 13.0, "user_id": 99.0})
	var ime *message.InvalidMessageError
	require.ErrorAs(t, err, &ime)
}

func TestFindUserByName(t *testing.T) {
	c := New()
	result, err := c.Call("findUserByName", map[string]any{"connection": 13.0, "user_name": "Local user"})
	require.NoError(t, err)
	require.Equal(t, localUserID, result)
}

func TestUnknownConnectionRejected(t *testing.T) {
	c := New()
	_, err := c.Call("getLocalUserID", map[string]any{"connection": 999.0})
	require.Error(t, err)
}

func TestGetActiveServerConnectionTakesNoParameters(t *testing.T) {
	c := New()
	result, err := c.Call("getActiveServerConnection", nil)
	require.NoError(t, err)
	require.Equal(t, activeConnection, result)

	_, err = c.Call("getActiveServerConnection", map[string]any{"x": 1.0})
	require.Error(t, err)
}

func TestUnknownFunctionRejected(t *testing.T) {
	c := New()
	_, err := c.Call("notARealFunction", map[string]any{})
	var ime *message.InvalidMessageError
	require.ErrorAs(t, err, &ime)
}

func TestGetAllUsers(t *testing.T) {
	c := New()
	result, err := c.Call("getAllUsers", map[string]any{"connection": 13.0})
	require.NoError(t, err)
	require.Equal(t, []any{localUserID, otherUserID}, result)
}

func TestGetChannelOfUser(t *testing.T) {
	c := New()
	result, err := c.Call("getChannelOfUser", map[string]any{"connection": 13.0, "user_id": 5.0})
	require.NoError(t, err)
	require.Equal(t, localUserChannel, result)
}

func TestGetUserComment(t *testing.T) {
	c := New()
	result, err := c.Call("getUserComment", map[string]any{"connection": 13.0, "user_id": 7.0})
	require.NoError(t, err)
	require.Equal(t, otherUserComment, result)
}
