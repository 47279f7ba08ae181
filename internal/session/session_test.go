package session

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mumble-voip/mumble-json-bridge/internal/broker"
	"github.com/mumble-voip/mumble-json-bridge/internal/demoapi"
	"github.com/stretchr/testify/require"
)

func startTestBroker(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	b := broker.New(
		broker.WithPipeDir(dir),
		broker.WithDispatcher(demoapi.New()),
		broker.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, b.Start())
	t.Cleanup(func() { b.Stop(true) })
	return dir
}

func TestSessionRegistersAndProcessesCall(t *testing.T) {
	dir := startTestBroker(t)

	s, err := New(WithPipeDir(dir))
	require.NoError(t, err)
	defer s.Close()

	require.NotEmpty(t, s.BrokerSecret())

	reply, err := s.Process(map[string]any{
		"message_type": "api_call",
		"message": map[string]any{
			"function":  "getLocalUserID",
			"parameter": map[string]any{"connection": 13},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "api_call", reply["response_type"])
	_, hasSecret := reply["secret"]
	require.False(t, hasSecret)

	response := reply["response"].(map[string]any)
	require.Equal(t, 5.0, response["return_value"])
}

func TestSessionCloseThenReuseTimesOut(t *testing.T) {
	dir := startTestBroker(t)

	s, err := New(WithPipeDir(dir))
	require.NoError(t, err)

	s.Close()

	start := time.Now()
	_, err = s.Process(map[string]any{
		"message_type": "api_call",
		"message":      map[string]any{"function": "getLocalUserID", "parameter": map[string]any{"connection": 13}},
	})
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestSessionsHaveDistinctReplyPipes(t *testing.T) {
	dir := startTestBroker(t)

	s1, err := New(WithPipeDir(dir))
	require.NoError(t, err)
	defer s1.Close()

	s2, err := New(WithPipeDir(dir))
	require.NoError(t, err)
	defer s2.Close()

	require.NotEqual(t, s1.replyPath, s2.replyPath)
	require.NotEqual(t, s1.ClientID(), s2.ClientID())
}
