// Package session implements the process-side counterpart to the
// broker: construction performs registration, Process issues one
// request/reply round trip, and Close disconnects, all against the
// well-known rendezvous pipe.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/mumble-voip/mumble-json-bridge/internal/pipe"
)

const (
	defaultReadTimeoutMS  = 1000
	defaultWriteTimeoutMS = 100

	// secretAlphabet matches the one internal/broker uses, preserving
	// the original bridge's observable secret shape on both ends of
	// the handshake.
	secretAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz+-*/()[]{}"
	secretLength   = 12
)

// Option configures a Session at construction time.
type Option func(*config)

type config struct {
	pipeDir        string
	rendezvousPath string
	readTimeoutMS  int
	writeTimeoutMS int
}

// WithPipeDir overrides the directory (POSIX) or namespace root
// (Windows) the reply pipe and the rendezvous path are resolved under.
// Defaults to pipe.DefaultDir().
func WithPipeDir(dir string) Option {
	return func(c *config) {
		if dir != "" {
			c.pipeDir = dir
		}
	}
}

// WithReadTimeoutMS overrides the millisecond timeout used for every
// reply read. Defaults to 1000.
func WithReadTimeoutMS(ms int) Option { return func(c *config) { c.readTimeoutMS = ms } }

// WithWriteTimeoutMS overrides the millisecond timeout used for every
// request write. Defaults to 100.
func WithWriteTimeoutMS(ms int) Option { return func(c *config) { c.writeTimeoutMS = ms } }

// Session is a process-side handle on the broker: one private reply
// pipe, one client secret, and the broker secret learned at
// registration. Single-threaded-use: callers must serialize calls into
// Process themselves (spec §4.6).
type Session struct {
	replyPipe      *pipe.Pipe
	replyPath      string
	rendezvousPath string
	clientSecret   string
	brokerSecret   string
	clientID       float64
	readTimeoutMS  int
	writeTimeoutMS int
}

// New constructs a Session: creates a fresh reply pipe, generates a
// client secret, registers with the broker at the well-known
// rendezvous path, and persists the broker secret and assigned client
// ID from the registration reply. Any failure here is fatal to the
// session being constructed (spec §4.8).
func New(opts ...Option) (*Session, error) {
	c := &config{
		pipeDir:        pipe.DefaultDir(),
		readTimeoutMS:  defaultReadTimeoutMS,
		writeTimeoutMS: defaultWriteTimeoutMS,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rendezvousPath == "" {
		c.rendezvousPath = pipe.WellKnownBrokerPath(c.pipeDir)
	}

	replyPath := pipe.NewReplyPath(c.pipeDir, uuid.NewString())
	replyPipe, err := pipe.Create(replyPath)
	if err != nil {
		return nil, fmt.Errorf("session: create reply pipe: %w", err)
	}

	s := &Session{
		replyPipe:      replyPipe,
		replyPath:      replyPath,
		rendezvousPath: c.rendezvousPath,
		clientSecret:   generateClientSecret(),
		readTimeoutMS:  c.readTimeoutMS,
		writeTimeoutMS: c.writeTimeoutMS,
	}

	registration, err := json.Marshal(map[string]any{
		"message_type": "registration",
		"message": map[string]any{
			"pipe_path": replyPath,
			"secret":    s.clientSecret,
		},
	})
	if err != nil {
		replyPipe.Destroy()
		return nil, fmt.Errorf("session: encode registration: %w", err)
	}

	if err := pipe.Write(c.rendezvousPath, registration, s.writeTimeoutMS); err != nil {
		replyPipe.Destroy()
		return nil, fmt.Errorf("session: write registration: %w", err)
	}

	raw, err := replyPipe.ReadBlocking(context.Background(), s.readTimeoutMS)
	if err != nil {
		replyPipe.Destroy()
		return nil, fmt.Errorf("session: read registration reply: %w", err)
	}

	var reply map[string]any
	if err := json.Unmarshal(raw, &reply); err != nil {
		replyPipe.Destroy()
		return nil, fmt.Errorf("session: decode registration reply: %w", err)
	}

	brokerSecret, _ := reply["secret"].(string)
	s.brokerSecret = brokerSecret

	response, _ := reply["response"].(map[string]any)
	clientID, _ := response["client_id"].(float64)
	s.clientID = clientID

	return s, nil
}

// Process injects client_id and secret into message, writes it to the
// broker, reads one reply, verifies the broker secret, strips it from
// the reply, and returns the remainder (spec §4.6).
func (s *Session) Process(message map[string]any) (map[string]any, error) {
	request := make(map[string]any, len(message)+2)
	for k, v := range message {
		request[k] = v
	}
	request["client_id"] = s.clientID
	request["secret"] = s.clientSecret

	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("session: encode request: %w", err)
	}
	if err := pipe.Write(s.rendezvousPath, encoded, s.writeTimeoutMS); err != nil {
		return nil, fmt.Errorf("session: write request: %w", err)
	}

	raw, err := s.replyPipe.ReadBlocking(context.Background(), s.readTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("session: read reply: %w", err)
	}

	var reply map[string]any
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("session: decode reply: %w", err)
	}

	secret, _ := reply["secret"].(string)
	if secret != s.brokerSecret {
		return map[string]any{}, fmt.Errorf("session: reply secret mismatch, discarding reply")
	}

	delete(reply, "secret")
	return reply, nil
}

// Close sends a disconnect envelope and reads one disconnect reply
// within a bounded timeout, swallowing every failure: by the time a
// session closes, the caller no longer cares whether the broker heard
// it (spec §4.6, §4.8).
func (s *Session) Close() {
	defer s.replyPipe.Destroy()

	request := map[string]any{
		"message_type": "disconnect",
		"client_id":    s.clientID,
		"secret":       s.clientSecret,
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		return
	}
	if err := pipe.Write(s.rendezvousPath, encoded, s.writeTimeoutMS); err != nil {
		return
	}
	s.replyPipe.ReadBlocking(context.Background(), s.readTimeoutMS)
}

// ClientID returns the ID assigned at registration.
func (s *Session) ClientID() float64 { return s.clientID }

// BrokerSecret returns the broker secret learned at registration.
func (s *Session) BrokerSecret() string { return s.brokerSecret }

func generateClientSecret() string {
	b := make([]byte, secretLength)
	for i := range b {
		b[i] = secretAlphabet[rand.Intn(len(secretAlphabet))]
	}
	return string(b)
}
