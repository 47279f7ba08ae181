// Package broker implements the in-host server: it owns the rendezvous
// pipe, the client registry, the broker secret, and the single worker
// goroutine that reads, parses, authorizes, and dispatches every
// envelope.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/mumble-voip/mumble-json-bridge/internal/dispatch"
	"github.com/mumble-voip/mumble-json-bridge/internal/message"
	"github.com/mumble-voip/mumble-json-bridge/internal/pipe"
	"github.com/mumble-voip/mumble-json-bridge/internal/registry"
)

// workerReadTimeoutMS bounds each individual ReadBlocking call on the
// rendezvous pipe; the worker simply re-enters on Timeout. Cancellation
// is observed inside ReadBlocking's own poll loop regardless of this
// value, so it only controls how promptly a Timeout is logged.
const workerReadTimeoutMS = 1000

const defaultWriteTimeoutMS = 100

// Option configures a Broker at construction time.
type Option func(*Broker)

// WithLogger sets the structured logger used for warnings and dropped
// messages. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// WithDispatcher sets the API Dispatcher the broker delegates api_call
// messages to. Required before Start.
func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(b *Broker) { b.dispatcher = d }
}

// WithPipeDir overrides the directory (POSIX) or namespace root
// (Windows) the rendezvous pipe is created under. Defaults to
// pipe.DefaultDir().
func WithPipeDir(dir string) Option {
	return func(b *Broker) {
		if dir != "" {
			b.pipeDir = dir
		}
	}
}

// WithWriteTimeoutMS overrides the millisecond timeout used when
// writing replies to client pipes. Defaults to 100.
func WithWriteTimeoutMS(ms int) Option {
	return func(b *Broker) { b.writeTimeoutMS = ms }
}

// Broker owns the rendezvous pipe, the client registry, and the broker
// secret, all of which are touched only from its single worker
// goroutine once started (spec §5).
type Broker struct {
	pipeDir        string
	writeTimeoutMS int
	dispatcher     dispatch.Dispatcher
	logger         *slog.Logger

	registry *registry.Registry
	secret   string

	rendezvous *pipe.Pipe
	cancel     context.CancelFunc
	done       chan struct{}

	mu      sync.Mutex
	started bool
}

// New constructs a Broker. It is Idle until Start is called.
func New(opts ...Option) *Broker {
	b := &Broker{
		pipeDir:        pipe.DefaultDir(),
		writeTimeoutMS: defaultWriteTimeoutMS,
		logger:         slog.Default(),
		registry:       registry.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Secret returns the broker secret established at Start. Empty before
// Start completes.
func (b *Broker) Secret() string { return b.secret }

// Start creates the rendezvous pipe and spawns the worker goroutine,
// blocking on a ready barrier until the pipe is either successfully
// created or fails — the Go equivalent of spec §5's start-up mutex,
// letting creation failures surface synchronously to the caller instead
// of only being logged from inside the goroutine.
func (b *Broker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.New("broker: already started")
	}
	if b.dispatcher == nil {
		return errors.New("broker: no dispatcher configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	b.done = make(chan struct{})
	b.cancel = cancel

	go b.run(ctx, ready)

	if err := <-ready; err != nil {
		cancel()
		return err
	}
	b.started = true
	return nil
}

// Stop cancels the worker's context and, if join is true, waits for the
// worker to finish tearing down its pipe before returning.
func (b *Broker) Stop(join bool) {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return
	}
	b.cancel()
	if join {
		<-b.done
	}
}

func (b *Broker) run(ctx context.Context, ready chan<- error) {
	defer close(b.done)

	b.secret = generateSecret()
	rendezvousPath := pipe.WellKnownBrokerPath(b.pipeDir)

	p, err := pipe.Create(rendezvousPath)
	if err != nil {
		ready <- err
		return
	}
	b.rendezvous = p
	defer p.Destroy()

	ready <- nil

	for {
		raw, err := p.ReadBlocking(ctx, workerReadTimeoutMS)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, pipe.ErrTimeout) {
				continue
			}
			b.logger.Error("rendezvous pipe read failed, worker exiting", "error", err)
			return
		}
		b.processMessage(raw)
	}
}

// processMessage implements spec §4.4's dispatch state machine:
// Received -> Enveloped -> Authorized -> Executed -> Replied, with any
// step able to fall to Errored -> Replied(error) where a client record
// is reachable.
func (b *Broker) processMessage(raw []byte) {
	env, err := message.ParseEnvelope(raw)
	if err != nil {
		if id, ok := message.ClientIDFromRaw(raw); ok {
			if rec, found := b.registry.Get(registry.ClientID(id)); found {
				b.sendError(rec, err)
				return
			}
		}
		b.logger.Warn("dropping unparseable message", "error", err)
		return
	}

	if env.Kind == message.Registration {
		b.handleRegistration(env.Message)
		return
	}

	rec, found := b.registry.Get(registry.ClientID(env.ClientID))
	if !found {
		b.logger.Warn("dropping message for unknown client", "client_id", env.ClientID)
		return
	}
	if !rec.SecretMatches(env.Secret) {
		b.sendError(rec, &message.InvalidMessageError{Reason: "Permission denied (invalid secret)"})
		return
	}

	switch env.Kind {
	case message.APICall:
		b.handleAPICall(rec, env.Message)
	case message.Disconnect:
		b.handleDisconnect(rec)
	default:
		b.sendError(rec, &message.InvalidMessageError{Reason: "the given message_type is not handled by the broker"})
	}
}

// handleRegistration implements spec §4.4's registration handler. A
// pipe_path that does not exist on the filesystem is silently ignored
// at the protocol level (there is no channel to reply over) but logged
// at Warn, per the decision recorded for spec §9's open question.
func (b *Broker) handleRegistration(body map[string]any) {
	pipePath, err := message.RequireString(body, "pipe_path")
	if err != nil {
		b.logger.Warn("dropping malformed registration", "error", err)
		return
	}
	secret, err := message.RequireString(body, "secret")
	if err != nil {
		b.logger.Warn("dropping malformed registration", "error", err)
		return
	}

	if _, err := os.Stat(pipePath); err != nil {
		b.logger.Warn("registration names a pipe_path that does not exist, ignoring", "pipe_path", pipePath)
		return
	}

	rec := b.registry.Register(pipePath, secret)
	b.reply(rec, map[string]any{
		"response_type": "registration",
		"secret":        b.secret,
		"response":      map[string]any{"client_id": uint64(rec.ID())},
	})
}

func (b *Broker) handleAPICall(rec registry.Record, body map[string]any) {
	result, err := dispatch.Execute(b.dispatcher, body)
	if err != nil {
		b.sendError(rec, err)
		return
	}
	b.reply(rec, map[string]any{
		"response_type": "api_call",
		"secret":        b.secret,
		"response":      result,
	})
}

// handleDisconnect removes the client first so a second disconnect for
// the same ID finds no record and the client observes a Timeout, per
// spec §8's idempotence property; the farewell write happens afterward
// and its failure is ignored since the client is already going away.
func (b *Broker) handleDisconnect(rec registry.Record) {
	b.registry.Remove(rec.ID())
	b.reply(rec, map[string]any{
		"response_type": "disconnect",
		"secret":        b.secret,
	})
}

func (b *Broker) sendError(rec registry.Record, err error) {
	b.reply(rec, map[string]any{
		"response_type": "error",
		"secret":        b.secret,
		"response":      map[string]any{"error_message": err.Error()},
	})
}

func (b *Broker) reply(rec registry.Record, body map[string]any) {
	encoded, err := json.Marshal(body)
	if err != nil {
		b.logger.Error("failed to encode reply", "error", err)
		return
	}
	if err := rec.Send(encoded, b.writeTimeoutMS); err != nil {
		b.logger.Warn("failed to deliver reply to client", "client_id", rec.ID(), "error", err)
	}
}
