// Package registry implements the broker's client identity table: the
// per-client record (reply pipe, secret) and the monotonic-ID map that
// owns it. Both are built to be touched from exactly one goroutine — the
// broker's worker — so neither type takes a lock.
package registry

import (
	"math"

	"github.com/mumble-voip/mumble-json-bridge/internal/pipe"
)

// ClientID identifies a registered client. Invalid is the reserved
// sentinel meaning "no such client".
type ClientID uint64

// Invalid is the sentinel ClientID value: not yet assigned / not found.
const Invalid ClientID = math.MaxUint64

// Record is a registered client's identity: its ID, its private reply
// pipe path, and the secret it proved possession of at registration.
// Immutable once constructed.
type Record struct {
	id        ClientID
	replyPath string
	secret    string
}

// ID returns the client's assigned identity.
func (r Record) ID() ClientID { return r.id }

// ReplyPath returns the filesystem (or pipe-namespace) path the broker
// writes this client's replies to.
func (r Record) ReplyPath() string { return r.replyPath }

// SecretMatches reports whether candidate is exactly this client's
// secret. Plain byte comparison: the trust boundary is local to the
// machine, so there is no timing-attack protection to provide.
func (r Record) SecretMatches(candidate string) bool { return r.secret == candidate }

// Send writes text to the client's reply pipe with the given
// millisecond timeout, delegating to the pipe transport's write.
func (r Record) Send(text []byte, writeTimeoutMS int) error {
	return pipe.Write(r.replyPath, text, writeTimeoutMS)
}

// Registry is the broker's table of registered clients, keyed by
// ClientID. Not safe for concurrent use: the broker's design confines
// all access to its single worker goroutine (see spec §5), so no
// locking is needed here.
type Registry struct {
	records map[ClientID]Record
	nextID  ClientID
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{records: make(map[ClientID]Record)}
}

// Register allocates a fresh ClientID, inserts the corresponding Record,
// and returns it.
func (reg *Registry) Register(replyPath, secret string) Record {
	rec := Record{id: reg.nextID, replyPath: replyPath, secret: secret}
	reg.records[rec.id] = rec
	reg.nextID++
	return rec
}

// Get returns the record for id and whether it was found.
func (reg *Registry) Get(id ClientID) (Record, bool) {
	rec, ok := reg.records[id]
	return rec, ok
}

// Remove deletes id from the registry and returns the record that was
// removed, if any, so callers can still write a farewell reply to it.
func (reg *Registry) Remove(id ClientID) (Record, bool) {
	rec, ok := reg.records[id]
	if ok {
		delete(reg.records, id)
	}
	return rec, ok
}

// Len reports the number of currently registered clients.
func (reg *Registry) Len() int { return len(reg.records) }
