package state

import "sync/atomic"

// snapshotHolder lets Publisher store a possibly-nil *Snapshot inside an
// atomic.Value, which otherwise rejects nil and requires a consistent
// concrete type across Store calls.
type snapshotHolder struct {
	snap *Snapshot
}

// Publisher is the single-writer, many-reader slot described in spec
// §4.4/§4.5. Readers call Load and get a stable reference in O(1) with no
// locking; Load never blocks a concurrent Publish and vice versa. The value
// returned by Load is never mutated by the writer once published, so
// callers may hold onto it for the lifetime of an HTTP response without any
// further synchronization.
type Publisher struct {
	v atomic.Value
}

// NewPublisher returns a Publisher whose slot holds the "not-ready"
// sentinel (Load returns nil) until the first successful Publish.
func NewPublisher() *Publisher {
	p := &Publisher{}
	p.v.Store(&snapshotHolder{})
	return p
}

// Load performs the acquire-load a reader needs: it returns the current
// snapshot, or nil if no scrape has ever produced one worth publishing.
func (p *Publisher) Load() *Snapshot {
	return p.v.Load().(*snapshotHolder).snap
}

// Publish atomically swaps in s as the current snapshot, provided it
// satisfies the staleness policy of spec §3 invariant 5: non-empty, with
// at least one source that succeeded. Otherwise the previous snapshot
// remains current and Publish reports false so the caller can log that the
// scrape was discarded in favor of stale data.
func (p *Publisher) Publish(s *Snapshot) bool {
	if s == nil || !s.NonEmpty() || !s.AnySourceSucceeded() {
		return false
	}
	p.v.Store(&snapshotHolder{snap: s})
	return true
}
