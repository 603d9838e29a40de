// Package overrides implements the optimistic override store: a process-local
// layer of pending values that supersede the persisted baseline of an entity
// while a remote action is in flight.
//
// Each override is keyed by (entity, action) and carries an intent sequence
// number. The sequence is bumped on every Apply, so a resolution (Confirm or
// Revert) arriving for a superseded intent is ignored: rapid toggle taps never
// let a stale failure callback clobber the user's latest intent.
//
// Lifecycle per (entity, action) key:
//
//	Apply(v)  -> override visible, seq = n
//	Confirm(n) -> override stays (now matches confirmed remote state)
//	Revert(n)  -> override removed, baseline authoritative again
//	Apply(v') before resolution -> seq = n+1; Confirm(n)/Revert(n) are no-ops
//
// The store is safe for concurrent use. It holds no references to the
// entities themselves; callers choose stable entity identifiers (e.g.
// "site:7" or "comment:7/42").
package overrides

import "sync"

// Key identifies one override: a stable entity reference plus the action
// name whose pending value it carries.
type Key struct {
	Entity string
	Action string
}

// pending is an applied override together with the sequence of the intent
// that produced it.
type pending struct {
	val any
	seq uint64
}

// Store holds optimistic overrides with per-key intent sequence numbers.
// The zero value is not usable; construct with NewStore.
type Store struct {
	mu   sync.Mutex
	seqs map[Key]uint64 // monotonic per key, survives removal
	vals map[Key]pending
}

// NewStore returns an empty override store.
func NewStore() *Store {
	return &Store{
		seqs: make(map[Key]uint64),
		vals: make(map[Key]pending),
	}
}

// Apply sets the override for k to v and returns the sequence number of this
// intent. The value is visible to readers immediately, before any remote
// confirmation.
func (s *Store) Apply(k Key, v any) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[k]++
	seq := s.seqs[k]
	s.vals[k] = pending{val: v, seq: seq}
	return seq
}

// Confirm marks the intent with sequence seq as confirmed remotely. The
// override stays in place (it now matches remote state and will be folded
// into the baseline on the next refetch). Returns false when a newer intent
// has superseded seq, in which case nothing changes.
func (s *Store) Confirm(k Key, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqs[k] == seq
}

// Revert removes the override applied by the intent with sequence seq,
// restoring the baseline as the displayed state. Returns false when a newer
// intent has superseded seq, in which case the current override is kept.
func (s *Store) Revert(k Key, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seqs[k] != seq {
		return false
	}
	delete(s.vals, k)
	return true
}

// Value returns the current override for k, if one is applied.
func (s *Store) Value(k Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.vals[k]
	if !ok {
		return nil, false
	}
	return p.val, true
}

// Bool returns the current override for k as a boolean. The second result is
// false when no override is applied or the value is not a bool.
func (s *Store) Bool(k Key) (bool, bool) {
	v, ok := s.Value(k)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Clear drops every override for the given entity. Used when the entity is
// refetched from the authoritative source (the fresh baseline subsumes any
// confirmed overrides) or when its view is dismissed.
func (s *Store) Clear(entity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.vals {
		if k.Entity == entity {
			delete(s.vals, k)
		}
	}
}

// Len reports the number of overrides currently applied.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vals)
}
