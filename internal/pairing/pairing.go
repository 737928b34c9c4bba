// Package pairing generalizes the partial-message assembler that
// spec.md §9 flags as Security+ v2's design: the original decoder kept
// two bare global variables (packet[2] and packet_tv[2]) to remember the
// most recent fragment of a two-frame rolling-code transmission until its
// partner fragment arrived or it aged out. Here that is a small bounded
// store any decoder can instantiate privately, keyed by whatever
// correlation value the decoder chooses (channel id, rolling-code id,
// device address) instead of a fixed-size array of two.
package pairing

import "time"

// Store holds at most one pending fragment per key. Take removes the entry
// it looks up, and Sweep removes every entry older than maxAge; Put and
// Peek leave expired entries in place. It is not safe for concurrent use by multiple
// goroutines without external synchronization, matching the dispatcher's
// single-threaded-per-decoder decode contract (spec.md §5).
type Store struct {
	maxAge  time.Duration
	entries map[string]entry
}

type entry struct {
	value   interface{}
	stored  time.Time
}

// New creates a Store that expires fragments older than maxAge.
func New(maxAge time.Duration) *Store {
	return &Store{maxAge: maxAge, entries: make(map[string]entry)}
}

// Put stores value under key, replacing any unexpired fragment already
// there. now is passed in explicitly so callers can drive the store from
// package timestamps rather than wall-clock time.
func (s *Store) Put(key string, value interface{}, now time.Time) {
	s.entries[key] = entry{value: value, stored: now}
}

// Take returns and removes the fragment stored under key, if present and
// not older than maxAge as of now. The second return value is false if
// there was no unexpired fragment.
func (s *Store) Take(key string, now time.Time) (interface{}, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	delete(s.entries, key)
	if now.Sub(e.stored) > s.maxAge {
		return nil, false
	}
	return e.value, true
}

// Peek reports whether an unexpired fragment is stored under key, without
// removing it.
func (s *Store) Peek(key string, now time.Time) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	return now.Sub(e.stored) <= s.maxAge
}

// Sweep removes every entry older than maxAge as of now. Call periodically
// from a long-running decoder to bound memory when fragments never find a
// partner.
func (s *Store) Sweep(now time.Time) {
	for k, e := range s.entries {
		if now.Sub(e.stored) > s.maxAge {
			delete(s.entries, k)
		}
	}
}

// Len returns the number of currently stored fragments, expired or not.
func (s *Store) Len() int {
	return len(s.entries)
}
