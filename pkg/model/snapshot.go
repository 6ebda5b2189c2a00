package model

import (
	"encoding/json"
	"fmt"
	"iter"
)

// Snapshot is the observed state of one declared property at one instant:
// an insertion-ordered mapping from normalized path to Fingerprint.
//
// A Snapshot is immutable once constructed. The zero value is the empty
// snapshot.
type Snapshot struct {
	paths   []string
	entries map[string]Fingerprint
}

// EmptySnapshot returns the distinguished empty snapshot.
func EmptySnapshot() Snapshot {
	return Snapshot{}
}

// NewSnapshot builds a snapshot from fingerprints, keyed by their Path.
// If a path repeats, the later fingerprint replaces the earlier one but the
// first position is kept.
func NewSnapshot(fps ...Fingerprint) Snapshot {
	if len(fps) == 0 {
		return Snapshot{}
	}
	s := Snapshot{
		paths:   make([]string, 0, len(fps)),
		entries: make(map[string]Fingerprint, len(fps)),
	}
	for _, fp := range fps {
		if _, seen := s.entries[fp.Path]; !seen {
			s.paths = append(s.paths, fp.Path)
		}
		s.entries[fp.Path] = fp
	}
	return s
}

// Len returns the number of entries.
func (s Snapshot) Len() int {
	return len(s.paths)
}

// IsEmpty returns true for the empty snapshot.
func (s Snapshot) IsEmpty() bool {
	return len(s.paths) == 0
}

// Get returns the fingerprint recorded for path.
func (s Snapshot) Get(path string) (Fingerprint, bool) {
	fp, ok := s.entries[path]
	return fp, ok
}

// Has reports whether path is present.
func (s Snapshot) Has(path string) bool {
	_, ok := s.entries[path]
	return ok
}

// Paths returns a copy of the paths in insertion order.
func (s Snapshot) Paths() []string {
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// All iterates path/fingerprint pairs in insertion order.
func (s Snapshot) All() iter.Seq2[string, Fingerprint] {
	return func(yield func(string, Fingerprint) bool) {
		for _, p := range s.paths {
			if !yield(p, s.entries[p]) {
				return
			}
		}
	}
}

// Fingerprints returns the entries in insertion order.
func (s Snapshot) Fingerprints() []Fingerprint {
	out := make([]Fingerprint, 0, len(s.paths))
	for _, p := range s.paths {
		out = append(out, s.entries[p])
	}
	return out
}

// Equal reports whether both snapshots hold the same paths with equal
// fingerprints. Order is not significant.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.Len() != other.Len() {
		return false
	}
	for p, fp := range s.entries {
		ofp, ok := other.entries[p]
		if !ok || !fp.Equal(ofp) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the snapshot as an ordered array of fingerprints.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Fingerprints())
}

// UnmarshalJSON decodes an ordered array of fingerprints.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var fps []Fingerprint
	if err := json.Unmarshal(data, &fps); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	*s = NewSnapshot(fps...)
	return nil
}
