// Package artifact maps logical artifact keys to the physical outputs that
// stages produced. A Store is safe for concurrent use.
package artifact

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
)

// InputProducer is the producer recorded for starting artifacts.
const InputProducer = "<input>"

// Record is one published artifact. Records are never mutated; a re-publish
// supersedes the current record and keeps the old one in history.
type Record struct {
	Key        string        `yaml:"key" json:"key"`
	Location   string        `yaml:"location" json:"location"`
	Producer   string        `yaml:"producer" json:"producer"`
	ProducedAt time.Time     `yaml:"producedAt" json:"producedAt"`
	Checksum   digest.Digest `yaml:"checksum,omitempty" json:"checksum,omitempty"`
}

// Store holds the current record per key plus its supersession history.
type Store struct {
	mu      sync.Mutex
	current map[string]Record
	history map[string][]Record
	now     func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		current: map[string]Record{},
		history: map[string][]Record{},
		now:     time.Now,
	}
}

// Publish records key as produced by producer at location.
//
// A key belongs to the first producer that publishes it; any other producer
// gets a *ConflictingArtifactError. Re-publishing identical data is a no-op.
func (s *Store) Publish(key, location, producer string, checksum digest.Digest) (Record, error) {
	if key == "" {
		return Record{}, errors.New("artifact key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.current[key]; ok {
		if cur.Producer != producer {
			return Record{}, &ConflictingArtifactError{Key: key, Existing: cur.Producer, Attempted: producer}
		}
		if cur.Location == location && cur.Checksum == checksum {
			return cur, nil
		}
		s.history[key] = append(s.history[key], cur)
	}
	rec := Record{
		Key:        key,
		Location:   location,
		Producer:   producer,
		ProducedAt: s.now().UTC(),
		Checksum:   checksum,
	}
	s.current[key] = rec
	return rec, nil
}

// Seed publishes a starting artifact that no stage produces.
func (s *Store) Seed(key, location string) (Record, error) {
	return s.Publish(key, location, InputProducer, "")
}

// Resolve returns the current record for key.
func (s *Store) Resolve(key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.current[key]
	if !ok {
		return Record{}, &UnresolvedArtifactError{Key: key}
	}
	return rec, nil
}

// Has reports whether key currently resolves.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.current[key]
	return ok
}

// History returns the superseded records of key, oldest first.
func (s *Store) History(key string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.history[key]...)
}

// Records returns a snapshot of the current records sorted by key.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.current))
	for _, r := range s.current {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
