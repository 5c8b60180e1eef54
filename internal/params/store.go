package params

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Parameters are the live recording knobs applied to every streaming session.
type Parameters struct {
	FPS        int `json:"fps"`
	BatchSize  int `json:"batch_size"`
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

// Snapshot is a Parameters value tagged with the store version that produced it.
type Snapshot struct {
	Parameters
	Version uint64 `json:"version"`
}

const (
	MinFPS       = 1
	MaxFPS       = 60
	MinBatchSize = 16
	MaxBatchSize = 256
)

var allowedSampleRates = map[int]bool{
	8000:  true,
	16000: true,
	22050: true,
	44100: true,
	48000: true,
}

// ValidationError reports which parameter fields were rejected. The store is
// left untouched when any field fails.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter fields: %s", strings.Join(e.Fields, ", "))
}

// Validate checks every field against its range or enum and collects all
// violations rather than stopping at the first.
func (p Parameters) Validate() error {
	var bad []string
	if p.FPS < MinFPS || p.FPS > MaxFPS {
		bad = append(bad, "fps")
	}
	if p.BatchSize < MinBatchSize || p.BatchSize > MaxBatchSize {
		bad = append(bad, "batch_size")
	}
	if !allowedSampleRates[p.SampleRate] {
		bad = append(bad, "sample_rate")
	}
	if p.Channels != 1 && p.Channels != 2 {
		bad = append(bad, "channels")
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return &ValidationError{Fields: bad}
	}
	return nil
}

// Store holds the process-wide parameter set. All access goes through a single
// mutex; readers see either the previous or the fully applied value, never a
// mix of fields.
type Store struct {
	mu      sync.Mutex
	current Parameters
	version uint64
}

// NewStore seeds the store with defaults. Invalid defaults are a programming
// error and panic at startup rather than surfacing later as silent corruption.
func NewStore(defaults Parameters) *Store {
	if err := defaults.Validate(); err != nil {
		panic(fmt.Sprintf("params: invalid defaults: %v", err))
	}
	return &Store{current: defaults, version: 1}
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Parameters: s.current, Version: s.version}
}

// Update atomically replaces the stored parameters and bumps the version.
// On validation failure the prior value is fully intact.
func (s *Store) Update(candidate Parameters) (Snapshot, error) {
	if err := candidate.Validate(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = candidate
	s.version++
	return Snapshot{Parameters: s.current, Version: s.version}, nil
}
