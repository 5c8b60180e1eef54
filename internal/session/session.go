package session

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dmarchetti/streamrec/internal/params"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotStreaming      = errors.New("session not streaming")
	ErrNotStopped        = errors.New("session not stopped")
)

// Session holds one client's negotiation record and audio buffers. All mutable
// fields are guarded by mu; at most one writer touches the buffers at a time,
// so a drain always sees everything ingested before it.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu                sync.Mutex
	state             State
	lastActivity      time.Time
	paramsVersionSeen uint64

	offer      json.RawMessage
	candidates []json.RawMessage

	pending   []float32
	batches   []Batch
	nextSeq   int
	lastDrain time.Time
}

// legal transitions; discard is handled separately since any non-terminal
// state may be discarded.
var transitions = map[State]map[State]bool{
	StateNegotiating: {StateStreaming: true},
	StateStreaming:   {StateStopped: true},
	StateStopped:     {StateFinalized: true},
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	batched := 0
	for _, b := range s.batches {
		batched += len(b.Samples)
	}
	return Info{
		ID:                s.ID,
		State:             s.state,
		CreatedAt:         s.CreatedAt,
		LastActivityAt:    s.lastActivity,
		ParamsVersionSeen: s.paramsVersionSeen,
		PendingSamples:    len(s.pending),
		CompletedBatches:  len(s.batches),
		BatchedSamples:    batched,
		CandidateCount:    len(s.candidates),
	}
}

// Transition moves the session to target if the edge is legal. Discarding is
// allowed from any non-terminal state and releases all buffered audio.
func (s *Session) Transition(target State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(target)
}

func (s *Session) transitionLocked(target State) error {
	if target == StateDiscarded {
		if s.state.Terminal() {
			return ErrInvalidTransition
		}
		s.state = StateDiscarded
		s.pending = nil
		s.batches = nil
		s.lastActivity = time.Now().UTC()
		return nil
	}
	if !transitions[s.state][target] {
		return ErrInvalidTransition
	}
	s.state = target
	s.lastActivity = time.Now().UTC()
	return nil
}

// SetOffer stores the opaque offer payload from the client.
func (s *Session) SetOffer(offer json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offer = append(json.RawMessage(nil), offer...)
	s.lastActivity = time.Now().UTC()
}

// AddCandidate appends an opaque ICE candidate payload to the negotiation
// record. Candidates are relayed, never interpreted.
func (s *Session) AddCandidate(candidate json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, append(json.RawMessage(nil), candidate...))
	s.lastActivity = time.Now().UTC()
}

// Ingest appends samples to the pending buffer. The first accepted chunk moves
// a negotiating session to streaming; any stopped or terminal session rejects
// the chunk with no side effect.
func (s *Session) Ingest(samples []float32) (pending int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateStreaming:
	case StateNegotiating:
		// Data channel confirmed open: streaming begins on first chunk, not on
		// signaling completion, so a session never sits in streaming with no data.
		s.state = StateStreaming
	default:
		return 0, ErrNotStreaming
	}
	s.pending = append(s.pending, samples...)
	s.lastActivity = time.Now().UTC()
	return len(s.pending), nil
}

// Drain cuts as many full batches as the pending buffer allows, using the
// batch size from the live snapshot, and stamps each batch with that snapshot.
// minInterval rate-limits draining (derived from fps); a drain attempted too
// soon is a no-op and the pending buffer simply keeps growing until the next
// eligible drain.
func (s *Session) Drain(snap params.Snapshot, minInterval time.Duration) (formed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return 0
	}
	now := time.Now()
	if minInterval > 0 && !s.lastDrain.IsZero() && now.Sub(s.lastDrain) < minInterval {
		return 0
	}
	for len(s.pending) >= snap.BatchSize {
		batch := Batch{
			Seq:            s.nextSeq,
			Samples:        append([]float32(nil), s.pending[:snap.BatchSize]...),
			CapturedParams: snap,
		}
		s.pending = s.pending[snap.BatchSize:]
		s.batches = append(s.batches, batch)
		s.nextSeq++
		formed++
	}
	if formed > 0 {
		s.lastDrain = now
		s.paramsVersionSeen = snap.Version
	}
	return formed
}

// Collect returns all completed batches plus the pending tail as one final
// partial batch, for finalization. Requires the session to be stopped, which
// guarantees no concurrent ingest. The tail is moved into the batch list so a
// retried finalize sees identical data.
func (s *Session) Collect(snap params.Snapshot) ([]Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return nil, ErrNotStopped
	}
	if len(s.pending) > 0 {
		s.batches = append(s.batches, Batch{
			Seq:            s.nextSeq,
			Samples:        s.pending,
			CapturedParams: snap,
		})
		s.nextSeq++
		s.pending = nil
	}
	out := make([]Batch, len(s.batches))
	copy(out, s.batches)
	return out, nil
}

// ObserveParamsVersion records that the session has seen a pushed parameter
// version. Versions only move forward.
func (s *Session) ObserveParamsVersion(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.paramsVersionSeen {
		s.paramsVersionSeen = v
	}
}
