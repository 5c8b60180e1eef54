package session

import (
	"time"

	"github.com/dmarchetti/streamrec/internal/params"
)

// State is the lifecycle phase of a streaming session.
type State string

const (
	StateNegotiating State = "negotiating"
	StateStreaming   State = "streaming"
	StateStopped     State = "stopped"
	StateFinalized   State = "finalized"
	StateDiscarded   State = "discarded"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateDiscarded
}

// Batch is a fixed-size group of samples cut from a session's pending buffer.
// CapturedParams freezes the parameters in effect when the batch was formed;
// later parameter changes never re-batch completed batches.
type Batch struct {
	Seq            int             `json:"seq"`
	Samples        []float32       `json:"samples"`
	CapturedParams params.Snapshot `json:"captured_params"`
}

// Info is a read-only snapshot of a session, safe to hand to callers.
type Info struct {
	ID                string    `json:"session_id"`
	State             State     `json:"state"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	ParamsVersionSeen uint64    `json:"params_version_seen"`
	PendingSamples    int       `json:"pending_samples"`
	CompletedBatches  int       `json:"completed_batches"`
	BatchedSamples    int       `json:"batched_samples"`
	CandidateCount    int       `json:"candidate_count"`
}
