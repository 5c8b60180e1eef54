// Package pipeline re-groups ingested audio into fixed-size batches using the
// live parameter set. Batch size is read at drain time, not capture time, so a
// parameter change takes effect from the next full batch boundary; fps caps
// how often a session may drain.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmarchetti/streamrec/internal/params"
	"github.com/dmarchetti/streamrec/internal/session"
)

var ErrSessionNotStreaming = errors.New("session not streaming")

// Batcher feeds session buffers and cuts completed batches.
type Batcher struct {
	registry *session.Registry
	store    *params.Store
}

func New(registry *session.Registry, store *params.Store) *Batcher {
	return &Batcher{registry: registry, store: store}
}

// Ingest appends a chunk to the session's pending buffer and then attempts a
// drain. Returns the pending-buffer length after the append, which is the
// caller-visible backpressure signal, and the number of batches the drain
// completed.
func (b *Batcher) Ingest(sessionID string, chunk []float32) (pending, formed int, err error) {
	s, err := b.registry.Get(sessionID)
	if err != nil {
		return 0, 0, err
	}
	pending, err = s.Ingest(chunk)
	if err != nil {
		if errors.Is(err, session.ErrNotStreaming) {
			return 0, 0, fmt.Errorf("%w: session %s is %s", ErrSessionNotStreaming, sessionID, s.State())
		}
		return 0, 0, err
	}
	formed = b.Drain(sessionID)
	return pending, formed, nil
}

// Drain cuts as many full batches as the pending buffer allows. The batch size
// and the stamped snapshot come from the live store, never from the session's
// stale view; fps bounds the drain rate per session.
func (b *Batcher) Drain(sessionID string) (formed int) {
	s, err := b.registry.Get(sessionID)
	if err != nil {
		return 0
	}
	snap := b.store.Get()
	return s.Drain(snap, drainInterval(snap.FPS))
}

func drainInterval(fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Second / time.Duration(fps)
}
