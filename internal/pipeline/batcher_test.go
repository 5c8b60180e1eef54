package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/dmarchetti/streamrec/internal/params"
	"github.com/dmarchetti/streamrec/internal/session"
)

func newTestBatcher(p params.Parameters) (*Batcher, *session.Registry, *params.Store) {
	store := params.NewStore(p)
	registry := session.NewRegistry(time.Minute, store)
	return New(registry, store), registry, store
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i) / float32(n)
	}
	return out
}

func TestIngestFormsExactBatches(t *testing.T) {
	b, registry, _ := newTestBatcher(params.Parameters{FPS: 60, BatchSize: 256, SampleRate: 44100, Channels: 1})
	s := registry.Create()

	pending, formed, err := b.Ingest(s.ID, ramp(300))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if pending != 300 {
		t.Fatalf("pending after append = %d, want 300", pending)
	}
	if formed != 1 {
		t.Fatalf("formed = %d, want 1", formed)
	}

	info := s.Snapshot()
	if info.CompletedBatches != 1 {
		t.Fatalf("completed batches = %d, want 1", info.CompletedBatches)
	}
	if info.BatchedSamples != 256 {
		t.Fatalf("batched samples = %d, want 256", info.BatchedSamples)
	}
	if info.PendingSamples != 44 {
		t.Fatalf("pending samples = %d, want 44", info.PendingSamples)
	}
}

func TestBatchSequenceGapFree(t *testing.T) {
	b, registry, store := newTestBatcher(params.Parameters{FPS: 60, BatchSize: 16, SampleRate: 8000, Channels: 1})
	s := registry.Create()

	for i := 0; i < 5; i++ {
		if _, _, err := b.Ingest(s.ID, ramp(16)); err != nil {
			t.Fatalf("Ingest() #%d error = %v", i, err)
		}
		// fps=60 limits drains to one per ~16ms.
		time.Sleep(20 * time.Millisecond)
	}
	if err := s.Transition(session.StateStopped); err != nil {
		t.Fatalf("stop error = %v", err)
	}
	batches, err := s.Collect(store.Get())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(batches) != 5 {
		t.Fatalf("batches = %d, want 5", len(batches))
	}
	for i, batch := range batches {
		if batch.Seq != i {
			t.Fatalf("batch %d has seq %d, want %d", i, batch.Seq, i)
		}
		if len(batch.Samples) != 16 {
			t.Fatalf("batch %d size = %d, want 16", i, len(batch.Samples))
		}
	}
}

func TestBatchSizeChangeAppliesFromNextBoundary(t *testing.T) {
	b, registry, store := newTestBatcher(params.Parameters{FPS: 60, BatchSize: 32, SampleRate: 16000, Channels: 1})
	s := registry.Create()

	if _, _, err := b.Ingest(s.ID, ramp(32)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	firstSnap := store.Get()

	if _, err := store.Update(params.Parameters{FPS: 60, BatchSize: 64, SampleRate: 16000, Channels: 1}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, _, err := b.Ingest(s.ID, ramp(64)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if err := s.Transition(session.StateStopped); err != nil {
		t.Fatalf("stop error = %v", err)
	}
	batches, err := s.Collect(store.Get())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if len(batches[0].Samples) != 32 {
		t.Fatalf("first batch size = %d, want 32 (must not be re-batched)", len(batches[0].Samples))
	}
	if batches[0].CapturedParams.Version != firstSnap.Version {
		t.Fatalf("first batch captured version = %d, want %d", batches[0].CapturedParams.Version, firstSnap.Version)
	}
	if len(batches[1].Samples) != 64 {
		t.Fatalf("second batch size = %d, want 64", len(batches[1].Samples))
	}
	if batches[1].CapturedParams.BatchSize != 64 {
		t.Fatalf("second batch captured batch size = %d, want 64", batches[1].CapturedParams.BatchSize)
	}
}

func TestIngestRejectedOutsideStreaming(t *testing.T) {
	b, registry, _ := newTestBatcher(params.Parameters{FPS: 30, BatchSize: 64, SampleRate: 44100, Channels: 1})
	s := registry.Create()
	if _, _, err := b.Ingest(s.ID, ramp(10)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := s.Transition(session.StateStopped); err != nil {
		t.Fatalf("stop error = %v", err)
	}
	if _, _, err := b.Ingest(s.ID, ramp(10)); !errors.Is(err, ErrSessionNotStreaming) {
		t.Fatalf("ingest on stopped session error = %v, want ErrSessionNotStreaming", err)
	}
	if info := s.Snapshot(); info.PendingSamples != 10 {
		t.Fatalf("rejected ingest changed pending buffer: %d", info.PendingSamples)
	}

	if _, _, err := b.Ingest("missing", ramp(10)); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("ingest on unknown session error = %v, want ErrNotFound", err)
	}
}

func TestDrainRateLimitedByFPS(t *testing.T) {
	b, registry, _ := newTestBatcher(params.Parameters{FPS: 1, BatchSize: 16, SampleRate: 8000, Channels: 1})
	s := registry.Create()

	if _, _, err := b.Ingest(s.ID, ramp(16)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if info := s.Snapshot(); info.CompletedBatches != 1 {
		t.Fatalf("first drain should form a batch, got %d", info.CompletedBatches)
	}

	// Second drain within the 1s window is a no-op; pending keeps growing.
	if _, _, err := b.Ingest(s.ID, ramp(16)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	info := s.Snapshot()
	if info.CompletedBatches != 1 {
		t.Fatalf("rate-limited drain formed a batch: %d", info.CompletedBatches)
	}
	if info.PendingSamples != 16 {
		t.Fatalf("pending = %d, want 16", info.PendingSamples)
	}
}
