// Package recorder assembles accumulated batches into durable recording
// artifacts.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmarchetti/streamrec/internal/audio"
	"github.com/dmarchetti/streamrec/internal/params"
	"github.com/dmarchetti/streamrec/internal/session"
	"github.com/dmarchetti/streamrec/internal/storage"
)

var (
	ErrEmptySession      = errors.New("session has no audio to save")
	ErrSessionNotStopped = errors.New("session not stopped")
)

// Finalizer turns stopped sessions (and inline traditional uploads) into
// persisted recordings.
type Finalizer struct {
	registry *session.Registry
	store    *params.Store
	storage  storage.Store
}

func New(registry *session.Registry, store *params.Store, st storage.Store) *Finalizer {
	return &Finalizer{registry: registry, store: store, storage: st}
}

// Finalize assembles a stopped session's batches, in sequence order, plus the
// pending tail as one final partial batch, encodes the result as WAV and
// persists it. On success the session transitions to finalized; on storage
// failure it stays stopped so the caller can retry.
func (f *Finalizer) Finalize(ctx context.Context, sessionID string) (storage.Recording, error) {
	s, err := f.registry.Get(sessionID)
	if err != nil {
		return storage.Recording{}, err
	}

	batches, err := s.Collect(f.store.Get())
	if err != nil {
		if errors.Is(err, session.ErrNotStopped) {
			return storage.Recording{}, fmt.Errorf("%w: session %s is %s", ErrSessionNotStopped, sessionID, s.State())
		}
		return storage.Recording{}, err
	}
	if len(batches) == 0 {
		return storage.Recording{}, ErrEmptySession
	}

	total := 0
	for _, b := range batches {
		total += len(b.Samples)
	}
	samples := make([]float32, 0, total)
	for _, b := range batches {
		samples = append(samples, b.Samples...)
	}

	// The first batch's captured parameters fix the artifact's audio format.
	captured := batches[0].CapturedParams
	rec, err := f.save(ctx, samples, captured, storage.SourceRealTime, sessionID)
	if err != nil {
		return storage.Recording{}, err
	}

	if err := s.Transition(session.StateFinalized); err != nil {
		// Concurrent discard between collect and save; the artifact is already
		// durable, so report success.
		return rec, nil
	}
	return rec, nil
}

// SaveTraditional persists an inline (non-realtime) sample payload stamped
// with the parameters active at save time.
func (f *Finalizer) SaveTraditional(ctx context.Context, samples []float32) (storage.Recording, error) {
	if len(samples) == 0 {
		return storage.Recording{}, ErrEmptySession
	}
	return f.save(ctx, samples, f.store.Get(), storage.SourceTraditional, "")
}

func (f *Finalizer) save(ctx context.Context, samples []float32, snap params.Snapshot, mode storage.SourceMode, sessionID string) (storage.Recording, error) {
	pcm := audio.PCM16FromFloat32(samples)
	encoded, err := audio.EncodeWAVPCM16LE(pcm, snap.SampleRate, snap.Channels)
	if err != nil {
		return storage.Recording{}, fmt.Errorf("encode artifact: %w", err)
	}

	frames := len(samples) / snap.Channels
	now := time.Now().UTC()
	rec := storage.Recording{
		Filename:   storage.NewFilename(now, uuid.NewString()[:8]),
		CreatedAt:  now,
		Duration:   float64(frames) / float64(snap.SampleRate),
		SampleRate: snap.SampleRate,
		Channels:   snap.Channels,
		SourceMode: mode,
		SessionID:  sessionID,
		Params:     snap,
		Audio:      encoded,
	}
	if err := f.storage.Save(ctx, rec); err != nil {
		return storage.Recording{}, fmt.Errorf("persist artifact: %w", err)
	}
	return rec, nil
}
