package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dmarchetti/streamrec/internal/params"
)

var ErrNotFound = errors.New("recording not found")

// SourceMode distinguishes how a recording reached the server.
type SourceMode string

const (
	SourceTraditional SourceMode = "traditional"
	SourceRealTime    SourceMode = "realtime"
)

// Recording is the durable artifact for one saved recording. Immutable once
// written.
type Recording struct {
	Filename   string          `json:"filename"`
	CreatedAt  time.Time       `json:"created_at"`
	Duration   float64         `json:"duration"`
	SampleRate int             `json:"sample_rate"`
	Channels   int             `json:"channels"`
	SourceMode SourceMode      `json:"source_mode"`
	SessionID  string          `json:"session_id,omitempty"`
	Params     params.Snapshot `json:"processing_parameters"`
	Audio      []byte          `json:"audio_base64"`
}

// Summary is the listing view of a recording, without the audio payload.
type Summary struct {
	Filename   string     `json:"filename"`
	CreatedAt  time.Time  `json:"created_at"`
	Duration   float64    `json:"duration"`
	SampleRate int        `json:"sample_rate"`
	Channels   int        `json:"channels"`
	SourceMode SourceMode `json:"source_mode"`
}

// Store persists and retrieves recordings.
type Store interface {
	Save(ctx context.Context, rec Recording) error
	List(ctx context.Context) ([]Summary, error)
	Get(ctx context.Context, filename string) (Recording, error)
	Close() error
}
