package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FilesystemStore keeps one JSON record per recording under a directory, the
// way the original uploads/ folder worked. Suitable for local/dev use.
type FilesystemStore struct {
	dir string
}

func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &FilesystemStore{dir: dir}, nil
}

func (s *FilesystemStore) Save(_ context.Context, rec Recording) error {
	if rec.Filename == "" {
		return fmt.Errorf("recording filename is empty")
	}
	// Filenames are server-generated, but never trust them as paths.
	if filepath.Base(rec.Filename) != rec.Filename {
		return fmt.Errorf("invalid recording filename %q", rec.Filename)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	path := filepath.Join(s.dir, rec.Filename+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}
	return nil
}

func (s *FilesystemStore) List(_ context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read recordings dir: %w", err)
	}
	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := s.read(entry.Name())
		if err != nil {
			// Skip unreadable records rather than failing the whole listing.
			continue
		}
		summaries = append(summaries, Summary{
			Filename:   rec.Filename,
			CreatedAt:  rec.CreatedAt,
			Duration:   rec.Duration,
			SampleRate: rec.SampleRate,
			Channels:   rec.Channels,
			SourceMode: rec.SourceMode,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (s *FilesystemStore) Get(_ context.Context, filename string) (Recording, error) {
	if filepath.Base(filename) != filename {
		return Recording{}, ErrNotFound
	}
	rec, err := s.read(filename + ".json")
	if err != nil {
		if os.IsNotExist(err) {
			return Recording{}, ErrNotFound
		}
		return Recording{}, err
	}
	return rec, nil
}

func (s *FilesystemStore) Close() error { return nil }

func (s *FilesystemStore) read(name string) (Recording, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return Recording{}, err
	}
	var rec Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return Recording{}, fmt.Errorf("decode recording %s: %w", name, err)
	}
	return rec, nil
}

var _ Store = (*FilesystemStore)(nil)

// NewFilename produces a unique, timestamped recording filename.
func NewFilename(now time.Time, suffix string) string {
	return fmt.Sprintf("recording_%s_%s.wav", now.UTC().Format("20060102_150405"), suffix)
}
