package storage

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise a
// filesystem store rooted at dir.
func NewStore(ctx context.Context, databaseURL, dir string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewFilesystemStore(dir)
	}
	return NewPostgresStore(ctx, databaseURL)
}
