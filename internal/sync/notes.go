package sync

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chmdznr/drivetext/internal/note"
	"github.com/chmdznr/drivetext/internal/storage"
	"github.com/chmdznr/drivetext/pkg/models"
	"github.com/google/uuid"
)

// LocalPrefix marks file ids of notes created locally rather than on Drive.
const LocalPrefix = "local-"

// IsLocal reports whether fileID belongs to a locally created note.
func IsLocal(fileID string) bool {
	return strings.HasPrefix(fileID, LocalPrefix)
}

// Create stores a new local note and registers it. The text extension is
// added to name when missing. Local notes have no remote modification time.
func (s *Syncer) Create(ctx context.Context, name, text string) (*models.Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("note name is required")
	}
	if !IsTextFile(name) {
		name += storage.Extension
	}
	fileID := LocalPrefix + uuid.NewString()

	n, err := s.store.Put(ctx, storage.LocalName(fileID, name), strings.NewReader(text))
	if err != nil {
		return nil, s.logger.Error(err, "Failed to write %s", name)
	}
	id, err := s.db.GetID(ctx, name, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.db.UpdateEntry(ctx, id, name, s.now(), time.Time{}, n); err != nil {
		return nil, err
	}
	s.logger.Console("Created %s (%s)", name, fileID)
	return s.db.GetEntry(ctx, id)
}

// Save replaces the cached content of an entry. The recorded remote
// modification time is kept, so a newer remote version still wins on the
// next pass.
func (s *Syncer) Save(ctx context.Context, rowID int64, text string) (*models.Entry, error) {
	e, err := s.db.GetEntry(ctx, rowID)
	if err != nil {
		return nil, err
	}
	n, err := s.store.Put(ctx, storage.LocalName(e.FileID, e.Name), strings.NewReader(text))
	if err != nil {
		return nil, s.logger.Error(err, "Failed to write %s", e.Name)
	}
	if err := s.db.UpdateEntry(ctx, e.ID, e.Name, e.SyncedAt, e.ModifiedAt, n); err != nil {
		return nil, err
	}
	e.Size = n
	return e, nil
}

// Edit loads an entry as cells, applies fn and saves the merged text.
// Nothing is written when fn fails.
func (s *Syncer) Edit(ctx context.Context, rowID int64, fn func(*note.Note) error) (*models.Entry, error) {
	_, rc, err := s.Open(ctx, rowID)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}

	n := note.Split(string(b))
	if err := fn(n); err != nil {
		return nil, err
	}
	return s.Save(ctx, rowID, n.Text())
}
