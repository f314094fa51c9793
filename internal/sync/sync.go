package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chmdznr/drivetext/internal/db"
	"github.com/chmdznr/drivetext/internal/logger"
	"github.com/chmdznr/drivetext/internal/storage"
	"github.com/chmdznr/drivetext/pkg/models"
	"github.com/chmdznr/drivetext/pkg/utils"
)

// Remote is the remote file service the syncer mirrors from.
type Remote interface {
	ListTextFiles(ctx context.Context) ([]models.RemoteFile, error)
	Export(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Syncer handles file synchronization operations
type Syncer struct {
	db           *db.DB
	remote       Remote
	store        storage.Store
	logger       logger.Logger
	showProgress bool
	now          func() time.Time
}

// SyncerConfig holds configuration for the syncer
type SyncerConfig struct {
	ShowProgress bool
	// Now supplies the local sync timestamp; time.Now when nil.
	Now func() time.Time
}

// DefaultSyncerConfig returns default syncer configuration
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		ShowProgress: true,
		Now:          time.Now,
	}
}

// NewSyncer creates a new syncer instance
func NewSyncer(db *db.DB, remote Remote, store storage.Store, log logger.Logger, config *SyncerConfig) *Syncer {
	if config == nil {
		defaultConfig := DefaultSyncerConfig()
		config = &defaultConfig
	}
	if log == nil {
		log = logger.Discard()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Syncer{
		db:           db,
		remote:       remote,
		store:        store,
		logger:       log,
		showProgress: config.ShowProgress,
		now:          now,
	}
}

// FileError records why one file could not be synchronized.
type FileError struct {
	File models.RemoteFile
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.File.Name, e.File.ID, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Result summarizes one reconciliation pass.
type Result struct {
	Listed     int
	Filtered   int // listed but without the text extension
	Unchanged  int
	Downloaded int
	Bytes      int64
	Failed     []*FileError
	Duration   time.Duration
}

// Err joins the per-file failures, or returns nil if every file succeeded.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func (r *Result) String() string {
	return fmt.Sprintf("%d listed, %d downloaded (%s), %d unchanged, %d skipped, %d failed in %s",
		r.Listed, r.Downloaded, utils.FormatSize(r.Bytes), r.Unchanged, r.Filtered,
		len(r.Failed), utils.FormatDuration(r.Duration))
}

// IsTextFile reports whether a remote name carries the recognized text extension.
// Drive tags other formats (markdown, csv exports) as text/plain too.
func IsTextFile(name string) bool {
	return strings.HasSuffix(name, storage.Extension)
}

// NeedsUpdate reports whether remote is strictly newer than what was last
// recorded. A file with no record always needs an update.
func NeedsUpdate(remote models.RemoteFile, prev *models.RemoteData) bool {
	if prev == nil {
		return true
	}
	return remote.ModifiedAt.After(prev.ModifiedAt)
}

// Reconcile runs one pass: list remote text files and download every file
// whose remote modification time is newer than the recorded one.
//
// A failure on one file is logged and recorded in the result; the pass
// continues with the next file. The returned error is non-nil only when
// the listing fails or ctx is cancelled; files handled before the
// cancellation keep their updated records.
func (s *Syncer) Reconcile(ctx context.Context) (*Result, error) {
	start := time.Now()
	files, err := s.remote.ListTextFiles(ctx)
	if err != nil {
		return nil, s.logger.Error(err, "Failed to list remote files")
	}

	result := &Result{Listed: len(files)}
	s.logger.Console("Found %d remote text files", len(files))

	bar := newProgress(s.showProgress, len(files))
	defer bar.finish()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		bar.increment()

		if !IsTextFile(f.Name) {
			result.Filtered++
			s.logger.Console("Skipping %s: not a %s file", f.Name, storage.Extension)
			continue
		}

		prev, ok, err := s.db.LookupData(ctx, f.ID)
		if err != nil {
			result.fail(s.logger, f, err)
			continue
		}
		if ok && !NeedsUpdate(f, prev) {
			result.Unchanged++
			continue
		}

		n, err := s.download(ctx, f, prev)
		if err != nil {
			if ctx.Err() != nil {
				result.Duration = time.Since(start)
				return result, ctx.Err()
			}
			result.fail(s.logger, f, err)
			continue
		}
		result.Downloaded++
		result.Bytes += n
		s.logger.Console("Downloaded: %s (%s)", f.Name, utils.FormatSize(n))
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Result) fail(log logger.Logger, f models.RemoteFile, err error) {
	fe := &FileError{File: f, Err: err}
	r.Failed = append(r.Failed, fe)
	log.Error(err, "Failed to sync %s", f.Name)
}

// download fetches f, stores it and records the new timestamps. The record
// is only written after the content is in place.
func (s *Syncer) download(ctx context.Context, f models.RemoteFile, prev *models.RemoteData) (int64, error) {
	rc, err := s.remote.Export(ctx, f.ID)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	name := storage.LocalName(f.ID, f.Name)
	n, err := s.store.Put(ctx, name, rc)
	if err != nil {
		return 0, err
	}

	id, err := s.db.GetID(ctx, f.Name, f.ID)
	if err != nil {
		return 0, err
	}
	if err := s.db.UpdateEntry(ctx, id, f.Name, s.now(), f.ModifiedAt, n); err != nil {
		return 0, err
	}

	// A rename leaves the old copy under the previous name, unless both
	// names flatten to the same key.
	if prev != nil {
		if old := storage.LocalName(f.ID, prev.Name); old != name {
			if err := s.store.Remove(ctx, old); err != nil {
				s.logger.Error(err, "Failed to remove renamed copy %s", old)
			}
		}
	}
	return n, nil
}

// Remove deletes the given entries and their cached content. Unknown ids
// are skipped. It returns how many entries were deleted.
func (s *Syncer) Remove(ctx context.Context, rowIDs []int64) (int, error) {
	var entries []*models.Entry
	for _, id := range rowIDs {
		e, err := s.db.GetEntry(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			s.logger.Console("Skipping entry %d: not found", id)
			continue
		}
		if err != nil {
			return 0, err
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	n, err := s.db.DeleteEntries(ctx, ids)
	if err != nil {
		return 0, s.logger.Error(err, "Failed to delete entries")
	}

	var errs []error
	for _, e := range entries {
		name := storage.LocalName(e.FileID, e.Name)
		if err := s.store.Remove(ctx, name); err != nil {
			errs = append(errs, s.logger.Error(err, "Failed to remove %s", name))
		}
	}
	return int(n), errors.Join(errs...)
}

// Open returns an entry together with its cached content.
func (s *Syncer) Open(ctx context.Context, rowID int64) (*models.Entry, io.ReadCloser, error) {
	e, err := s.db.GetEntry(ctx, rowID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, storage.LocalName(e.FileID, e.Name))
	if err != nil {
		return e, nil, err
	}
	return e, rc, nil
}
