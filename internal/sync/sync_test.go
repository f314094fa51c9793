package sync

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chmdznr/drivetext/internal/db"
	"github.com/chmdznr/drivetext/internal/note"
	"github.com/chmdznr/drivetext/internal/storage"
	"github.com/chmdznr/drivetext/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeRemote serves a fixed listing and counts exports.
type fakeRemote struct {
	mu         sync.Mutex
	files      []models.RemoteFile
	content    map[string]string
	exportErrs map[string]error
	listErr    error
	exports    []string
}

func newFakeRemote(files ...models.RemoteFile) *fakeRemote {
	r := &fakeRemote{content: map[string]string{}, exportErrs: map[string]error{}}
	for _, f := range files {
		r.put(f, "content of "+f.ID)
	}
	return r
}

func (r *fakeRemote) put(f models.RemoteFile, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.files {
		if r.files[i].ID == f.ID {
			r.files[i] = f
			r.content[f.ID] = content
			return
		}
	}
	r.files = append(r.files, f)
	r.content[f.ID] = content
}

func (r *fakeRemote) ListTextFiles(ctx context.Context) ([]models.RemoteFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]models.RemoteFile(nil), r.files...), nil
}

func (r *fakeRemote) Export(ctx context.Context, fileID string) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exports = append(r.exports, fileID)
	if err := r.exportErrs[fileID]; err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(r.content[fileID])), nil
}

func (r *fakeRemote) exportCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exports)
}

type fixture struct {
	db     *db.DB
	dir    string
	remote *fakeRemote
	syncer *Syncer
}

func newFixture(t *testing.T, files ...models.RemoteFile) *fixture {
	t.Helper()
	tmp := t.TempDir()

	database, err := db.Open(filepath.Join(tmp, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	dir := filepath.Join(tmp, "notes")
	store, err := storage.NewDirStore(dir)
	require.NoError(t, err)

	remote := newFakeRemote(files...)
	syncer := NewSyncer(database, remote, store, nil, &SyncerConfig{
		Now: func() time.Time { return t0.Add(time.Hour) },
	})
	return &fixture{db: database, dir: dir, remote: remote, syncer: syncer}
}

func (f *fixture) readLocal(t *testing.T, fileID, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(f.dir, storage.LocalName(fileID, name)))
	require.NoError(t, err)
	return string(b)
}

func TestNeedsUpdate(t *testing.T) {
	tests := []struct {
		name     string
		remote   time.Time
		prev     *models.RemoteData
		expected bool
	}{
		{name: "no record", remote: t0, prev: nil, expected: true},
		{name: "remote newer", remote: t0.Add(time.Millisecond), prev: &models.RemoteData{ModifiedAt: t0}, expected: true},
		{name: "same time", remote: t0, prev: &models.RemoteData{ModifiedAt: t0}, expected: false},
		{name: "remote older", remote: t0.Add(-time.Hour), prev: &models.RemoteData{ModifiedAt: t0}, expected: false},
		{name: "registered but never synced", remote: t0, prev: &models.RemoteData{}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NeedsUpdate(models.RemoteFile{ID: "x", ModifiedAt: tt.remote}, tt.prev)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestReconcileFirstSync(t *testing.T) {
	f := newFixture(t,
		models.RemoteFile{ID: "a", Name: "notes.txt", ModifiedAt: t0},
		models.RemoteFile{ID: "b", Name: "notes.md", ModifiedAt: t0},
		models.RemoteFile{ID: "c", Name: "todo.txt", ModifiedAt: t0.Add(time.Minute)},
	)
	ctx := context.Background()

	result, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, 3, result.Listed)
	assert.Equal(t, 1, result.Filtered)
	assert.Equal(t, 2, result.Downloaded)
	assert.Equal(t, []string{"a", "c"}, f.remote.exports)

	assert.Equal(t, "content of a", f.readLocal(t, "a", "notes.txt"))
	assert.Equal(t, "content of c", f.readLocal(t, "c", "todo.txt"))
	_, err = os.Stat(filepath.Join(f.dir, storage.LocalName("b", "notes.md")))
	assert.True(t, os.IsNotExist(err))

	data, err := f.db.GetData(ctx, "c")
	require.NoError(t, err)
	assert.True(t, data.ModifiedAt.Equal(t0.Add(time.Minute)))

	_, err = f.db.GetData(ctx, "b")
	assert.ErrorIs(t, err, db.ErrNotFound)

	entries, err := f.db.Entries(ctx, models.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, e.SyncedAt.Equal(t0.Add(time.Hour)))
		assert.EqualValues(t, len("content of "+e.FileID), e.Size)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t,
		models.RemoteFile{ID: "a", Name: "a.txt", ModifiedAt: t0},
		models.RemoteFile{ID: "b", Name: "b.txt", ModifiedAt: t0},
	)
	ctx := context.Background()

	_, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.remote.exportCount())

	result, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Downloaded)
	assert.Equal(t, 2, result.Unchanged)
	assert.Equal(t, 2, f.remote.exportCount())
}

func TestReconcileDownloadsOnlyNewer(t *testing.T) {
	tests := []struct {
		name         string
		modifiedAt   time.Time
		wantDownload bool
	}{
		{name: "newer", modifiedAt: t0.Add(time.Second), wantDownload: true},
		{name: "equal", modifiedAt: t0, wantDownload: false},
		{name: "older", modifiedAt: t0.Add(-time.Second), wantDownload: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, models.RemoteFile{ID: "a", Name: "a.txt", ModifiedAt: t0})
			ctx := context.Background()
			_, err := f.syncer.Reconcile(ctx)
			require.NoError(t, err)

			f.remote.put(models.RemoteFile{ID: "a", Name: "a.txt", ModifiedAt: tt.modifiedAt}, "changed")
			result, err := f.syncer.Reconcile(ctx)
			require.NoError(t, err)

			if tt.wantDownload {
				assert.Equal(t, 1, result.Downloaded)
				assert.Equal(t, "changed", f.readLocal(t, "a", "a.txt"))
			} else {
				assert.Equal(t, 0, result.Downloaded)
				assert.Equal(t, "content of a", f.readLocal(t, "a", "a.txt"))
			}

			data, err := f.db.GetData(ctx, "a")
			require.NoError(t, err)
			if tt.wantDownload {
				assert.True(t, data.ModifiedAt.Equal(tt.modifiedAt))
			} else {
				assert.True(t, data.ModifiedAt.Equal(t0))
			}
		})
	}
}

func TestReconcileContinuesAfterFailure(t *testing.T) {
	f := newFixture(t,
		models.RemoteFile{ID: "a", Name: "a.txt", ModifiedAt: t0},
		models.RemoteFile{ID: "b", Name: "b.txt", ModifiedAt: t0},
		models.RemoteFile{ID: "c", Name: "c.txt", ModifiedAt: t0},
	)
	exportErr := errors.New("network down")
	f.remote.exportErrs["a"] = exportErr
	ctx := context.Background()

	result, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Downloaded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "a", result.Failed[0].File.ID)
	assert.ErrorIs(t, result.Err(), exportErr)

	// the failed file has no record, so the next pass retries it
	_, ok, err := f.db.LookupData(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	delete(f.remote.exportErrs, "a")
	result, err = f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, 2, result.Unchanged)
	assert.NoError(t, result.Err())
}

func TestReconcileListFailure(t *testing.T) {
	f := newFixture(t)
	f.remote.listErr = errors.New("unauthorized")

	result, err := f.syncer.Reconcile(context.Background())
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestReconcileCancelled(t *testing.T) {
	f := newFixture(t, models.RemoteFile{ID: "a", Name: "a.txt", ModifiedAt: t0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.syncer.Reconcile(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Downloaded)
	assert.Equal(t, 0, f.remote.exportCount())
}

func TestReconcileRename(t *testing.T) {
	f := newFixture(t, models.RemoteFile{ID: "a", Name: "old.txt", ModifiedAt: t0})
	ctx := context.Background()
	_, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)

	f.remote.put(models.RemoteFile{ID: "a", Name: "new.txt", ModifiedAt: t0.Add(time.Minute)}, "renamed")
	result, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Downloaded)

	assert.Equal(t, "renamed", f.readLocal(t, "a", "new.txt"))
	_, err = os.Stat(filepath.Join(f.dir, storage.LocalName("a", "old.txt")))
	assert.True(t, os.IsNotExist(err))

	data, err := f.db.GetData(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "new.txt", data.Name)
}

func TestReconcileRenameToSameLocalName(t *testing.T) {
	f := newFixture(t, models.RemoteFile{ID: "a", Name: "x/y.txt", ModifiedAt: t0})
	ctx := context.Background()
	_, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "content of a", f.readLocal(t, "a", "x/y.txt"))

	f.remote.put(models.RemoteFile{ID: "a", Name: "x_y.txt", ModifiedAt: t0.Add(time.Minute)}, "flattened")
	result, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, "flattened", f.readLocal(t, "a", "x_y.txt"))

	id, err := f.db.GetID(ctx, "x_y.txt", "a")
	require.NoError(t, err)
	e, rc, err := f.syncer.Open(ctx, id)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "x_y.txt", e.Name)

	// the record is current, so a later pass must not leave the file missing
	result, err = f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, "flattened", f.readLocal(t, "a", "x_y.txt"))
}

func TestRemove(t *testing.T) {
	f := newFixture(t,
		models.RemoteFile{ID: "a", Name: "a.txt", ModifiedAt: t0},
		models.RemoteFile{ID: "b", Name: "b.txt", ModifiedAt: t0},
	)
	ctx := context.Background()
	_, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)

	idA, err := f.db.GetID(ctx, "a.txt", "a")
	require.NoError(t, err)
	idB, err := f.db.GetID(ctx, "b.txt", "b")
	require.NoError(t, err)

	n, err := f.syncer.Remove(ctx, []int64{idA, 12345})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.db.GetEntry(ctx, idA)
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = os.Stat(filepath.Join(f.dir, storage.LocalName("a", "a.txt")))
	assert.True(t, os.IsNotExist(err))

	_, err = f.db.GetEntry(ctx, idB)
	assert.NoError(t, err)
	assert.Equal(t, "content of b", f.readLocal(t, "b", "b.txt"))

	n, err = f.syncer.Remove(ctx, []int64{12345})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen(t *testing.T) {
	f := newFixture(t, models.RemoteFile{ID: "a", Name: "a.txt", ModifiedAt: t0})
	ctx := context.Background()
	_, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)

	id, err := f.db.GetID(ctx, "a.txt", "a")
	require.NoError(t, err)

	e, rc, err := f.syncer.Open(ctx, id)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", e.Name)
	assert.Equal(t, "content of a", string(body))

	_, _, err = f.syncer.Open(ctx, id+1)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestWatchPollsUntilCancelled(t *testing.T) {
	f := newFixture(t, models.RemoteFile{ID: "a", Name: "a.txt", ModifiedAt: t0})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var passes []*Result
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.syncer.Watch(ctx, WatchConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2},
			func(r *Result, err error) {
				assert.NoError(t, err)
				passes = append(passes, r)
				if len(passes) == 3 {
					cancel()
				}
			})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}

	require.Len(t, passes, 3)
	assert.Equal(t, 1, passes[0].Downloaded)
	assert.Equal(t, 0, passes[1].Downloaded)
	assert.Equal(t, 1, passes[2].Unchanged)
	assert.Equal(t, 1, f.remote.exportCount())
}

func TestCreateLocalNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.syncer.Create(ctx, "ideas", "first\n\nsecond")
	require.NoError(t, err)
	assert.Equal(t, "ideas.txt", e.Name)
	assert.True(t, IsLocal(e.FileID))
	assert.True(t, e.ModifiedAt.IsZero())
	assert.EqualValues(t, len("first\n\nsecond"), e.Size)
	assert.Equal(t, "first\n\nsecond", f.readLocal(t, e.FileID, "ideas.txt"))

	other, err := f.syncer.Create(ctx, "ideas.txt", "")
	require.NoError(t, err)
	assert.NotEqual(t, e.FileID, other.FileID)
	assert.Equal(t, "ideas.txt", other.Name)

	_, err = f.syncer.Create(ctx, "  ", "x")
	assert.Error(t, err)

	// a sync pass leaves local notes alone
	_, err = f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", f.readLocal(t, e.FileID, "ideas.txt"))
}

func TestEditCells(t *testing.T) {
	f := newFixture(t, models.RemoteFile{ID: "a", Name: "list.txt", ModifiedAt: t0})
	f.remote.put(models.RemoteFile{ID: "a", Name: "list.txt", ModifiedAt: t0}, "one\n\ntwo\n\nthree")
	ctx := context.Background()
	_, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)

	id, err := f.db.GetID(ctx, "list.txt", "a")
	require.NoError(t, err)

	e, err := f.syncer.Edit(ctx, id, func(n *note.Note) error {
		if err := n.Set(0, "ONE"); err != nil {
			return err
		}
		if err := n.Delete(1); err != nil {
			return err
		}
		return n.InsertAt(1)
	})
	require.NoError(t, err)
	want := "ONE\n\n" + note.EmptyCell + "\n\nthree"
	assert.Equal(t, want, f.readLocal(t, "a", "list.txt"))
	assert.EqualValues(t, len(want), e.Size)

	// the remote time is unchanged, so the edit survives an unchanged remote
	result, err := f.syncer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, want, f.readLocal(t, "a", "list.txt"))

	// a failed edit writes nothing
	_, err = f.syncer.Edit(ctx, id, func(n *note.Note) error { return n.Delete(7) })
	assert.ErrorIs(t, err, note.ErrOutOfRange)
	assert.Equal(t, want, f.readLocal(t, "a", "list.txt"))

	_, err = f.syncer.Edit(ctx, id+100, func(n *note.Note) error { return nil })
	assert.ErrorIs(t, err, db.ErrNotFound)
}
