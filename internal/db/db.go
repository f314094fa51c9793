package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chmdznr/drivetext/pkg/models"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB represents a database connection
type DB struct {
	*sql.DB
}

// New opens the database for a project, stored as "<project>.db" in the working directory.
func New(projectName string) (*DB, error) {
	log.Printf("Initializing database for project: %s\n", projectName)
	return Open(fmt.Sprintf("%s.db", projectName))
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			name TEXT PRIMARY KEY,
			local_dir TEXT NOT NULL DEFAULT '',
			credentials_path TEXT NOT NULL DEFAULT '',
			token_path TEXT NOT NULL DEFAULT '',
			endpoint TEXT NOT NULL DEFAULT '',
			bucket TEXT NOT NULL DEFAULT '',
			folder TEXT NOT NULL DEFAULT '',
			access_key TEXT NOT NULL DEFAULT '',
			secret_key TEXT NOT NULL DEFAULT '',
			secure INTEGER NOT NULL DEFAULT 1
		);
		CREATE TABLE IF NOT EXISTS entries (
			_id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id TEXT NOT NULL UNIQUE,
			file_name TEXT NOT NULL,
			synced_at INTEGER NOT NULL DEFAULT 0,
			modified_at INTEGER NOT NULL DEFAULT 0,
			size INTEGER NOT NULL DEFAULT 0
		);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	return err
}

// Timestamps are stored as Unix milliseconds; 0 means "never".
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// GetProject retrieves a project by name
func (db *DB) GetProject(ctx context.Context, name string) (*models.Project, error) {
	var project models.Project
	err := db.QueryRowContext(ctx, `
		SELECT name, local_dir, credentials_path, token_path,
			endpoint, bucket, folder, access_key, secret_key, secure
		FROM projects WHERE name = ?
	`, name).Scan(
		&project.Name,
		&project.LocalDir,
		&project.CredentialsPath,
		&project.TokenPath,
		&project.Destination.Endpoint,
		&project.Destination.Bucket,
		&project.Destination.Folder,
		&project.Destination.AccessKey,
		&project.Destination.SecretKey,
		&project.Destination.Secure,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %q: %w", name, err)
	}
	return &project, nil
}

// CreateProject creates a new project
func (db *DB) CreateProject(ctx context.Context, project *models.Project) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO projects (name, local_dir, credentials_path, token_path,
			endpoint, bucket, folder, access_key, secret_key, secure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		project.Name,
		project.LocalDir,
		project.CredentialsPath,
		project.TokenPath,
		project.Destination.Endpoint,
		project.Destination.Bucket,
		project.Destination.Folder,
		project.Destination.AccessKey,
		project.Destination.SecretKey,
		project.Destination.Secure,
	)
	return err
}

// GetEntry fetches a record by its local row id.
func (db *DB) GetEntry(ctx context.Context, rowID int64) (*models.Entry, error) {
	var (
		e                    models.Entry
		syncedAt, modifiedAt int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT _id, file_id, file_name, synced_at, modified_at, size
		FROM entries WHERE _id = ?
	`, rowID).Scan(&e.ID, &e.FileID, &e.Name, &syncedAt, &modifiedAt, &e.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %d: %w", rowID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %d: %w", rowID, err)
	}
	e.SyncedAt = fromMillis(syncedAt)
	e.ModifiedAt = fromMillis(modifiedAt)
	return &e, nil
}

// GetData returns the comparison data recorded for a remote file id,
// or ErrNotFound if the file has never been recorded.
func (db *DB) GetData(ctx context.Context, fileID string) (*models.RemoteData, error) {
	data, ok, err := db.LookupData(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}
	return data, nil
}

// LookupData is GetData with absence reported as ok == false instead of an error.
func (db *DB) LookupData(ctx context.Context, fileID string) (*models.RemoteData, bool, error) {
	var (
		data       models.RemoteData
		modifiedAt int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT file_name, modified_at FROM entries WHERE file_id = ?
	`, fileID).Scan(&data.Name, &modifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up file %s: %w", fileID, err)
	}
	data.ModifiedAt = fromMillis(modifiedAt)
	return &data, true, nil
}

// GetID resolves the row id for a remote file, inserting an empty record
// (zero timestamps) the first time the file id is seen.
func (db *DB) GetID(ctx context.Context, name, fileID string) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO entries (file_id, file_name) VALUES (?, ?)
		ON CONFLICT(file_id) DO NOTHING
	`, fileID, name)
	if err != nil {
		return 0, fmt.Errorf("failed to register file %s: %w", fileID, err)
	}

	var id int64
	err = db.QueryRowContext(ctx, `SELECT _id FROM entries WHERE file_id = ?`, fileID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve file %s: %w", fileID, err)
	}
	return id, nil
}

// UpdateEntry overwrites the bookkeeping fields of an existing row.
func (db *DB) UpdateEntry(ctx context.Context, rowID int64, name string, syncedAt, modifiedAt time.Time, size int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE entries
		SET file_name = ?, synced_at = ?, modified_at = ?, size = ?
		WHERE _id = ?
	`, name, toMillis(syncedAt), toMillis(modifiedAt), size, rowID)
	if err != nil {
		return fmt.Errorf("failed to update entry %d: %w", rowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("entry %d: %w", rowID, ErrNotFound)
	}
	return nil
}

// DeleteEntries removes the given rows in a single transaction and returns
// how many existed. Cached content is left to the caller.
func (db *DB) DeleteEntries(ctx context.Context, rowIDs []int64) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM entries WHERE _id = ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var deleted int64
	for _, id := range rowIDs {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to delete entry %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// GetStats returns statistics about the synchronized files
func (db *DB) GetStats(ctx context.Context) (*models.Stats, error) {
	var (
		stats    models.Stats
		lastSync int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(size), 0),
			COALESCE(MAX(synced_at), 0)
		FROM entries
	`).Scan(&stats.TotalFiles, &stats.TotalSize, &lastSync)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	stats.LastSyncedAt = fromMillis(lastSync)
	return &stats, nil
}
