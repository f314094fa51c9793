package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chmdznr/drivetext/pkg/models"
)

// Cursor iterates over a listing of entries. It holds an open statement
// until Close is called; callers should defer Close right after Query.
//
//	cur, err := db.Query(ctx, opts)
//	if err != nil { ... }
//	defer cur.Close()
//	for cur.Next() {
//		e := cur.Entry()
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor struct {
	rows   *sql.Rows
	cur    models.Entry
	err    error
	closed bool
}

// Query lists entries, most recently inserted first.
func (db *DB) Query(ctx context.Context, opts models.QueryOptions) (*Cursor, error) {
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString(`SELECT _id, file_id, file_name, synced_at, modified_at, size FROM entries`)
	if opts.NameContains != "" {
		q.WriteString(` WHERE file_name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(opts.NameContains)+"%")
	}
	q.WriteString(` ORDER BY _id DESC`)
	if opts.Limit > 0 {
		q.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}

	rows, err := db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return &Cursor{rows: rows}, nil
}

// Entries drains a Query into a slice.
func (db *DB) Entries(ctx context.Context, opts models.QueryOptions) ([]models.Entry, error) {
	cur, err := db.Query(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var entries []models.Entry
	for cur.Next() {
		entries = append(entries, cur.Entry())
	}
	return entries, cur.Err()
}

// Next advances to the next entry. It returns false at the end of the
// listing, on error, or once the cursor is closed.
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}

	var syncedAt, modifiedAt int64
	var e models.Entry
	if err := c.rows.Scan(&e.ID, &e.FileID, &e.Name, &syncedAt, &modifiedAt, &e.Size); err != nil {
		c.err = fmt.Errorf("failed to scan entry: %w", err)
		return false
	}
	e.SyncedAt = fromMillis(syncedAt)
	e.ModifiedAt = fromMillis(modifiedAt)
	c.cur = e
	return true
}

// Entry returns the entry at the current position.
func (c *Cursor) Entry() models.Entry {
	return c.cur
}

// Err returns the error, if any, that stopped iteration.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying statement. Calling it more than once is a no-op.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
