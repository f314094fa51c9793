// Package storage holds the cached copies of synchronized files.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Extension is the only suffix recognized as a plain-text note.
const Extension = ".txt"

// ErrNotFound is returned by Open when no content is cached under a name.
var ErrNotFound = errors.New("content not found")

// Store persists file content under flat names.
type Store interface {
	// Put replaces the content stored under name and returns the bytes written.
	Put(ctx context.Context, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Remove deletes name. Removing a missing name is not an error.
	Remove(ctx context.Context, name string) error
}

// LocalName derives the cached file name for a remote file:
// "{fileID}_{name}.txt". The extension is appended even if name already has it.
// Drive allows slashes in names, so path separators become '_'; two remote
// names that differ only in separators map to the same local name.
func LocalName(fileID, name string) string {
	return flatten(fileID + "_" + name + Extension)
}

func flatten(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
}
