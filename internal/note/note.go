// Package note edits a note as a list of cells. A cell is a paragraph:
// cells are separated by one or more blank lines and merged back with a
// single blank line between them.
package note

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// EmptyCell is the placeholder inserted by InsertAt.
const EmptyCell = "(empty)"

// ErrOutOfRange is returned for a cell position that does not exist.
var ErrOutOfRange = errors.New("cell position out of range")

var separator = regexp.MustCompile(`\n(?:[ \t]*\n)+`)

// Note holds the cells of one text.
type Note struct {
	cells []string
}

// Split parses text into cells. Blank text has no cells.
func Split(text string) *Note {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Trim(text, "\n")
	if strings.TrimSpace(text) == "" {
		return &Note{}
	}
	return &Note{cells: separator.Split(text, -1)}
}

// Text merges the cells back into note text.
func (n *Note) Text() string {
	return strings.Join(n.cells, "\n\n")
}

func (n *Note) Len() int {
	return len(n.cells)
}

// Cells returns a copy of the cells.
func (n *Note) Cells() []string {
	return append([]string(nil), n.cells...)
}

// Cell returns the cell at pos.
func (n *Note) Cell(pos int) (string, error) {
	if err := n.check(pos); err != nil {
		return "", err
	}
	return n.cells[pos], nil
}

// Set replaces the cell at pos.
func (n *Note) Set(pos int, content string) error {
	if err := n.check(pos); err != nil {
		return err
	}
	n.cells[pos] = content
	return nil
}

// Append adds a cell at the end.
func (n *Note) Append(content string) {
	n.cells = append(n.cells, content)
}

// InsertAt inserts an EmptyCell before pos; pos == Len() appends.
func (n *Note) InsertAt(pos int) error {
	if pos < 0 || pos > len(n.cells) {
		return fmt.Errorf("%w: %d (have %d cells)", ErrOutOfRange, pos, len(n.cells))
	}
	n.cells = append(n.cells, "")
	copy(n.cells[pos+1:], n.cells[pos:])
	n.cells[pos] = EmptyCell
	return nil
}

// Delete removes the cells at the given positions, which refer to the
// cells before any removal. Duplicates are ignored. Nothing is removed if
// a position is out of range.
func (n *Note) Delete(positions ...int) error {
	for _, pos := range positions {
		if err := n.check(pos); err != nil {
			return err
		}
	}
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)

	removed := 0
	for i, pos := range sorted {
		if i > 0 && pos == sorted[i-1] {
			continue
		}
		at := pos - removed
		n.cells = append(n.cells[:at], n.cells[at+1:]...)
		removed++
	}
	return nil
}

func (n *Note) check(pos int) error {
	if pos < 0 || pos >= len(n.cells) {
		return fmt.Errorf("%w: %d (have %d cells)", ErrOutOfRange, pos, len(n.cells))
	}
	return nil
}
