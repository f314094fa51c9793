// Package report renders entry listings as a table, CSV or an XLSX workbook.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/chmdznr/drivetext/pkg/models"
	"github.com/chmdznr/drivetext/pkg/utils"
	"github.com/xuri/excelize/v2"
)

// Entries is satisfied by *db.Cursor.
type Entries interface {
	Next() bool
	Entry() models.Entry
	Err() error
}

const sheetName = "Entries"

var header = []string{"ID", "File ID", "Name", "Remote Modified", "Synced", "Size"}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// WriteTable prints entries as aligned columns and returns how many were written.
func WriteTable(w io.Writer, entries Entries) (int, error) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tREMOTE MODIFIED\tSYNCED\tSIZE")

	count := 0
	for entries.Next() {
		e := entries.Entry()
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.ID, e.Name, formatTime(e.ModifiedAt), formatTime(e.SyncedAt), utils.FormatSize(e.Size))
		count++
	}
	if err := entries.Err(); err != nil {
		return count, err
	}
	return count, tw.Flush()
}

// WriteCSV writes entries with a header row. Times are RFC 3339 UTC.
func WriteCSV(w io.Writer, entries Entries) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	count := 0
	for entries.Next() {
		e := entries.Entry()
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.FileID,
			e.Name,
			rfc3339(e.ModifiedAt),
			rfc3339(e.SyncedAt),
			strconv.FormatInt(e.Size, 10),
		}
		if err := cw.Write(record); err != nil {
			return count, err
		}
		count++
	}
	if err := entries.Err(); err != nil {
		return count, err
	}
	cw.Flush()
	return count, cw.Error()
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteXLSX saves entries to a workbook at path with a single "Entries" sheet.
func WriteXLSX(path string, entries Entries) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return 0, err
	}

	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &row); err != nil {
		return 0, err
	}

	count := 0
	for entries.Next() {
		e := entries.Entry()
		cell, err := excelize.CoordinatesToCellName(1, count+2)
		if err != nil {
			return count, err
		}
		values := []interface{}{e.ID, e.FileID, e.Name, formatTime(e.ModifiedAt), formatTime(e.SyncedAt), e.Size}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return count, err
		}
		count++
	}
	if err := entries.Err(); err != nil {
		return count, err
	}

	if err := f.SaveAs(path); err != nil {
		return count, fmt.Errorf("failed to save %s: %w", path, err)
	}
	return count, nil
}
