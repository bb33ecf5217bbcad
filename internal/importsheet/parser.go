// Package importsheet reads uploaded session sheets (xlsx or csv) and turns
// each row into a reconcile.Mapping describing the declared parent/child
// structure of a schedule.
package importsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/session-planner/internal/reconcile"
	"github.com/example/session-planner/internal/sessiontime"
)

var (
	// ErrMissingColumns indicates the header row lacks a required column.
	ErrMissingColumns = errors.New("importsheet: missing required columns")
	// ErrUnsupportedFormat indicates the file is neither a workbook nor csv.
	ErrUnsupportedFormat = errors.New("importsheet: unsupported file format")
	// ErrEmptySheet indicates the first sheet has no header row.
	ErrEmptySheet = errors.New("importsheet: sheet is empty")
)

const (
	columnTitle       = "title"
	columnParent      = "parent session"
	columnDate        = "date"
	columnStartTime   = "start time"
	columnEndTime     = "end time"
	columnLocation    = "location"
	maxSheetBytesRead = 32 << 20
)

var requiredColumns = []string{columnTitle, columnDate, columnStartTime, columnEndTime}

// Options tunes how cell values are interpreted.
type Options struct {
	// Location is the event's display zone. Nil uses the process-local zone.
	Location *time.Location
}

// Sheet is the outcome of parsing one upload.
type Sheet struct {
	Mappings []reconcile.Mapping
	// Rows counts data rows below the header, including skipped ones.
	Rows int
	// Skipped counts rows without a title.
	Skipped int
}

// Parse reads the first sheet of the upload. The format is chosen from the
// file extension.
func Parse(r io.Reader, filename string, opts Options) (Sheet, error) {
	rows, err := readRows(r, filename)
	if err != nil {
		return Sheet{}, err
	}
	return ParseRows(rows, opts)
}

// ParseRows builds mappings from a row grid whose first row is the header.
func ParseRows(rows [][]string, opts Options) (Sheet, error) {
	if len(rows) == 0 {
		return Sheet{}, ErrEmptySheet
	}

	columns := indexHeader(rows[0])
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Sheet{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	sheet := Sheet{Rows: len(rows) - 1}
	for _, row := range rows[1:] {
		cell := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		title := cell(columnTitle)
		if title == "" {
			sheet.Skipped++
			continue
		}

		day, ok := sessiontime.NormalizeDate(cell(columnDate), opts.Location)
		start := sessiontime.NormalizeTime(cell(columnStartTime), opts.Location)
		end := sessiontime.NormalizeTime(cell(columnEndTime), opts.Location)

		sheet.Mappings = append(sheet.Mappings, reconcile.NewMapping(
			sessiontime.DayKey(day, ok),
			title,
			cell(columnLocation),
			start,
			end,
			cell(columnParent),
		))
	}
	return sheet, nil
}

// indexHeader maps normalised column names to their position. The first
// occurrence of a repeated name wins.
func indexHeader(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, raw := range header {
		name := canonicalColumn(raw)
		if name == "" {
			continue
		}
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}
	return columns
}

var columnAliases = map[string]string{
	"title":         columnTitle,
	"parentsession": columnParent,
	"parent":        columnParent,
	"date":          columnDate,
	"starttime":     columnStartTime,
	"start":         columnStartTime,
	"endtime":       columnEndTime,
	"end":           columnEndTime,
	"location":      columnLocation,
}

// canonicalColumn compares headers ignoring case, whitespace, underscores and
// hyphens.
func canonicalColumn(raw string) string {
	raw = strings.TrimPrefix(raw, "\ufeff")
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch r {
		case ' ', '\t', '\n', '\r', '_', '-', '\u00a0':
			continue
		}
		b.WriteRune(r)
	}
	return columnAliases[b.String()]
}

func readRows(r io.Reader, filename string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return readWorkbook(r)
	case ".csv":
		return readDelimited(r, ',')
	case ".tsv", ".tab":
		return readDelimited(r, '\t')
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
}

func readWorkbook(r io.Reader) ([][]string, error) {
	book, err := excelize.OpenReader(io.LimitReader(r, maxSheetBytesRead))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	// Raw values keep times and dates as serial numbers instead of the
	// workbook's locale dependent display format.
	rows, err := book.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readDelimited(r io.Reader, comma rune) ([][]string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSheetBytesRead))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited upload: %w", err)
	}
	return rows, nil
}
