// Package parse reads a legacy workbook export (CSV) into raw rows.
// It carries no business logic: grouping, deduplication, and totals
// belong to the aggregator.
package parse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"planport/internal/domain"
)

// Required workbook columns. Matching is case-insensitive on the
// header row; extra columns are ignored.
const (
	ColProject     = "project"
	ColTask        = "task"
	ColGroup       = "group"
	ColAssignee    = "assignee"
	ColStatus      = "status"
	ColHours       = "hours"
	ColDescription = "description"
	ColDate        = "date"
)

// RowError describes a single malformed row. Rows with errors are
// skipped; they never abort the parse.
type RowError struct {
	Row    int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// Result is one full pass over the workbook.
type Result struct {
	Rows     []domain.RawRow
	Warnings []RowError
}

// Parser reads a workbook file. It holds no open file handle: each
// Rows call re-opens the path, so a parser can be reused across the
// migration and verification passes of one run.
type Parser struct {
	path string
}

// NewParser returns a parser for the given workbook path.
func NewParser(path string) *Parser {
	return &Parser{path: path}
}

// Rows parses the workbook. An unreadable file or a header row missing
// required columns is fatal; any other malformed row is recorded as a
// warning and skipped. An empty workbook yields an empty result.
func (p *Parser) Rows() (*Result, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Result{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	rowNum := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			result.Warnings = append(result.Warnings, RowError{Row: rowNum, Reason: fmt.Sprintf("unreadable record: %v", err)})
			continue
		}
		if isBlank(record) {
			continue
		}

		row, rowErr := parseRecord(rowNum, record, cols)
		if rowErr != nil {
			result.Warnings = append(result.Warnings, *rowErr)
			continue
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// mapHeader resolves column names to indices. Project, task, and hours
// are required; the rest are optional.
func mapHeader(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	for _, required := range []string{ColProject, ColTask, ColHours} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("workbook is missing required column %q", required)
		}
	}
	return cols, nil
}

func parseRecord(rowNum int, record []string, cols map[string]int) (domain.RawRow, *RowError) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	project := field(ColProject)
	if project == "" {
		return domain.RawRow{}, &RowError{Row: rowNum, Reason: "missing project name"}
	}
	title := field(ColTask)
	if title == "" {
		return domain.RawRow{}, &RowError{Row: rowNum, Reason: "missing task title"}
	}

	hours, err := ParseHours(field(ColHours))
	if err != nil {
		return domain.RawRow{}, &RowError{Row: rowNum, Reason: fmt.Sprintf("unparsable hours %q", field(ColHours))}
	}

	row := domain.RawRow{
		Index:       rowNum,
		Project:     project,
		Title:       title,
		Group:       field(ColGroup),
		Assignee:    field(ColAssignee),
		Status:      field(ColStatus),
		Hours:       hours,
		Description: field(ColDescription),
	}

	if raw := field(ColDate); raw != "" {
		logged, err := ParseDate(raw)
		if err != nil {
			return domain.RawRow{}, &RowError{Row: rowNum, Reason: fmt.Sprintf("unparsable date %q", raw)}
		}
		row.Date = logged
	}

	return row, nil
}

// ParseHours accepts decimal ("3.5"), comma-decimal ("3,5"), and
// clock ("1:30") notation, all common in spreadsheet exports.
func ParseHours(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty hours value")
	}
	if h, m, ok := strings.Cut(raw, ":"); ok {
		hours, err := strconv.Atoi(h)
		if err != nil || hours < 0 {
			return 0, fmt.Errorf("invalid clock hours %q", raw)
		}
		minutes, err := strconv.Atoi(m)
		if err != nil || minutes < 0 || minutes > 59 {
			return 0, fmt.Errorf("invalid clock minutes %q", raw)
		}
		return float64(hours) + float64(minutes)/60.0, nil
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hours %q", raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative hours %q", raw)
	}
	return value, nil
}

// dateLayouts are tried in order; ISO first, then the dotted European
// form seen in the legacy exports.
var dateLayouts = []string{"2006-01-02", "02.01.2006", "01/02/2006"}

// ParseDate parses a workbook date cell.
func ParseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
