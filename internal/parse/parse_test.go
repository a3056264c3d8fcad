package parse

import (
	"os"
	"path/filepath"
	"testing"
)

func writeWorkbook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseBasicWorkbook(t *testing.T) {
	path := writeWorkbook(t, `Project,Task,Group,Assignee,Status,Hours,Description,Date
Website,Fix header,frontend,anna,open,3.5,Broken on mobile,2024-03-01
Website,Fix header,frontend,anna,done,2.0,Also broken on tablet,2024-03-02
Backend,Add index,,ben,open,1:30,Slow queries,2024-03-03
`)

	result, err := NewParser(path).Rows()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(result.Rows))
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}

	first := result.Rows[0]
	if first.Project != "Website" || first.Title != "Fix header" {
		t.Errorf("unexpected first row: %+v", first)
	}
	if first.Hours != 3.5 {
		t.Errorf("expected 3.5 hours, got %v", first.Hours)
	}
	if first.Index != 2 {
		t.Errorf("expected row index 2, got %d", first.Index)
	}

	third := result.Rows[2]
	if third.Hours != 1.5 {
		t.Errorf("expected clock notation 1:30 to parse as 1.5, got %v", third.Hours)
	}
}

func TestParseSkipsMalformedRows(t *testing.T) {
	path := writeWorkbook(t, `project,task,hours,date
Website,Good row,2.0,2024-01-10
,Missing project,1.0,2024-01-11
Website,Bad hours,abc,2024-01-12
Website,Bad date,1.0,notadate
Website,Another good row,0.5,2024-01-13
`)

	result, err := NewParser(path).Rows()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 good rows, got %d", len(result.Rows))
	}
	if len(result.Warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d: %v", len(result.Warnings), result.Warnings)
	}
	// Warnings carry the workbook row number of the offending line.
	if result.Warnings[0].Row != 3 {
		t.Errorf("expected first warning at row 3, got %d", result.Warnings[0].Row)
	}
}

func TestParseEmptyWorkbook(t *testing.T) {
	path := writeWorkbook(t, "")
	result, err := NewParser(path).Rows()
	if err != nil {
		t.Fatalf("empty workbook should not error: %v", err)
	}
	if len(result.Rows) != 0 || len(result.Warnings) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestParseHeaderOnlyWorkbook(t *testing.T) {
	path := writeWorkbook(t, "project,task,hours\n")
	result, err := NewParser(path).Rows()
	if err != nil {
		t.Fatalf("header-only workbook should not error: %v", err)
	}
	if len(result.Rows) != 0 {
		t.Errorf("expected no rows, got %d", len(result.Rows))
	}
}

func TestParseMissingRequiredColumn(t *testing.T) {
	path := writeWorkbook(t, "project,task,description\nWebsite,Thing,words\n")
	if _, err := NewParser(path).Rows(); err == nil {
		t.Error("expected error for missing hours column")
	}
}

func TestParseMissingFile(t *testing.T) {
	if _, err := NewParser(filepath.Join(t.TempDir(), "nope.csv")).Rows(); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParserIsRestartable(t *testing.T) {
	path := writeWorkbook(t, "project,task,hours\nWebsite,Thing,1.0\n")
	parser := NewParser(path)

	first, err := parser.Rows()
	if err != nil {
		t.Fatal(err)
	}
	second, err := parser.Rows()
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Rows) != 1 || len(second.Rows) != 1 {
		t.Errorf("expected both passes to yield 1 row, got %d and %d", len(first.Rows), len(second.Rows))
	}
}

func TestParseHours(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"3.5", 3.5, false},
		{"3,5", 3.5, false},
		{"1:30", 1.5, false},
		{"0:45", 0.75, false},
		{"0", 0, false},
		{"", 0, true},
		{"-2", 0, true},
		{"1:75", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseHours(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseHours(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHours(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHours(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDateFormats(t *testing.T) {
	for _, raw := range []string{"2024-03-01", "01.03.2024"} {
		d, err := ParseDate(raw)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", raw, err)
			continue
		}
		if d.Year() != 2024 || d.Month() != 3 || d.Day() != 1 {
			t.Errorf("ParseDate(%q) = %v, want 2024-03-01", raw, d)
		}
	}
}
