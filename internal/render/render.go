package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents an output format
type Format string

const (
	FormatTable  Format = "table"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatYAML   Format = "yaml"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON, FormatNDJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be one of: table, json, ndjson, yaml", s)
	}
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	format Format
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, format Format) *Renderer {
	return &Renderer{writer: writer, format: format}
}

// Format returns the configured output format.
func (r *Renderer) Format() Format {
	return r.format
}

// RenderJSON renders data as indented JSON
func (r *Renderer) RenderJSON(data interface{}) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// RenderNDJSON renders items as newline-delimited JSON
func (r *Renderer) RenderNDJSON(items []interface{}) error {
	encoder := json.NewEncoder(r.writer)
	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// RenderYAML renders data as YAML
func (r *Renderer) RenderYAML(data interface{}) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	return encoder.Encode(data)
}

// RenderTable renders headers and rows as an aligned text table
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	line := make([]string, len(headers))
	for i, h := range headers {
		line[i] = pad(h, widths[i])
	}
	if _, err := fmt.Fprintln(r.writer, strings.TrimRight(strings.Join(line, "  "), " ")); err != nil {
		return err
	}

	for _, row := range rows {
		for i := range line {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			line[i] = pad(cell, widths[i])
		}
		if _, err := fmt.Fprintln(r.writer, strings.TrimRight(strings.Join(line, "  "), " ")); err != nil {
			return err
		}
	}
	return nil
}

// RenderStructured renders data in the configured format, falling back
// to JSON for table consumers that pass pre-rendered rows separately.
func (r *Renderer) RenderStructured(data interface{}) error {
	switch r.format {
	case FormatYAML:
		return r.RenderYAML(data)
	case FormatNDJSON:
		encoder := json.NewEncoder(r.writer)
		return encoder.Encode(data)
	default:
		return r.RenderJSON(data)
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
