package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/vilaca/labelage/internal/domain"
)

// Format selects a renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. Empty means FormatText.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
}

// Renderer writes report rows.
type Renderer interface {
	Render(w io.Writer, rows []domain.DayStat) error
}

// NewRenderer returns the renderer for a format.
func NewRenderer(f Format) (Renderer, error) {
	switch f {
	case "", FormatText:
		return TextRenderer{}, nil
	case FormatJSON:
		return JSONRenderer{}, nil
	case FormatYAML:
		return YAMLRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", f)
}

// TextRenderer writes "date count age" lines; age is "-" when nothing qualifies.
type TextRenderer struct{}

func (TextRenderer) Render(w io.Writer, rows []domain.DayStat) error {
	for _, r := range rows {
		age := "-"
		if r.MedianAgeDays != nil {
			age = strconv.Itoa(*r.MedianAgeDays)
		}
		if _, err := fmt.Fprintf(w, "%s %d %s\n", r.Date, r.Count, age); err != nil {
			return err
		}
	}
	return nil
}

// row is the structured form shared by the JSON and YAML renderers.
type row struct {
	Date          string `json:"date" yaml:"date"`
	Count         int    `json:"count" yaml:"count"`
	MedianAgeDays *int   `json:"median_age_days,omitempty" yaml:"median_age_days,omitempty"`
}

func toRows(stats []domain.DayStat) []row {
	rows := make([]row, len(stats))
	for i, s := range stats {
		rows[i] = row{Date: s.Date.String(), Count: s.Count, MedianAgeDays: s.MedianAgeDays}
	}
	return rows
}

// JSONRenderer writes an indented JSON array.
type JSONRenderer struct{}

func (JSONRenderer) Render(w io.Writer, rows []domain.DayStat) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toRows(rows))
}

// YAMLRenderer writes a YAML sequence.
type YAMLRenderer struct{}

func (YAMLRenderer) Render(w io.Writer, rows []domain.DayStat) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toRows(rows)); err != nil {
		return err
	}
	return enc.Close()
}
