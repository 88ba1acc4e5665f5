package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is aligned key/value text (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON.
	FormatJSON OutputFormat = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Field is one labelled value of a command result.
type Field struct {
	Name  string
	Value any
}

// Result is an ordered list of fields. Text output keeps the order; JSON
// output is an object keyed by field name.
type Result []Field

// MarshalJSON encodes the result as a JSON object.
func (r Result) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r))
	for _, f := range r {
		m[f.Name] = f.Value
	}
	return json.Marshal(m)
}

// Formatter formats command output.
type Formatter interface {
	FormatTo(w io.Writer, r Result) error
}

// TextFormatter formats output as aligned "name: value" lines.
type TextFormatter struct{}

// FormatTo writes r to w in text format.
func (f *TextFormatter) FormatTo(w io.Writer, r Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, field := range r {
		if _, err := fmt.Fprintf(tw, "%s:\t%v\n", field.Name, field.Value); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTo writes r to w in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, r Result) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(r)
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{Indent: true}
	}
	return &TextFormatter{}
}
