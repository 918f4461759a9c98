// Package output renders command results as a table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the value of the -o flag.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses the -o flag. The empty string means table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// Printer writes the result of one command.
type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

// NewPrinter returns a printer writing to out. With color set, data states
// and success lines are colored in table output.
func NewPrinter(out io.Writer, format Format, color bool) *Printer {
	return &Printer{out: out, format: format, color: color}
}

func (p *Printer) Format() Format {
	return p.format
}

// Print writes data as JSON or YAML, or renders table for the table format.
func (p *Printer) Print(data any, table TableRenderer) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		if table == nil {
			return fmt.Errorf("%T has no table form, use -o json or -o yaml", data)
		}
		return renderTable(p.out, table, p.color)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

// PrintList is Print for collections: an empty table prints emptyMsg
// instead of a bare header.
func (p *Printer) PrintList(data any, table TableRenderer, emptyMsg string) error {
	if p.format == FormatTable && len(table.Rows()) == 0 {
		_, err := fmt.Fprintln(p.out, emptyMsg)
		return err
	}
	return p.Print(data, table)
}

// Success prints a confirmation line. Only used in table format; structured
// formats print the result itself.
func (p *Printer) Success(msg string) {
	_, _ = fmt.Fprintln(p.out, paint(p.color, green, msg))
}
