package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable formats output as a plain table
	OutputFormatTable OutputFormat = "table"
	// OutputFormatJSON formats output as JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML formats output as YAML
	OutputFormatYAML OutputFormat = "yaml"
	// OutputFormatTemplate executes a Go template with the sprig functions
	OutputFormatTemplate OutputFormat = "template"
)

// ValidateOutputFormat validates that the given format string is a supported output format.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML, OutputFormatTemplate:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, json, yaml, template)", format)
	}
}

// Table is a header plus rows, rendered according to the output format.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Printer writes command results in the selected format.
type Printer struct {
	Out       io.Writer
	Format    OutputFormat
	NoHeaders bool
	// Template is used with OutputFormatTemplate.
	Template string
}

// Print renders data. Tables are used for the table format; v is encoded
// for json and yaml.
func (p Printer) Print(t Table, v interface{}) error {
	switch p.Format {
	case OutputFormatJSON:
		enc := json.NewEncoder(p.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(p.Out)
		defer enc.Close()
		return enc.Encode(v)
	case OutputFormatTemplate:
		return p.execTemplate(v)
	default:
		p.renderTable(t)
		return nil
	}
}

func (p Printer) renderTable(t Table) {
	tw := table.NewWriter()
	tw.SetOutputMirror(p.Out)
	tw.SetStyle(plainStyle())

	if !p.NoHeaders {
		header := make(table.Row, len(t.Headers))
		for i, h := range t.Headers {
			header[i] = strings.ToUpper(h)
		}
		tw.AppendHeader(header)
	}
	for _, r := range t.Rows {
		row := make(table.Row, len(r))
		for i, cell := range r {
			if cell == "" {
				cell = "-"
			}
			row[i] = cell
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

func (p Printer) execTemplate(v interface{}) error {
	if p.Template == "" {
		return errors.New("--template is required with -o template")
	}
	tmpl, err := template.New("output").Funcs(sprig.TxtFuncMap()).Parse(p.Template)
	if err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	return tmpl.Execute(p.Out, v)
}

// plainStyle renders kubectl-like tables: no borders, three spaces between
// columns, headers as given.
func plainStyle() table.Style {
	s := table.StyleDefault
	s.Name = "launchpad-plain"
	s.Box.PaddingLeft = ""
	s.Box.PaddingRight = "   "
	s.Format.Header = text.FormatDefault
	s.Options = table.Options{}
	return s
}

// FormatSuccess formats a success message for CLI output
func FormatSuccess(msg string) string {
	return text.FgGreen.Sprintf("✓ %s", msg)
}

// FormatWarning formats a warning message for CLI output
func FormatWarning(msg string) string {
	return text.FgYellow.Sprintf("⚠ %s", msg)
}

// FormatError formats an error message for CLI output
func FormatError(err error) string {
	return text.FgRed.Sprintf("Error: %v", err)
}
