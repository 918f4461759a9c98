package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by results that have a table form. A nil
// Headers renders the rows without a header line.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// TableData is an ad-hoc TableRenderer.
type TableData struct {
	headers []string
	rows    [][]string
}

func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

func (t *TableData) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

func (t *TableData) Headers() []string { return t.headers }
func (t *TableData) Rows() [][]string  { return t.rows }

// Fields is a key/value TableRenderer for single-object views.
type Fields [][2]string

func (f *Fields) Add(key, value string) {
	*f = append(*f, [2]string{key, value})
}

func (f Fields) Headers() []string { return nil }

func (f Fields) Rows() [][]string {
	rows := make([][]string, 0, len(f))
	for _, kv := range f {
		rows = append(rows, []string{kv[0], kv[1]})
	}
	return rows
}

// StateColumns is implemented by renderers whose columns at the returned
// indexes hold data state names, colored when color is enabled.
type StateColumns interface {
	StateColumns() []int
}

func renderTable(w io.Writer, data TableRenderer, color bool) error {
	table := tablewriter.NewWriter(w)
	if headers := data.Headers(); headers != nil {
		table.SetHeader(headers)
	}

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	var stateCols []int
	if sc, ok := data.(StateColumns); ok && color {
		stateCols = sc.StateColumns()
	}
	for _, row := range data.Rows() {
		cells := append([]string(nil), row...)
		for _, col := range stateCols {
			if col < len(cells) {
				cells[col] = State(cells[col], true)
			}
		}
		table.Append(cells)
	}

	table.Render()
	return nil
}
