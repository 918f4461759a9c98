package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "table", want: FormatTable},
		{in: " JSON ", want: FormatJSON},
		{in: "yml", want: FormatYAML},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

type stateTable [][]string

func (s stateTable) Headers() []string   { return []string{"TABLET ID", "STATE", "PENDING"} }
func (s stateTable) Rows() [][]string    { return s }
func (s stateTable) StateColumns() []int { return []int{1, 2} }

func TestPrinter_TableColorsStates(t *testing.T) {
	rows := stateTable{{"t1", "TOMBSTONED", Pending("")}, {"t2", "READY", "DELETED"}}

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable, true).Print(rows, rows))
	out := buf.String()
	assert.Contains(t, out, "TABLET ID")
	assert.Contains(t, out, yellow+"TOMBSTONED"+reset)
	assert.Contains(t, out, green+"READY"+reset)
	assert.Contains(t, out, red+"DELETED"+reset)
	assert.Contains(t, out, "-")
	assert.Equal(t, "TOMBSTONED", rows[0][1], "rendering must not modify the rows")

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(rows, rows))
	assert.NotContains(t, buf.String(), "\033[")
	assert.Contains(t, buf.String(), "TOMBSTONED")
}

func TestPrinter_Structured(t *testing.T) {
	outcome := Outcome{TabletID: "t1", Target: "DELETED", OK: false, Error: "busy", Message: "tablet t1 is busy"}

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatJSON, true).Print(outcome, nil))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "t1", decoded["tablet_id"])
	assert.Equal(t, false, decoded["ok"])
	assert.Equal(t, "busy", decoded["error"])

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatYAML, true).Print(Outcome{TabletID: "t1", Target: "TOMBSTONED", OK: true}, nil))
	var y map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &y))
	assert.Equal(t, "TOMBSTONED", y["target"])
	assert.NotContains(t, buf.String(), "error")
}

func TestPrinter_TableNeedsRenderer(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf, FormatTable, false).Print(Outcome{}, nil)
	assert.Error(t, err)
}

func TestPrinter_PrintListEmpty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, false)
	require.NoError(t, p.PrintList([]string{}, NewTableData("TABLET ID"), "No tablets found."))
	assert.Equal(t, "No tablets found.\n", buf.String())

	buf.Reset()
	p = NewPrinter(&buf, FormatJSON, false)
	require.NoError(t, p.PrintList([]string{}, NewTableData("TABLET ID"), "No tablets found."))
	assert.JSONEq(t, "[]", buf.String())
}

func TestFields(t *testing.T) {
	var f Fields
	f.Add("Tablet ID", "t1")
	f.Add("State", "DELETED")

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(nil, f))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Tablet ID")
	assert.Contains(t, lines[0], "t1")
	assert.Contains(t, lines[1], "DELETED")
}

func TestSuccess(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, FormatTable, false).Success("Tablet t1 is DELETED")
	assert.Equal(t, "Tablet t1 is DELETED\n", buf.String())

	buf.Reset()
	NewPrinter(&buf, FormatTable, true).Success("done")
	assert.Equal(t, green+"done"+reset+"\n", buf.String())
}

func TestState(t *testing.T) {
	assert.Equal(t, "UNKNOWN", State("UNKNOWN", true))
	assert.Equal(t, "DELETED", State("DELETED", false))
	assert.Equal(t, cyan+"COPYING"+reset, State("COPYING", true))
}
