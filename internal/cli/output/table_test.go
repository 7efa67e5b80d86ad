package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockRows [][]string

func (l lockRows) Headers() []string { return []string{"Owner", "Range", "Type"} }
func (l lockRows) Rows() [][]string  { return l }

func TestPrintTable(t *testing.T) {
	rows := lockRows{
		{"owner-1", "0-99", "exclusive"},
		{"owner-2", "100-EOF", "shared"},
	}

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, rows))

	out := buf.String()
	assert.Contains(t, out, "OWNER")
	assert.Contains(t, out, "RANGE")
	assert.Contains(t, out, "owner-2")
	assert.Contains(t, out, "100-EOF")
}

func TestFields(t *testing.T) {
	f := Fields{}.Add("Active", "true").Add("Remaining", "42s")

	assert.Equal(t, []string{"FIELD", "VALUE"}, f.Headers())
	assert.Equal(t, [][]string{{"Active", "true"}, {"Remaining", "42s"}}, f.Rows())

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, f))
	assert.Contains(t, buf.String(), "Remaining")
}
