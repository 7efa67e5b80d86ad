package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  yaml  ", want: FormatYAML},
		{name: "invalid format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type leaseRow struct {
	ClientID string `json:"client_id" yaml:"client_id"`
	Sessions int    `json:"sessions" yaml:"sessions"`
}

func TestWrite(t *testing.T) {
	data := []leaseRow{{ClientID: "00000000000000ab", Sessions: 2}}
	table := Fields{}.Add("Client ID", "00000000000000ab").Add("Sessions", "2")

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatJSON, data, table))
		assert.Contains(t, buf.String(), `"client_id": "00000000000000ab"`)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatYAML, data, table))
		assert.Contains(t, buf.String(), "client_id: 00000000000000ab")
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatTable, data, table))
		assert.Contains(t, buf.String(), "FIELD")
		assert.Contains(t, buf.String(), "Sessions")
		assert.NotContains(t, buf.String(), "client_id")
	})

	t.Run("table without renderer falls back to json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatTable, data, nil))
		assert.Contains(t, buf.String(), `"sessions": 2`)
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, Write(&bytes.Buffer{}, Format("xml"), data, table))
	})
}

func TestPrinter(t *testing.T) {
	var plain bytes.Buffer
	NewPrinter(&plain, false).Success("Client evicted")
	assert.Equal(t, "Client evicted\n", plain.String())

	var colored bytes.Buffer
	NewPrinter(&colored, true).Warning("no JWT secret")
	assert.Equal(t, "\033[33mno JWT secret\033[0m\n", colored.String())
}
