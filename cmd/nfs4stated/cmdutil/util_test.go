package cmdutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/marmos91/nfs4state/internal/cli/output"
)

func TestParseClientID(t *testing.T) {
	tests := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{input: "1a2b", want: 0x1a2b},
		{input: "0x1A2B", want: 0x1a2b},
		{input: " 00000001000000ff ", want: 0x1000000ff},
		{input: "", wantErr: true},
		{input: "0x", wantErr: true},
		{input: "xyz", wantErr: true},
		{input: "10000000000000000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseClientID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseClientID(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClientID(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseClientID(%q) = %#x, want %#x", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatClientID(t *testing.T) {
	if got := FormatClientID(0x1000000ff); got != "00000001000000ff" {
		t.Errorf("FormatClientID() = %q", got)
	}
	id, err := ParseClientID(FormatClientID(42))
	if err != nil || id != 42 {
		t.Errorf("round trip = %d, %v", id, err)
	}
}

func TestGetClient_Flags(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	old := *Flags
	t.Cleanup(func() { *Flags = old })

	*Flags = GlobalFlags{}
	client, err := GetClient()
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if client.BaseURL() != DefaultServerURL {
		t.Errorf("Expected default server URL, got %q", client.BaseURL())
	}

	Flags.ServerURL = "http://state.example.com:9000"
	client, err = GetClient()
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if client.BaseURL() != "http://state.example.com:9000" {
		t.Errorf("Expected flag server URL, got %q", client.BaseURL())
	}
}

type testTable struct{}

func (testTable) Headers() []string { return []string{"NAME"} }
func (testTable) Rows() [][]string  { return [][]string{{"alpha"}} }

func TestPrintOutput(t *testing.T) {
	old := *Flags
	t.Cleanup(func() { *Flags = old })

	tests := []struct {
		name     string
		format   string
		isEmpty  bool
		contains string
	}{
		{name: "table", format: "table", contains: "alpha"},
		{name: "empty table", format: "table", isEmpty: true, contains: "nothing here"},
		{name: "json", format: "json", contains: `"name": "x"`},
		{name: "yaml", format: "yaml", contains: "name: x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Flags.Output = tt.format
			var buf bytes.Buffer
			data := map[string]string{"name": "x"}
			if err := PrintOutput(&buf, data, tt.isEmpty, "nothing here", testTable{}); err != nil {
				t.Fatalf("PrintOutput failed: %v", err)
			}
			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.contains)
			}
		})
	}

	Flags.Output = "xml"
	if err := PrintOutput(&bytes.Buffer{}, nil, false, "", testTable{}); err == nil {
		t.Error("Expected error for invalid format")
	}
	if _, err := output.ParseFormat("xml"); err == nil {
		t.Error("Expected ParseFormat to reject xml")
	}
}
