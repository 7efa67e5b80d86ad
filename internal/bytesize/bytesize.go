// Package bytesize provides a byte count that config files can spell as
// "64Mi", "1 GiB", "500MB" or a plain integer.
package bytesize

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/invopop/jsonschema"
)

// ByteSize is a size in bytes. Ki/Mi/Gi/Ti suffixes are binary, K/M/G/T
// decimal.
type ByteSize uint64

const (
	B   ByteSize = 1
	KiB ByteSize = humanize.KiByte
	MiB ByteSize = humanize.MiByte
	GiB ByteSize = humanize.GiByte
	TiB ByteSize = humanize.TiByte
)

// ParseByteSize parses a human-readable size.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText writes the binary-unit form, e.g. "64 MiB".
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// MarshalYAML keeps generated config files human readable.
func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

// String returns the size with binary units, e.g. "64 MiB".
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Uint64 returns the size as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Int64 returns the size as an int64, saturating at math.MaxInt64.
func (b ByteSize) Int64() int64 {
	if uint64(b) > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(b)
}

// JSONSchema accepts either spelling in the generated config schema.
func (ByteSize) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer", Minimum: "0"},
			{Type: "string", Pattern: `^\s*\d+(\.\d+)?\s*([KkMmGgTtPpEe][iI]?)?[bB]?\s*$`},
		},
		Description: "Size in bytes, or a number with a unit such as 64Mi or 1GB",
	}
}
