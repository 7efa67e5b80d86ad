package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture sends output to a buffer until the test ends.
func capture(t *testing.T, lvl, fmtName string) *bytes.Buffer {
	t.Helper()

	mu.RLock()
	prevOut, prevFile, prevColor, prevFormat := out, logFile, useColor, format
	mu.RUnlock()
	prevLevel := level.Level()

	buf := new(bytes.Buffer)
	InitWithWriter(buf, lvl, fmtName, false)

	t.Cleanup(func() {
		mu.Lock()
		out, logFile, useColor, format = prevOut, prevFile, prevColor, prevFormat
		rebuild()
		mu.Unlock()
		level.Set(prevLevel)
	})
	return buf
}

func jsonLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"WARNING", slog.LevelWarn, true},
		{"Error", slog.LevelError, true},
		{"TRACE", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, "WARN", "text")

	Debug("lease renewed")
	Info("client created")
	Warn("lease expired")
	Error("backend unreachable")

	out := buf.String()
	assert.NotContains(t, out, "lease renewed")
	assert.NotContains(t, out, "client created")
	assert.Contains(t, out, "lease expired")
	assert.Contains(t, out, "backend unreachable")
}

func TestSetLevelAtRuntime(t *testing.T) {
	buf := capture(t, "INFO", "text")

	Debug("hidden")
	SetLevel("DEBUG")
	Debug("shown")
	SetLevel("bogus")
	assert.Equal(t, slog.LevelDebug, Level())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetLevelAffectsDerivedLoggers(t *testing.T) {
	buf := capture(t, "INFO", "text")

	l := With("component", "sweeper")
	l.Debug("before")
	SetLevel("DEBUG")
	l.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after component=sweeper")
}

func TestTextFormat(t *testing.T) {
	buf := capture(t, "DEBUG", "text")

	Info("Client created", ClientID(0x2a), "owner", "linux client", "slots", 64)

	line := strings.TrimSpace(buf.String())
	assert.Regexp(t, regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] Client created`), line)
	assert.Contains(t, line, "client_id=0x2a")
	assert.Contains(t, line, `owner="linux client"`)
	assert.Contains(t, line, "slots=64")
}

func TestTextFormatGroupsAndAttrs(t *testing.T) {
	buf := capture(t, "DEBUG", "text")

	With("backend", "badger").WithGroup("lock").Info("Granted", "offset", 0, "length", 100)
	Info("nested", slog.Group("slot", "id", 3, "seq", 7))

	out := buf.String()
	assert.Contains(t, out, "Granted backend=badger lock.offset=0 lock.length=100")
	assert.Contains(t, out, "nested slot.id=3 slot.seq=7")
}

func TestTextFormatColor(t *testing.T) {
	buf := capture(t, "DEBUG", "text")
	InitWithWriter(buf, "", "", true)

	Warn("colored", "k", "v")

	out := buf.String()
	assert.Contains(t, out, "\033[33mWARN\033[0m")
	assert.Contains(t, out, "\033[36mk\033[0m=v")
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t, "INFO", "json")

	Info("Session created", SessionID("00ff"), Slot(4), Err(nil))

	entry := jsonLine(t, buf)
	assert.Equal(t, "Session created", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "00ff", entry["session_id"])
	assert.EqualValues(t, 4, entry["slot"])
	assert.NotContains(t, entry, "error")
}

func TestFormatSwitching(t *testing.T) {
	buf := capture(t, "INFO", "text")

	Info("as text")
	SetFormat("JSON")
	Info("as json")
	SetFormat("xml")
	Info("still json")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "["))
	assert.True(t, strings.HasPrefix(lines[1], "{"))
	assert.True(t, strings.HasPrefix(lines[2], "{"))
}

func TestContextLogging(t *testing.T) {
	t.Run("fields injected first", func(t *testing.T) {
		buf := capture(t, "INFO", "json")

		lc := NewLogContext("192.168.1.100:811").
			WithOperation("SEQUENCE").
			WithClient(0x650000000a).
			WithSession("00000065").
			WithTrace("abc123", "xyz789")
		lc.RequestID = "req-1"

		InfoCtx(WithContext(context.Background(), lc), "slot replayed", "extra", "value")

		entry := jsonLine(t, buf)
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "abc123", entry["trace_id"])
		assert.Equal(t, "xyz789", entry["span_id"])
		assert.Equal(t, "SEQUENCE", entry["operation"])
		assert.Equal(t, "192.168.1.100:811", entry["peer_addr"])
		assert.Equal(t, "0x650000000a", entry["client_id"])
		assert.Equal(t, "00000065", entry["session_id"])
		assert.Equal(t, "value", entry["extra"])
	})

	t.Run("zero fields omitted", func(t *testing.T) {
		buf := capture(t, "INFO", "json")

		InfoCtx(WithContext(context.Background(), &LogContext{Operation: "LOCK"}), "lock")

		entry := jsonLine(t, buf)
		assert.Equal(t, "LOCK", entry["operation"])
		assert.NotContains(t, entry, "client_id")
		assert.NotContains(t, entry, "session_id")
	})

	t.Run("nil and bare contexts", func(t *testing.T) {
		buf := capture(t, "DEBUG", "text")

		require.NotPanics(t, func() { WarnCtx(nil, "nil ctx") })
		DebugCtx(context.Background(), "bare ctx")

		assert.Contains(t, buf.String(), "nil ctx")
		assert.Contains(t, buf.String(), "bare ctx")
	})

	t.Run("filtered by level", func(t *testing.T) {
		buf := capture(t, "ERROR", "text")

		InfoCtx(context.Background(), "dropped")
		ErrorCtx(context.Background(), "kept")

		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})
}

func TestLogContextCopies(t *testing.T) {
	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Clone())
	assert.Nil(t, nilCtx.WithOperation("LOCK"))
	assert.Zero(t, nilCtx.DurationMs())
	assert.Nil(t, FromContext(nil))

	base := NewLogContext("10.0.0.1:700")
	derived := base.WithOperation("LOCKU")
	assert.Empty(t, base.Operation)
	assert.Equal(t, "LOCKU", derived.Operation)
	assert.GreaterOrEqual(t, base.DurationMs(), 0.0)
}

func TestInitToFile(t *testing.T) {
	capture(t, "INFO", "text")
	path := filepath.Join(t.TempDir(), "nfs4stated.log")

	require.NoError(t, Init(Config{Level: "DEBUG", Format: "text", Output: path}))
	Debug("written to file", Object("0a0b"))
	// Switch back so the file handle is released before TempDir cleanup.
	require.NoError(t, Init(Config{Output: "stderr"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] written to file object=0a0b")
	assert.NotContains(t, string(data), "\033[")
}

func TestInitBadPath(t *testing.T) {
	capture(t, "INFO", "text")
	err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}

func TestConcurrentLogging(t *testing.T) {
	capture(t, "DEBUG", "text")
	InitWithWriter(io.Discard, "", "", false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				Debug("tick", "worker", i, "n", j)
				if j%50 == 0 {
					SetLevel("INFO")
					SetLevel("DEBUG")
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, "0x65000001", ClientID(0x65000001).Value.String())
	assert.Equal(t, uint64(10), LockOffset(10).Value.Uint64())
	assert.Equal(t, "", Err(nil).Key)
	assert.Equal(t, KeyError, Err(assert.AnError).Key)
}
