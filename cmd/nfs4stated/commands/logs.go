package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/pkg/config"
)

var (
	logsFollow bool
	logsLines  int
	logsSince  string
	logsFile   string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail server logs",
	Long: `Display and optionally follow the nfs4stated server logs.

The log file is taken from --file, then from logging.output in the
configuration, then the daemon log file. A server logging to stdout or
stderr under a supervisor has no file to read.

Examples:
  # Show last 100 lines (default)
  nfs4stated logs

  # Follow logs in real-time
  nfs4stated logs -f

  # Show logs since a specific time
  nfs4stated logs --since "2026-01-15T10:00:00Z"`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since timestamp (RFC3339 format)")
	logsCmd.Flags().StringVar(&logsFile, "file", "", "Log file to read (overrides the configuration)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	path, err := resolveLogFile()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s\nThe server may not have started yet or is logging elsewhere", path)
	}

	var since time.Time
	if logsSince != "" {
		since, err = time.Parse(time.RFC3339, logsSince)
		if err != nil {
			return fmt.Errorf("invalid --since format (use RFC3339): %w", err)
		}
	}

	if logsFollow {
		return followLogs(path, logsLines, since)
	}
	return showLogs(os.Stdout, path, logsLines, since)
}

func resolveLogFile() (string, error) {
	if logsFile != "" {
		return logsFile, nil
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	switch cfg.Logging.Output {
	case "stdout", "stderr":
		// A daemon redirects stdout into its log file.
		if _, err := os.Stat(GetDefaultLogFile()); err == nil {
			return GetDefaultLogFile(), nil
		}
		return "", fmt.Errorf("server is configured to log to %s, not a file\nConfigure 'logging.output' to a file path or pass --file", cfg.Logging.Output)
	default:
		return cfg.Logging.Output, nil
	}
}

// showLogs writes the last lines of the log file, skipping entries older
// than since.
func showLogs(w io.Writer, path string, lines int, since time.Time) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	tail := make([]string, 0, lines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !since.IsZero() {
			if ts := extractTimestamp(line); !ts.IsZero() && ts.Before(since) {
				continue
			}
		}
		if lines <= 0 {
			continue
		}
		if len(tail) == lines {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	for _, line := range tail {
		_, _ = fmt.Fprintln(w, line)
	}
	return nil
}

// followLogs prints the tail of the file, then every line appended to it
// until interrupted.
func followLogs(path string, initialLines int, since time.Time) error {
	if err := showLogs(os.Stdout, path, initialLines, since); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of log file: %w", err)
	}
	reader := bufio.NewReader(file)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Following %s (Ctrl+C to stop)...\n", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) {
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						break
					}
					fmt.Print(line)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// textTimeLayout is the bracketed timestamp prefix of the text log handler.
const textTimeLayout = "2006-01-02 15:04:05"

// extractTimestamp returns the timestamp of a text or JSON log line, or the
// zero time.
func extractTimestamp(line string) time.Time {
	if text := strings.TrimPrefix(line, "["); len(text) >= len(textTimeLayout) {
		if t, err := time.ParseInLocation(textTimeLayout, text[:len(textTimeLayout)], time.Local); err == nil {
			return t
		}
	}

	const timeKey = `"time":"`
	if idx := strings.Index(line, timeKey); idx >= 0 {
		rest := line[idx+len(timeKey):]
		if end := strings.IndexByte(rest, '"'); end > 0 {
			if t, err := time.Parse(time.RFC3339Nano, rest[:end]); err == nil {
				return t
			}
		}
	}

	return time.Time{}
}
