package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"
)

// LogEntry is one parsed line of the JSON log file. Lines that are not
// valid JSON keep only Raw.
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
	Raw     string
}

// ViewerConfig configures log filtering.
type ViewerConfig struct {
	// Level is the minimum level to show; empty shows everything.
	Level string

	// Pattern filters entries by regex match on the raw line.
	Pattern *regexp.Regexp
}

// Viewer reads, filters, and formats engine log files.
type Viewer struct {
	cfg ViewerConfig
	out io.Writer
}

// NewViewer creates a log viewer writing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{cfg: cfg, out: out}
}

// parseEntry decodes one slog JSON line.
func parseEntry(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var rec struct {
		Time  time.Time `json:"time"`
		Level string    `json:"level"`
		Msg   string    `json:"msg"`
	}
	if err := json.Unmarshal([]byte(line), &rec); err == nil {
		entry.Time = rec.Time
		entry.Level = rec.Level
		entry.Message = rec.Msg
	}
	return entry
}

// matches applies the level threshold and pattern filter.
func (v *Viewer) matches(e LogEntry) bool {
	if v.cfg.Level != "" && e.Level != "" {
		if LevelFromString(e.Level) < LevelFromString(v.cfg.Level) {
			return false
		}
	}
	if v.cfg.Pattern != nil && !v.cfg.Pattern.MatchString(e.Raw) {
		return false
	}
	return true
}

// Tail returns the last n matching entries of the log file.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry := parseEntry(line)
		if v.matches(entry) {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Print writes formatted entries to the viewer's output.
func (v *Viewer) Print(entries []LogEntry) {
	for _, e := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(e))
	}
}

// FormatEntry renders one entry for the terminal.
func (v *Viewer) FormatEntry(e LogEntry) string {
	if e.Level == "" {
		return e.Raw
	}

	// Structured attrs beyond time/level/msg stay in raw JSON form so
	// nothing is hidden; the prefix makes scanning easier.
	return fmt.Sprintf("%s %-5s %s  %s",
		e.Time.Format("2006-01-02 15:04:05"),
		strings.ToUpper(e.Level),
		e.Message,
		attrSuffix(e.Raw))
}

// attrSuffix extracts everything after the standard fields for display.
func attrSuffix(raw string) string {
	var all map[string]any
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return ""
	}
	delete(all, "time")
	delete(all, "level")
	delete(all, "msg")
	if len(all) == 0 {
		return ""
	}
	data, err := json.Marshal(all)
	if err != nil {
		return ""
	}
	return string(data)
}

// Follow streams new matching entries to ch until ctx is canceled. It
// starts at the current end of file and polls for growth, re-reading
// from the start when the file is rotated or truncated.
func (v *Viewer) Follow(ctx context.Context, path string, ch chan<- LogEntry) error {
	var offset int64
	if info, err := os.Stat(path); err == nil {
		offset = info.Size()
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Size() < offset {
			// Rotated or truncated.
			offset = 0
		}
		if info.Size() == offset {
			continue
		}

		newOffset, err := v.readFrom(ctx, path, offset, ch)
		if err != nil {
			slog.Debug("log follow read failed", "error", err)
			continue
		}
		offset = newOffset
	}
}

func (v *Viewer) readFrom(ctx context.Context, path string, offset int64, ch chan<- LogEntry) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return offset, err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry := parseEntry(line)
		if !v.matches(entry) {
			continue
		}
		select {
		case ch <- entry:
		case <-ctx.Done():
			return offset, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return offset, err
	}

	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return offset, err
	}
	return pos, nil
}
