package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/choreo/internal/timeline"
)

// Level represents the severity of a journal entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logbook persists committed blocks to a plain text journal so a run can be
// reviewed after playback ends.
type Logbook struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path, now: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLines(l.format(level, message))
}

// Record journals one committed block: a summary line followed by one line
// per scheduled action. A failed commit is recorded as an error.
func (l *Logbook) Record(blockID string, sched timeline.Schedule, commitErr error) {
	if l == nil {
		return
	}
	lines := make([]string, 0, len(sched.Entries)+len(sched.Warnings)+1)
	if commitErr != nil {
		lines = append(lines, l.format(LevelError, fmt.Sprintf("block %s failed after %d actions: %v", blockID, len(sched.Entries), commitErr)))
	} else {
		lines = append(lines, l.format(LevelInfo, fmt.Sprintf("block %s committed %d actions from %s to %s", blockID, len(sched.Entries), sched.Origin, sched.End())))
	}
	for _, warning := range sched.Warnings {
		lines = append(lines, l.format(LevelWarn, fmt.Sprintf("block %s: %s", blockID, warning)))
	}
	for _, entry := range sched.Entries {
		lines = append(lines, l.format(LevelInfo, fmt.Sprintf("block %s  %s", blockID, describeEntry(entry))))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLines(lines...)
}

// Tail returns up to maxLines of the most recent entries together with the
// total number of lines in the journal.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total == 0 {
		return nil, 0
	}
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

func (l *Logbook) format(level Level, message string) string {
	return fmt.Sprintf("%s %-5s %s",
		l.now().UTC().Format(time.RFC3339),
		string(level),
		strings.TrimSpace(message),
	)
}

func (l *Logbook) writeLines(lines ...string) {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	for _, line := range lines {
		_, _ = w.WriteString(line + "\n")
	}
	_ = w.Flush()
}

func describeEntry(e timeline.Entry) string {
	subject := e.Subject
	if subject == "" {
		subject = "*"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-12s @%s +%s", e.Effect.Name, subject, e.Begin, e.Duration)
	if e.Label != "" {
		fmt.Fprintf(&b, " [%s]", e.Label)
	}
	return b.String()
}
