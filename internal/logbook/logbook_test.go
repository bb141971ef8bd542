package logbook

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/choreo/internal/timeline"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestTailOnMissingJournal(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "nested", "journal.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	if lines, total := book.Tail(10); lines != nil || total != 0 {
		t.Fatalf("expected empty tail, got %v (%d)", lines, total)
	}
}

func TestRecordWritesSummaryAndEntries(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "journal.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	sched := timeline.Schedule{
		Origin: time.Second,
		Entries: []timeline.Entry{
			{Effect: timeline.Effect{Name: "move"}, Subject: "ball", Label: "a", Begin: time.Second, Duration: 2 * time.Second},
			{Effect: timeline.Effect{Name: "fade"}, Begin: 3 * time.Second, Duration: time.Second},
		},
		Warnings: []string{"unknown label \"z\""},
	}
	book.Record("blk", sched, nil)
	book.Record("blk2", timeline.Schedule{}, errors.New("boom"))

	lines, total := book.Tail(10)
	if total != 5 {
		t.Fatalf("total = %d, want 5: %v", total, lines)
	}
	if !strings.Contains(lines[0], "INFO") || !strings.Contains(lines[0], "committed 2 actions") {
		t.Fatalf("unexpected summary %q", lines[0])
	}
	if !strings.Contains(lines[1], "WARN") {
		t.Fatalf("expected warning line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "ball") || !strings.Contains(lines[2], "[a]") {
		t.Fatalf("unexpected entry %q", lines[2])
	}
	if !strings.Contains(lines[3], "fade") || !strings.Contains(lines[3], "*") {
		t.Fatalf("global entry should render subject as *, got %q", lines[3])
	}
	if !strings.Contains(lines[4], "ERROR") || !strings.Contains(lines[4], "boom") {
		t.Fatalf("unexpected failure line %q", lines[4])
	}
}
