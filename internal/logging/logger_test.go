package logging

import (
	"os"
	"strings"
	"testing"

	"github.com/kingrea/choreo/internal/config"
)

func TestPrintfAppendsTimestampedLines(t *testing.T) {
	cfg := &config.Config{ProjectDir: t.TempDir()}
	cfg.ChoreoProjectDir = cfg.ProjectDir + "/" + config.ChoreoDir
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Printf("block %s committed\n", "abc")
	logger.Printf("second")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(cfg.LogPath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "[") || !strings.HasSuffix(lines[0], "block abc committed") {
		t.Fatalf("unexpected line %q", lines[0])
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Printf("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
