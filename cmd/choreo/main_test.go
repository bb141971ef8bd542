package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/choreo/internal/config"
	"github.com/kingrea/choreo/internal/logbook"
)

const bounceScene = `id: bounce
inputs: [ball]
steps:
  - action: move
    subject: ball
    label: drop
    duration: 1s
  - wait: completion
    label: drop
  - action: squash
    subject: ball
`

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{"ball=b1", " label = a=b"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["ball"] != "b1" || got["label"] != " a=b" {
		t.Fatalf("unexpected pairs %v", got)
	}
	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseKeyValues([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseParamValue(t *testing.T) {
	if v := parseParamValue("0.5"); v != 0.5 {
		t.Fatalf("expected float, got %#v", v)
	}
	if v := parseParamValue("true"); v != true {
		t.Fatalf("expected bool, got %#v", v)
	}
	if v := parseParamValue("ease-in"); v != "ease-in" {
		t.Fatalf("expected string, got %#v", v)
	}
	if v := parseParamValue("[1, 2]"); v != "[1, 2]" {
		t.Fatalf("collections should stay raw, got %#v", v)
	}
}

func TestPlanCommandJournalsSchedule(t *testing.T) {
	dir := t.TempDir()
	if err := config.InitDir(dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	scenePath := filepath.Join(dir, config.ChoreoDir, "scenes", "bounce.yaml")
	if err := os.WriteFile(scenePath, []byte(bounceScene), 0644); err != nil {
		t.Fatalf("write scene: %v", err)
	}
	manifest := filepath.Join(dir, "manifest.jsonl")
	args := []string{"choreo", "--project", dir, "plan", "--bind", "ball=b1", "--manifest", manifest, "bounce"}
	if err := newApp(context.Background()).Run(args); err != nil {
		t.Fatalf("plan: %v", err)
	}
	data, err := os.ReadFile(manifest)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 3 {
		t.Fatalf("expected 2 apply lines and 1 commit line, got %d:\n%s", got, data)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	lines, total := journal.Tail(10)
	if total != 3 || !strings.Contains(lines[0], "committed 2 actions") {
		t.Fatalf("unexpected journal (%d lines): %v", total, lines)
	}
}

func TestPlanCommandRequiresKnownScene(t *testing.T) {
	dir := t.TempDir()
	if err := config.InitDir(dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	err := newApp(context.Background()).Run([]string{"choreo", "--project", dir, "plan", "missing"})
	if err == nil || !strings.Contains(err.Error(), "scene missing not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}
