package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kingrea/choreo/internal/timeline"
)

func openBlock(t *testing.T, b timeline.Backend, opts ...timeline.Option) *timeline.Block {
	t.Helper()
	session, err := timeline.NewSession(b, opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	block, err := session.Open(time.Second)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return block
}

func appendAction(t *testing.T, block *timeline.Block, name string, opts ...timeline.StepOption) {
	t.Helper()
	if _, err := block.AppendAction(timeline.Effect{Name: name}, opts...); err != nil {
		t.Fatalf("append %s: %v", name, err)
	}
}

func TestRecorderClampsAndDrivesWaits(t *testing.T) {
	rec := NewRecorder(WithMinDuration(100*time.Millisecond), WithStart(5*time.Second))
	block := openBlock(t, rec, timeline.WithZeroDuration(0))
	appendAction(t, block, "flash", timeline.WithDuration(0), timeline.WithLabel("flash"))
	if _, err := block.WaitForCompletion(0); err != nil {
		t.Fatalf("wait: %v", err)
	}
	appendAction(t, block, "move", timeline.WithLabel("move"))
	sched, err := block.Commit(context.Background())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if sched.Origin != 5*time.Second {
		t.Fatalf("origin = %s, want recorder clock 5s", sched.Origin)
	}
	flash, _ := sched.Lookup("flash")
	if flash.Duration != 100*time.Millisecond {
		t.Fatalf("flash duration = %s, want clamp 100ms", flash.Duration)
	}
	move, _ := sched.Lookup("move")
	if move.Begin != flash.End() {
		t.Fatalf("move begins at %s, want %s", move.Begin, flash.End())
	}
}

func TestRecorderCompletesInEndOrder(t *testing.T) {
	rec := NewRecorder()
	var order []string
	block := openBlock(t, rec)
	appendAction(t, block, "long", timeline.WithDuration(3*time.Second), timeline.OnComplete(func(a *timeline.Action) { order = append(order, a.Effect().Name) }))
	appendAction(t, block, "short", timeline.WithDuration(time.Second), timeline.OnComplete(func(a *timeline.Action) { order = append(order, a.Effect().Name) }))
	batchDone := false
	if err := block.SetCompletionCallback(func() { batchDone = true }); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if _, err := block.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if n := rec.AdvanceTo(2 * time.Second); n != 1 || batchDone {
		t.Fatalf("advance to 2s completed %d (batch=%v)", n, batchDone)
	}
	if n := rec.Finish(); n != 1 {
		t.Fatalf("finish completed %d, want 1", n)
	}
	if len(order) != 2 || order[0] != "short" || order[1] != "long" {
		t.Fatalf("completion order = %v", order)
	}
	if !batchDone {
		t.Fatalf("batch callback not fired")
	}
	if rec.Now() != 3*time.Second {
		t.Fatalf("clock = %s, want 3s", rec.Now())
	}
	if rec.AdvanceTo(time.Second) != 0 || rec.Now() != 3*time.Second {
		t.Fatalf("clock moved backwards")
	}
}

func TestRecorderManifest(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(WithManifest(&buf))
	block := openBlock(t, rec)
	appendAction(t, block, "move", timeline.OnSubject("ball"))
	if _, err := block.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	var types []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var line manifestLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("decode %q: %v", scanner.Text(), err)
		}
		types = append(types, line.Type)
		if line.Type == "apply" && (line.Effect == nil || line.Effect.Subject != "ball") {
			t.Fatalf("apply line missing effect: %q", scanner.Text())
		}
	}
	if len(types) != 2 || types[0] != "apply" || types[1] != "commit" {
		t.Fatalf("unexpected manifest %v", types)
	}
	if effects := rec.Effects(); len(effects) != 1 || effects[0].Batch != 1 {
		t.Fatalf("unexpected effects %+v", effects)
	}
}

func TestRecorderEmptyBatchCompletesOnCommit(t *testing.T) {
	rec := NewRecorder()
	fired := false
	if err := rec.Commit(context.Background(), func() { fired = true }); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !fired {
		t.Fatalf("empty batch should complete at commit")
	}
}
