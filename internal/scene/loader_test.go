package scene

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const sampleScene = `id: bounce
name: Bounce
description: Drop a subject and squash it on landing.
inputs: [ball]
params:
  easing: linear
steps:
  - action: move
    subject: ball
    label: drop
    duration: 1s
    params:
      to: floor
  - wait: completion
    label: drop
  - action: squash
    subject: ball
    duration: 200ms
`

const goScene = `package main

func SceneDefinitions() ([]map[string]any, error) {
	return []map[string]any{
		{
			"id":     "flash",
			"inputs": []string{"target"},
			"steps": []map[string]any{
				{"action": "fade", "subject": "target", "duration": "500ms", "params": map[string]any{"alpha": 0.0}},
				{"wait": "relative", "duration": "250ms"},
				{"action": "fade", "subject": "target", "params": map[string]any{"alpha": 1.0}},
			},
		},
	}, nil
}`

func memLoader(t *testing.T, files map[string]string) *Loader {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, body := range files {
		if err := afero.WriteFile(fs, path, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return NewLoader(fs)
}

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(sampleScene))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.ID != "bounce" || len(def.Steps) != 3 {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if def.Steps[0].Duration == nil || *def.Steps[0].Duration != time.Second {
		t.Fatalf("duration not decoded: %+v", def.Steps[0])
	}
	if def.Steps[1].Duration != nil {
		t.Fatalf("unset wait duration should stay nil")
	}
}

func TestParseDefinitionYAMLNumericDurations(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(`id: pulse
steps:
  - action: grow
    duration: 1.5
  - wait: relative
    duration: 2
  - action: shrink
    duration: 0
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []time.Duration{1500 * time.Millisecond, 2 * time.Second, 0}
	for i, d := range want {
		if got := def.Steps[i].Duration; got == nil || *got != d {
			t.Fatalf("steps[%d] duration = %v, want %s", i, got, d)
		}
	}
	if def.Steps[1].Wait != "relative" || def.Steps[0].Action != "grow" {
		t.Fatalf("other step fields lost: %+v", def.Steps)
	}
	if _, err := ParseDefinitionYAML([]byte("id: bad\nsteps:\n  - action: grow\n    duration: soon\n")); err == nil {
		t.Fatalf("expected unparseable duration to fail")
	}
}

func TestParseDefinitionYAMLErrors(t *testing.T) {
	if _, err := ParseDefinitionYAML([]byte("")); err == nil {
		t.Fatalf("expected empty payload to fail")
	}
	if _, err := ParseDefinitionYAML([]byte("id: [")); err == nil {
		t.Fatalf("expected malformed payload to fail")
	}
}

func TestLoadDefinitionDirMissingIsEmpty(t *testing.T) {
	defs, err := memLoader(t, nil).LoadDefinitionDir("/scenes")
	if err != nil || defs != nil {
		t.Fatalf("expected no scenes, got %v, %v", defs, err)
	}
}

func TestLoadGoDefinitionDir(t *testing.T) {
	loader := memLoader(t, map[string]string{"/scenes/flash.go": goScene})
	defs, err := loader.LoadGoDefinitionDir("/scenes")
	if err != nil {
		t.Fatalf("load go defs: %v", err)
	}
	if len(defs) != 1 || defs[0].Definition.ID != "flash" {
		t.Fatalf("unexpected defs: %+v", defs)
	}
	if !strings.HasSuffix(defs[0].Path, "flash.go#1") {
		t.Fatalf("unexpected path %q", defs[0].Path)
	}
	if d := defs[0].Definition.Steps[0].Duration; d == nil || *d != 500*time.Millisecond {
		t.Fatalf("duration lost in round trip: %v", d)
	}
}

func TestLoadGoDefinitionDirMissingFunc(t *testing.T) {
	loader := memLoader(t, map[string]string{"/scenes/broken.go": "package main\n"})
	if _, err := loader.LoadGoDefinitionDir("/scenes"); err == nil {
		t.Fatalf("expected error for missing SceneDefinitions function")
	}
}

func TestLoadCatalog(t *testing.T) {
	loader := memLoader(t, map[string]string{
		"/a/bounce.yaml": sampleScene,
		"/b/flash.go":    goScene,
		"/b/notes.txt":   "ignored",
	})
	cat, err := loader.LoadCatalog("/a", "/b", "/missing")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	entries := cat.Entries()
	if len(entries) != 2 || entries[0].ID != "bounce" || entries[1].ID != "flash" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	params := strings.Join(entries[0].Params, ",")
	if params != "duration,easing,to" {
		t.Fatalf("unexpected params %q", params)
	}
	if got := strings.Join(entries[1].Params, ","); got != "alpha,duration" {
		t.Fatalf("unexpected go scene params %q", got)
	}
	if _, ok := cat.Lookup("flash"); !ok {
		t.Fatalf("flash not found")
	}
}

func TestLoadCatalogRejectsDuplicateIDs(t *testing.T) {
	loader := memLoader(t, map[string]string{
		"/a/bounce.yaml": sampleScene,
		"/b/bounce.yml":  sampleScene,
	})
	if _, err := loader.LoadCatalog("/a", "/b"); err == nil || !strings.Contains(err.Error(), "duplicate scene id bounce") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}
