package scene

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/choreo/internal/timeline"
)

// Definition describes a reusable scene: a named sequence of steps over a
// set of input subjects, loaded from YAML or from a Go script.
//
// The struct mirrors the on-disk schema under .choreo/scenes/*.yaml.
type Definition struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string           `json:"version,omitempty" yaml:"version,omitempty"`
	Inputs      []string         `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Params      map[string]any   `json:"params,omitempty" yaml:"params,omitempty"`
	Steps       []StepDefinition `json:"steps" yaml:"steps"`
}

// StepDefinition declares one step. Exactly one of Action and Wait is set.
// Subject names either a declared input or a literal subject id.
type StepDefinition struct {
	Action           string         `json:"action,omitempty" yaml:"action,omitempty"`
	Wait             string         `json:"wait,omitempty" yaml:"wait,omitempty"`
	Subject          string         `json:"subject,omitempty" yaml:"subject,omitempty"`
	Label            string         `json:"label,omitempty" yaml:"label,omitempty"`
	Duration         *time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	IgnoreTiming     bool           `json:"ignore_timing,omitempty" yaml:"ignore_timing,omitempty"`
	SkipNotification bool           `json:"skip_notification,omitempty" yaml:"skip_notification,omitempty"`
	Params           map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// UnmarshalYAML decodes duration the way duration params are parsed, so a
// step accepts both "1.5s" and 1.5 (seconds).
func (s *StepDefinition) UnmarshalYAML(node *yaml.Node) error {
	type plain StepDefinition
	if node.Kind != yaml.MappingNode {
		var out plain
		if err := node.Decode(&out); err != nil {
			return err
		}
		*s = StepDefinition(out)
		return nil
	}
	rest := *node
	rest.Content = nil
	var durationNode *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "duration" {
			durationNode = node.Content[i+1]
			continue
		}
		rest.Content = append(rest.Content, node.Content[i], node.Content[i+1])
	}
	var out plain
	if err := rest.Decode(&out); err != nil {
		return err
	}
	*s = StepDefinition(out)
	if durationNode == nil {
		return nil
	}
	var raw any
	if err := durationNode.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	d, err := ParseDurationParam(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", durationNode.Line, err)
	}
	s.Duration = &d
	return nil
}

// IsWait reports whether the step is a wait marker.
func (s StepDefinition) IsWait() bool {
	return strings.TrimSpace(s.Wait) != ""
}

// Normalized returns a trimmed copy of the definition.
func (def Definition) Normalized() Definition {
	clone := Definition{
		ID:          strings.TrimSpace(def.ID),
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		Version:     strings.TrimSpace(def.Version),
		Params:      trimKeys(def.Params),
	}
	for _, input := range def.Inputs {
		if trimmed := strings.TrimSpace(input); trimmed != "" {
			clone.Inputs = append(clone.Inputs, trimmed)
		}
	}
	if len(def.Steps) > 0 {
		clone.Steps = make([]StepDefinition, len(def.Steps))
		for i, step := range def.Steps {
			clone.Steps[i] = step.normalized()
		}
	}
	return clone
}

// Validate ensures the definition can be composed into a block.
func (def Definition) Validate() error {
	normalized := def.Normalized()
	if normalized.ID == "" {
		return fmt.Errorf("scene: id is required")
	}
	if len(normalized.Steps) == 0 {
		return fmt.Errorf("scene %s: at least one step is required", normalized.ID)
	}
	seen := make(map[string]struct{}, len(normalized.Inputs))
	for _, input := range normalized.Inputs {
		if _, dup := seen[input]; dup {
			return fmt.Errorf("scene %s: duplicate input %s", normalized.ID, input)
		}
		seen[input] = struct{}{}
	}
	for idx, step := range normalized.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("scene %s: steps[%d]: %w", normalized.ID, idx, err)
		}
	}
	return nil
}

func (s StepDefinition) normalized() StepDefinition {
	clone := StepDefinition{
		Action:           strings.TrimSpace(s.Action),
		Wait:             strings.ToLower(strings.TrimSpace(s.Wait)),
		Subject:          strings.TrimSpace(s.Subject),
		Label:            strings.TrimSpace(s.Label),
		IgnoreTiming:     s.IgnoreTiming,
		SkipNotification: s.SkipNotification,
		Params:           trimKeys(s.Params),
	}
	if s.Duration != nil {
		d := *s.Duration
		clone.Duration = &d
	}
	return clone
}

// Validate checks a single step.
func (s StepDefinition) Validate() error {
	n := s.normalized()
	switch {
	case n.Action == "" && n.Wait == "":
		return fmt.Errorf("one of action or wait is required")
	case n.Action != "" && n.Wait != "":
		return fmt.Errorf("action %s cannot also be a wait", n.Action)
	}
	if n.Duration != nil && *n.Duration < 0 {
		return fmt.Errorf("duration %s is negative", *n.Duration)
	}
	if n.Wait == "" {
		return nil
	}
	if _, err := timeline.ParseWaitMode(n.Wait); err != nil {
		return err
	}
	if n.IgnoreTiming || n.SkipNotification || len(n.Params) > 0 {
		return fmt.Errorf("%s wait accepts only subject, label and duration", n.Wait)
	}
	return nil
}

func trimKeys(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		out[trimmed] = value
	}
	return out
}
