package scene

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/choreo/internal/timeline"
)

// Bindings supply the values a scene is composed with.
type Bindings struct {
	// Subjects maps scene inputs to subject ids.
	Subjects map[string]string
	// Params override the scene and step params of every action.
	Params map[string]any
}

// Compose appends the steps of def to block. Inputs must all be bound; a
// step subject that is not a declared input is used verbatim.
func Compose(block *timeline.Block, def Definition, bindings Bindings) error {
	if block == nil {
		return fmt.Errorf("scene: compose %s: nil block", def.ID)
	}
	def = def.Normalized()
	inputs := make(map[string]string, len(def.Inputs))
	for _, input := range def.Inputs {
		subject := strings.TrimSpace(bindings.Subjects[input])
		if subject == "" {
			return fmt.Errorf("scene %s: input %s is not bound", def.ID, input)
		}
		inputs[input] = subject
	}
	for idx, step := range def.Steps {
		if err := composeStep(block, def, step, inputs, bindings.Params); err != nil {
			return fmt.Errorf("scene %s: steps[%d]: %w", def.ID, idx, err)
		}
	}
	return nil
}

func composeStep(block *timeline.Block, def Definition, step StepDefinition, inputs map[string]string, overrides map[string]any) error {
	subject := step.Subject
	if bound, ok := inputs[subject]; ok {
		subject = bound
	}
	opts := []timeline.StepOption{
		timeline.OnSubject(subject),
		timeline.WithLabel(step.Label),
	}
	if step.IsWait() {
		mode, err := timeline.ParseWaitMode(step.Wait)
		if err != nil {
			return err
		}
		var d time.Duration
		if step.Duration != nil {
			d = *step.Duration
		}
		_, err = block.AppendWait(mode, d, opts...)
		return err
	}
	if step.Duration != nil {
		opts = append(opts, timeline.WithDuration(*step.Duration))
	}
	if step.IgnoreTiming {
		opts = append(opts, timeline.IgnoreTiming())
	}
	if step.SkipNotification {
		opts = append(opts, timeline.SkipNotification())
	}
	effect := timeline.Effect{Name: step.Action, Params: mergeParams(def.Params, step.Params, overrides)}
	_, err := block.AppendAction(effect, opts...)
	return err
}

func mergeParams(layers ...map[string]any) map[string]any {
	var out map[string]any
	for _, layer := range layers {
		for key, value := range layer {
			if out == nil {
				out = map[string]any{}
			}
			out[key] = value
		}
	}
	return out
}

// RunOption customizes Run.
type RunOption func(*runConfig)

type runConfig struct {
	onFinish func()
}

// OnFinish hands fn to the backend as the block completion callback.
func OnFinish(fn func()) RunOption {
	return func(c *runConfig) {
		c.onFinish = fn
	}
}

// Run opens a block on session, composes def into it and commits. A
// "duration" param in bindings takes precedence over defaultDuration. A scene
// that fails to compose leaves no block open.
func Run(ctx context.Context, session *timeline.Session, def Definition, bindings Bindings, defaultDuration time.Duration, opts ...RunOption) (*timeline.Block, timeline.Schedule, error) {
	var cfg runConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if raw, ok := bindings.Params[durationParam]; ok {
		d, err := ParseDurationParam(raw)
		if err != nil {
			return nil, timeline.Schedule{}, fmt.Errorf("scene %s: %w", def.ID, err)
		}
		defaultDuration = d
	}
	block, err := session.Open(defaultDuration)
	if err != nil {
		return nil, timeline.Schedule{}, fmt.Errorf("scene %s: %w", def.ID, err)
	}
	if err := Compose(block, def, bindings); err != nil {
		session.Abort()
		return block, timeline.Schedule{}, err
	}
	if cfg.onFinish != nil {
		if err := block.SetCompletionCallback(cfg.onFinish); err != nil {
			return block, timeline.Schedule{}, err
		}
	}
	sched, err := block.Commit(ctx)
	if err != nil {
		return block, sched, fmt.Errorf("scene %s: %w", def.ID, err)
	}
	return block, sched, nil
}

// ParseDurationParam accepts a Go duration string or a number of seconds.
func ParseDurationParam(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w: duration param %q", timeline.ErrInvalidDuration, v)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("%w: duration param of type %T", timeline.ErrInvalidDuration, raw)
	}
}
