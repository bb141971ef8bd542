package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kingrea/choreo/internal/timeline"
)

// Recorder is an in-memory backend with a simulated clock. Effects are
// recorded as applied and complete only when the clock is advanced, which
// keeps schedules reproducible in tests and in `choreo plan`.
type Recorder struct {
	mu          sync.Mutex
	now         time.Duration
	minDuration time.Duration
	sink        *json.Encoder
	logger      Logger

	effects   []Effect
	completed map[int]bool
	batches   []*recordedBatch
	open      *recordedBatch
}

type recordedBatch struct {
	id      int
	effects []int
	done    func()
	fired   bool
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithMinDuration widens shorter effects to d, the way real engines clamp
// to a frame.
func WithMinDuration(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.minDuration = d
		}
	}
}

// WithManifest writes one JSON line per applied effect and per commit to w.
func WithManifest(w io.Writer) RecorderOption {
	return func(r *Recorder) {
		if w != nil {
			r.sink = json.NewEncoder(w)
		}
	}
}

// WithStart sets the initial clock position.
func WithStart(at time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.now = at
	}
}

// WithRecorderLogger routes diagnostics to logger.
func WithRecorderLogger(logger Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecorder builds a recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{logger: nopLogger{}, completed: map[int]bool{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

type manifestLine struct {
	Type    string  `json:"type"`
	Batch   int     `json:"batch"`
	Effect  *Effect `json:"effect,omitempty"`
	Effects int     `json:"effects,omitempty"`
}

// Now returns the simulated clock.
func (r *Recorder) Now() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// Apply records the effect and returns its clamped duration.
func (r *Recorder) Apply(ctx context.Context, app timeline.Application) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if app.Action == nil {
		return 0, fmt.Errorf("backend: apply without action")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	duration := app.Action.Duration()
	if duration < r.minDuration {
		duration = r.minDuration
	}
	if r.open == nil {
		r.open = &recordedBatch{id: len(r.batches) + 1}
	}
	effect := newEffect(app, duration, r.open.id, len(r.open.effects))
	r.open.effects = append(r.open.effects, len(r.effects))
	r.effects = append(r.effects, effect)
	if err := r.write(manifestLine{Type: "apply", Batch: r.open.id, Effect: &effect}); err != nil {
		return 0, err
	}
	return duration, nil
}

// Commit seals the effects applied since the previous commit into a batch.
// done runs once every effect in the batch has completed.
func (r *Recorder) Commit(ctx context.Context, done func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	b := r.open
	if b == nil {
		b = &recordedBatch{id: len(r.batches) + 1}
	}
	r.open = nil
	b.done = done
	r.batches = append(r.batches, b)
	err := r.write(manifestLine{Type: "commit", Batch: b.id, Effects: len(b.effects)})
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.logger.Printf("backend: recorder committed batch %d with %d effects", b.id, len(b.effects))
	// Effects already over (and empty batches) complete immediately.
	r.AdvanceTo(r.Now())
	return nil
}

// Effects returns every effect applied so far.
func (r *Recorder) Effects() []Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Effect, len(r.effects))
	copy(out, r.effects)
	return out
}

// AdvanceTo moves the clock forward to at and completes every effect that
// has ended by then, in end order. It returns the number of completed
// effects. The clock never moves backwards.
func (r *Recorder) AdvanceTo(at time.Duration) int {
	r.mu.Lock()
	if at > r.now {
		r.now = at
	}
	var due []int
	for idx, effect := range r.effects {
		if !r.completed[idx] && effect.End() <= r.now {
			due = append(due, idx)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return r.effects[due[i]].End() < r.effects[due[j]].End()
	})
	var callbacks []func()
	for _, idx := range due {
		r.completed[idx] = true
		if done := r.effects[idx].done; done != nil {
			callbacks = append(callbacks, done)
		}
	}
	for _, b := range r.batches {
		if b.fired || !r.batchComplete(b) {
			continue
		}
		b.fired = true
		if b.done != nil {
			callbacks = append(callbacks, b.done)
		}
	}
	r.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
	return len(due)
}

// Finish advances the clock past the last effect so everything completes.
func (r *Recorder) Finish() int {
	r.mu.Lock()
	end := r.now
	for _, effect := range r.effects {
		if effect.End() > end {
			end = effect.End()
		}
	}
	r.mu.Unlock()
	return r.AdvanceTo(end)
}

func (r *Recorder) batchComplete(b *recordedBatch) bool {
	for _, idx := range b.effects {
		if !r.completed[idx] {
			return false
		}
	}
	return true
}

func (r *Recorder) write(line manifestLine) error {
	if r.sink == nil {
		return nil
	}
	if err := r.sink.Encode(line); err != nil {
		return fmt.Errorf("backend: write manifest: %w", err)
	}
	return nil
}
