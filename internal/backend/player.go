package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kingrea/choreo/internal/timeline"
)

// ErrStopped is returned by a Player after Stop.
var ErrStopped = errors.New("backend: player stopped")

// EventKind classifies player events.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventFinished EventKind = "finished"
	EventBatch    EventKind = "batch"
	EventStopped  EventKind = "stopped"
)

// Event reports playback progress to observers such as the TUI.
type Event struct {
	Kind   EventKind
	Effect Effect
	Batch  int
	// At is the player clock when the event fired.
	At time.Duration
}

const defaultEventBuffer = 256

// Player is a wall-clock backend. Each applied effect starts and finishes on
// timers relative to the player's start time; finishing an effect calls its
// completion.
type Player struct {
	start  time.Time
	logger Logger

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	open    *playBatch
	batches int
	stopped bool
	events  chan Event
}

type playBatch struct {
	id        int
	applied   int
	remaining int
	sealed    bool
	done      func()
}

// PlayerOption customizes a Player.
type PlayerOption func(*Player)

// WithEventBuffer sizes the events channel. When it is full, started and
// finished events give way; batch and stopped events are always queued.
func WithEventBuffer(size int) PlayerOption {
	return func(p *Player) {
		if size > 0 {
			p.events = make(chan Event, size)
		}
	}
}

// WithPlayerLogger routes diagnostics to logger.
func WithPlayerLogger(logger Logger) PlayerOption {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPlayer starts the player clock.
func NewPlayer(opts ...PlayerOption) *Player {
	p := &Player{
		start:  time.Now(),
		logger: nopLogger{},
		timers: map[*time.Timer]struct{}{},
		events: make(chan Event, defaultEventBuffer),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Events streams playback progress. The channel is closed by Stop.
func (p *Player) Events() <-chan Event {
	return p.events
}

// Now returns the time elapsed since the player started.
func (p *Player) Now() time.Duration {
	return time.Since(p.start)
}

// Apply schedules the effect's start and finish timers.
func (p *Player) Apply(ctx context.Context, app timeline.Application) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if app.Action == nil {
		return 0, fmt.Errorf("backend: apply without action")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return 0, ErrStopped
	}
	if p.open == nil {
		p.batches++
		p.open = &playBatch{id: p.batches}
	}
	b := p.open
	effect := newEffect(app, app.Action.Duration(), b.id, b.applied)
	b.applied++
	b.remaining++
	now := p.Now()
	p.after(effect.Begin-now, func() {
		p.emit(Event{Kind: EventStarted, Effect: effect, Batch: b.id, At: p.Now()})
	})
	p.after(effect.End()-now, func() {
		p.finish(effect, b)
	})
	return effect.Duration, nil
}

// Commit seals the current batch. done runs after its last effect finishes.
func (p *Player) Commit(ctx context.Context, done func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	b := p.open
	p.open = nil
	if b == nil {
		p.batches++
		b = &playBatch{id: p.batches}
	}
	b.sealed = true
	b.done = done
	fire := b.remaining == 0
	p.mu.Unlock()
	p.logger.Printf("backend: player committed batch %d", b.id)
	if fire {
		p.completeBatch(b)
	}
	return nil
}

// Stop cancels every pending timer and closes the events channel. Completions
// of cancelled effects are never delivered.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancelled := 0
	for timer := range p.timers {
		if timer.Stop() {
			cancelled++
		}
	}
	p.timers = map[*time.Timer]struct{}{}
	p.sendLocked(Event{Kind: EventStopped, At: p.Now()})
	close(p.events)
	p.mu.Unlock()
	p.logger.Printf("backend: player stopped, %d timers cancelled", cancelled)
}

func (p *Player) after(delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		p.mu.Lock()
		_, live := p.timers[timer]
		delete(p.timers, timer)
		p.mu.Unlock()
		if live {
			fn()
		}
	})
	p.timers[timer] = struct{}{}
}

func (p *Player) finish(effect Effect, b *playBatch) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	b.remaining--
	fire := b.sealed && b.remaining == 0
	p.sendLocked(Event{Kind: EventFinished, Effect: effect, Batch: b.id, At: p.Now()})
	p.mu.Unlock()
	if effect.done != nil {
		effect.done()
	}
	if fire {
		p.completeBatch(b)
	}
}

func (p *Player) completeBatch(b *playBatch) {
	p.emit(Event{Kind: EventBatch, Batch: b.id, At: p.Now()})
	if b.done != nil {
		b.done()
	}
}

func (p *Player) emit(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.sendLocked(ev)
}

// critical events end playback for observers and must not be lost.
func (ev Event) critical() bool {
	return ev.Kind == EventBatch || ev.Kind == EventStopped
}

// sendLocked never blocks. On overflow a progress event is dropped: the
// incoming one, or for a critical incoming event the oldest queued one.
func (p *Player) sendLocked(ev Event) {
	select {
	case p.events <- ev:
		return
	default:
	}
	if !ev.critical() {
		p.logger.Printf("backend: events full, dropped %s of batch %d", ev.Kind, ev.Batch)
		return
	}
	// Only this goroutine sends while p.mu is held, so requeueing what was
	// taken out cannot block.
	queued := make([]Event, 0, cap(p.events))
	for drained := false; !drained; {
		select {
		case old := <-p.events:
			queued = append(queued, old)
		default:
			drained = true
		}
	}
	evicted := false
	for i, old := range queued {
		if !old.critical() {
			queued = append(queued[:i], queued[i+1:]...)
			evicted = true
			break
		}
	}
	if !evicted && len(queued) == cap(p.events) {
		queued = queued[1:]
	}
	for _, old := range queued {
		p.events <- old
	}
	p.events <- ev
}
