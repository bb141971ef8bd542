package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session tracks the block currently open for appends. At most one block is
// open per session; nested opens are rejected.
type Session struct {
	backend Backend
	opts    options

	mu      sync.Mutex
	current *Block
}

// NewSession binds a session to a backend.
func NewSession(backend Backend, opts ...Option) (*Session, error) {
	if backend == nil {
		return nil, fmt.Errorf("timeline: session requires a backend")
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Session{backend: backend, opts: o}, nil
}

// Open starts a new block. Zero selects DefaultBlockDuration.
func (s *Session) Open(defaultDuration time.Duration) (*Block, error) {
	if defaultDuration < 0 {
		return nil, fmt.Errorf("%w: block default %s", ErrInvalidDuration, defaultDuration)
	}
	if defaultDuration == 0 {
		defaultDuration = DefaultBlockDuration
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return nil, fmt.Errorf("%w: %s", ErrBlockOpen, s.current.id)
	}
	b := newBlock(s, defaultDuration)
	s.current = b
	return b, nil
}

// Current returns the open block.
func (s *Session) Current() (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoOpenBlock
	}
	return s.current, nil
}

// Commit commits the open block.
func (s *Session) Commit(ctx context.Context) (Schedule, error) {
	b, err := s.Current()
	if err != nil {
		return Schedule{}, err
	}
	return b.Commit(ctx)
}

// Abort drops the open block without scheduling it.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.committed = true
		s.current = nil
	}
}

func (s *Session) release(b *Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == b {
		s.current = nil
	}
}

func (s *Session) originFunc() func() time.Duration {
	if s.opts.origin != nil {
		return s.opts.origin
	}
	if clock, ok := s.backend.(Clock); ok {
		return clock.Now
	}
	return func() time.Duration { return 0 }
}

type sessionKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session carried by ctx.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// CurrentBlock returns the open block of the session carried by ctx.
func CurrentBlock(ctx context.Context) (*Block, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: context carries no session", ErrNoOpenBlock)
	}
	return s.Current()
}
