package loop

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Call once the loop has stopped.
var ErrClosed = errors.New("loop closed")

// Dispatcher serialises state transitions onto one logical thread.
//
// Post schedules fn on the thread. Go runs blocking work off the thread and
// posts the continuation it returns (if any). Call posts fn and waits for it.
type Dispatcher interface {
	Post(fn func())
	Go(work func(ctx context.Context) func())
	Call(ctx context.Context, fn func()) error
}

// Loop owns a single goroutine that drains an inbox of closures in order.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	work   sync.WaitGroup
	logger zerolog.Logger
}

var _ Dispatcher = (*Loop)(nil)

// New starts a loop bound to parent.
func New(parent context.Context, logger zerolog.Logger) *Loop {
	ctx, cancel := context.WithCancel(parent)
	l := &Loop{
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "loop").Logger(),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.wake:
		}
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			if l.ctx.Err() != nil {
				return
			}
			l.exec(fn)
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("loop callback panicked")
		}
	}()
	fn()
}

// Post never blocks; closures posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil || l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Go runs work on its own goroutine with the loop's context.
func (l *Loop) Go(work func(ctx context.Context) func()) {
	if l.ctx.Err() != nil {
		return
	}
	l.work.Add(1)
	go func() {
		defer l.work.Done()
		if cont := work(l.ctx); cont != nil {
			l.Post(cont)
		}
	}()
}

// Call posts fn and blocks until it has run.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	l.Post(func() {
		defer close(ran)
		fn()
	})
	select {
	case <-ran:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the loop goroutine exits.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Close stops the loop and waits for in-flight work to return.
func (l *Loop) Close() {
	l.cancel()
	<-l.done
	l.work.Wait()
}
