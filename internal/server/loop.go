// Package server hosts the chat rewriter: a single-threaded task loop
// that owns all chat state, and a websocket chat hub built on it.
//
// FILES:
//   - loop.go:   Host thread (ordered task execution)
//   - hub.go:    Players, chat dispatch and broadcast
//   - http.go:   Websocket, health and stats endpoints
//   - frames.go: Wire format
package server

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Loop runs tasks one at a time, in submission order, on a single
// goroutine. It is the only goroutine allowed to touch chat state.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	notify  chan struct{}
	stopped bool
}

// NewLoop creates a loop. Call Run to start executing tasks.
func NewLoop() *Loop {
	return &Loop{notify: make(chan struct{}, 1)}
}

// RunTask queues a task. It never blocks, so it is safe to call from the
// loop itself. Tasks submitted after the loop stopped are dropped.
func (l *Loop) RunTask(task func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		log.Debug().Msg("loop stopped, task dropped")
		return
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Run executes tasks until ctx is done. Tasks still queued at that point
// are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			task := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.runSafely(task)

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

func (l *Loop) runSafely(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("loop task panicked")
		}
	}()
	task()
}
