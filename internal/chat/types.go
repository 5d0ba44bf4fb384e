// Package chat intercepts player chat and routes it through the AI
// rewriter.
//
// FILES:
//   - types.go:       Host-facing interfaces and the chat event
//   - interceptor.go: Event disposition, bypass and per-player queues
//   - sanitize.go:    Cleanup of model output before it reaches chat
//   - notice.go:      Player-facing error notices
package chat

import (
	"context"

	"github.com/yanpl/grasser/internal/cloudflare"
)

// Player is a connected player as seen by the interceptor.
//
// Chat must publish through the host's normal chat path and dispatch the
// resulting event synchronously on the host thread, so that the bypass
// entry set for a re-published message is consumed before Chat returns.
type Player interface {
	ID() string
	Name() string
	Chat(message string)
	SendMessage(message string)
}

// Scheduler runs tasks on the host's single authoritative thread.
type Scheduler interface {
	RunTask(task func())
}

// Rewriter starts a rewrite without blocking. *cloudflare.Client
// implements it.
type Rewriter interface {
	Rewrite(ctx context.Context, req cloudflare.RewriteRequest) *cloudflare.Pending
}

// Event is one incoming chat message. A cancelled event is not published
// by the host.
type Event struct {
	Player    Player
	Message   string
	cancelled bool
}

// NewEvent creates an uncancelled chat event.
func NewEvent(p Player, message string) *Event {
	return &Event{Player: p, Message: message}
}

// Cancel suppresses the publish of this event.
func (e *Event) Cancel() { e.cancelled = true }

// Cancelled reports whether a listener suppressed the event.
func (e *Event) Cancelled() bool { return e.cancelled }

// Listener receives chat events on the host thread.
type Listener interface {
	OnChat(ev *Event)
}
