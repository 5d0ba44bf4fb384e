package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yanpl/grasser/internal/chat"
)

// outboxSize bounds frames buffered per player before new ones are dropped.
const outboxSize = 64

// Hub tracks connected players and publishes chat. Dispatch and
// broadcast run on the Loop; the player map is also read by connection
// goroutines and is guarded by mu.
type Hub struct {
	loop      *Loop
	listeners []chat.Listener
	quitHooks []func(chat.Player)

	mu      sync.RWMutex
	players map[string]*Player
}

// NewHub creates a hub that dispatches on loop.
func NewHub(loop *Loop) *Hub {
	return &Hub{
		loop:    loop,
		players: make(map[string]*Player),
	}
}

// AddListener registers a chat listener. Call before serving.
func (h *Hub) AddListener(l chat.Listener) {
	h.listeners = append(h.listeners, l)
}

// OnQuit registers a hook run on the loop when a player leaves.
func (h *Hub) OnQuit(fn func(chat.Player)) {
	h.quitHooks = append(h.quitHooks, fn)
}

// Loop returns the hub's host thread.
func (h *Hub) Loop() *Loop {
	return h.loop
}

// PlayerCount returns the number of connected players.
func (h *Hub) PlayerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players)
}

// Player is a connected websocket player. It implements chat.Player.
type Player struct {
	id   string
	name string
	hub  *Hub
	out  chan Frame
}

func newPlayer(h *Hub, name string) *Player {
	return &Player{
		id:   uuid.New().String(),
		name: name,
		hub:  h,
		out:  make(chan Frame, outboxSize),
	}
}

// ID returns the player's unique identifier.
func (p *Player) ID() string { return p.id }

// Name returns the display name.
func (p *Player) Name() string { return p.name }

// Chat publishes message as this player through the normal chat path.
// Must be called on the loop.
func (p *Player) Chat(message string) {
	p.hub.dispatch(p, message)
}

// SendMessage delivers a private notice to this player only.
func (p *Player) SendMessage(message string) {
	p.deliver(Frame{Type: FrameNotice, Message: message})
}

func (p *Player) deliver(f Frame) {
	select {
	case p.out <- f:
	default:
		log.Warn().Str("player", p.name).Str("type", f.Type).Msg("outbox full, frame dropped")
	}
}

// dispatch fires a chat event and broadcasts it unless a listener
// cancelled it. Runs on the loop.
func (h *Hub) dispatch(p *Player, message string) {
	ev := chat.NewEvent(p, message)
	for _, l := range h.listeners {
		l.OnChat(ev)
	}
	if ev.Cancelled() {
		return
	}
	log.Info().Str("player", p.name).Str("message", message).Msg("chat")
	h.broadcast(Frame{Type: FrameChat, Player: p.name, Message: message})
}

func (h *Hub) broadcast(f Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.players {
		p.deliver(f)
	}
}

func (h *Hub) join(p *Player) {
	h.mu.Lock()
	h.players[p.id] = p
	h.mu.Unlock()

	h.loop.RunTask(func() {
		log.Info().Str("player", p.name).Str("id", p.id).Msg("player joined")
		h.broadcast(Frame{Type: FrameJoin, Player: p.name})
	})
}

func (h *Hub) leave(p *Player) {
	h.mu.Lock()
	delete(h.players, p.id)
	h.mu.Unlock()

	h.loop.RunTask(func() {
		for _, fn := range h.quitHooks {
			fn(p)
		}
		log.Info().Str("player", p.name).Msg("player left")
		h.broadcast(Frame{Type: FrameLeave, Player: p.name})
	})
}

// receive queues an incoming chat line for dispatch on the loop.
func (h *Hub) receive(p *Player, message string) {
	h.loop.RunTask(func() {
		h.dispatch(p, message)
	})
}
