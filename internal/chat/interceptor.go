package chat

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/yanpl/grasser/internal/cloudflare"
	"github.com/yanpl/grasser/internal/config"
	"github.com/yanpl/grasser/internal/monitoring"
)

// Options controls the interceptor. Build it with OptionsFromConfig.
type Options struct {
	Enabled          bool
	PromptPrefix     string
	PromptSuffix     string
	MaxPending       int // queued messages per player behind the in-flight one
	MaxMessageLength int // runes, 0 = unlimited
	RatePerMinute    int // 0 = unlimited
	RateBurst        int
}

// OptionsFromConfig maps the chat_modifier config section.
func OptionsFromConfig(cfg config.ChatModifierConfig) Options {
	return Options{
		Enabled:          cfg.Enabled,
		PromptPrefix:     cfg.PromptPrefix,
		PromptSuffix:     cfg.PromptSuffix,
		MaxPending:       maxPending(cfg.MaxPending),
		MaxMessageLength: cfg.MaxMessageLength,
		RatePerMinute:    cfg.RateLimit.PerMinute,
		RateBurst:        cfg.RateLimit.Burst,
	}
}

func maxPending(n *int) int {
	if n == nil {
		return config.DefaultMaxPending
	}
	return *n
}

// Interceptor decides, per chat event, whether a message is rewritten.
//
// Rewrites for one player are serialized: while one is in flight, later
// messages wait in a FIFO and are started only after the previous result
// has been applied. Results are always applied on the Scheduler thread.
type Interceptor struct {
	opts      Options
	rewriter  Rewriter
	scheduler Scheduler
	metrics   *monitoring.MetricsCollector

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	bypass   map[string]struct{}
	inFlight map[string]*playerQueue
	limiters map[string]*rate.Limiter
	closed   bool
}

// playerQueue exists while a player has a rewrite in flight. Once the
// player quits it is detached from inFlight and marked departed.
type playerQueue struct {
	waiting  []queuedMessage
	departed bool
}

type queuedMessage struct {
	player  Player
	message string
}

// NewInterceptor creates an interceptor. metrics may be nil.
func NewInterceptor(opts Options, rewriter Rewriter, scheduler Scheduler, metrics *monitoring.MetricsCollector) *Interceptor {
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Interceptor{
		opts:      opts,
		rewriter:  rewriter,
		scheduler: scheduler,
		metrics:   metrics,
		ctx:       ctx,
		cancel:    cancel,
		bypass:    make(map[string]struct{}),
		inFlight:  make(map[string]*playerQueue),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// OnChat handles one chat event. It never blocks on network I/O.
func (i *Interceptor) OnChat(ev *Event) {
	id := ev.Player.ID()

	i.mu.Lock()
	if _, ok := i.bypass[id]; ok {
		delete(i.bypass, id)
		i.mu.Unlock()
		i.metrics.RecordBypass()
		return
	}
	closed := i.closed
	i.mu.Unlock()

	if !i.opts.Enabled || closed {
		i.metrics.RecordPassthrough()
		return
	}

	ev.Cancel()
	i.metrics.RecordIntercepted()

	if err := i.admit(id, ev.Message); err != nil {
		i.metrics.RecordRejected()
		log.Debug().Str("player", ev.Player.Name()).Err(err).Msg("chat message rejected")
		ev.Player.SendMessage(FailureNotice(err))
		return
	}

	i.mu.Lock()
	if q, busy := i.inFlight[id]; busy {
		if len(q.waiting) >= i.opts.MaxPending {
			i.mu.Unlock()
			i.metrics.RecordRejected()
			ev.Player.SendMessage(FailureNotice(errTooManyPending))
			return
		}
		q.waiting = append(q.waiting, queuedMessage{player: ev.Player, message: ev.Message})
		i.mu.Unlock()
		i.metrics.RecordQueued()
		return
	}
	q := &playerQueue{}
	i.inFlight[id] = q
	i.mu.Unlock()

	i.start(q, ev.Player, ev.Message)
}

// OnQuit drops all per-player state. Queued messages are discarded and a
// rewrite still in flight is not published.
func (i *Interceptor) OnQuit(p Player) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id := p.ID()
	delete(i.bypass, id)
	delete(i.limiters, id)
	if q, ok := i.inFlight[id]; ok {
		q.waiting = nil
		q.departed = true
		delete(i.inFlight, id)
	}
}

// Close cancels in-flight rewrites. Later events pass through unmodified.
func (i *Interceptor) Close() {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	i.cancel()
}

// Bypassed reports whether the player's next chat event will skip
// rewriting.
func (i *Interceptor) Bypassed(playerID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.bypass[playerID]
	return ok
}

// Metrics returns the collector the interceptor records into.
func (i *Interceptor) Metrics() *monitoring.MetricsCollector {
	return i.metrics
}

// admit applies the length and rate limits. It makes no network call.
func (i *Interceptor) admit(id, message string) error {
	if i.opts.MaxMessageLength > 0 && utf8.RuneCountInString(message) > i.opts.MaxMessageLength {
		return errTooLong
	}
	if i.opts.RatePerMinute <= 0 {
		return nil
	}

	i.mu.Lock()
	lim, ok := i.limiters[id]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(i.opts.RatePerMinute)/60), max(i.opts.RateBurst, 1))
		i.limiters[id] = lim
	}
	i.mu.Unlock()

	if !lim.Allow() {
		return errRateLimited
	}
	return nil
}

func (i *Interceptor) start(q *playerQueue, p Player, message string) {
	req := cloudflare.RewriteRequest{
		RawMessage:   message,
		PromptPrefix: i.opts.PromptPrefix,
		PromptSuffix: i.opts.PromptSuffix,
	}
	started := time.Now()
	i.rewriter.Rewrite(i.ctx, req).OnComplete(func(r cloudflare.Result) {
		i.scheduler.RunTask(func() {
			i.apply(q, p, r, time.Since(started))
		})
	})
}

// apply runs on the scheduler thread.
func (i *Interceptor) apply(q *playerQueue, p Player, r cloudflare.Result, latency time.Duration) {
	defer i.next(q, p)

	i.mu.Lock()
	departed := q.departed
	i.mu.Unlock()
	if departed {
		i.metrics.RecordRewrite(r.Err == nil, latency)
		log.Debug().Str("player", p.Name()).Msg("player left before rewrite completed, result discarded")
		return
	}

	if r.Err != nil {
		i.metrics.RecordRewrite(false, latency)
		p.SendMessage(FailureNotice(r.Err))
		return
	}

	text := Sanitize(r.Text)
	if text == "" {
		i.metrics.RecordRewrite(false, latency)
		log.Warn().Str("player", p.Name()).Str("raw", r.Text).Msg("rewrite was empty after sanitizing")
		p.SendMessage(FailureNotice(errEmptyRewrite))
		return
	}

	i.metrics.RecordRewrite(true, latency)
	log.Debug().Str("player", p.Name()).Dur("latency", latency).Msg("chat rewritten")

	id := p.ID()
	i.mu.Lock()
	i.bypass[id] = struct{}{}
	i.mu.Unlock()

	p.Chat(text)

	// The republished event has completed its cycle. If the host dropped
	// it before it reached us, the entry must not outlive this cycle.
	i.mu.Lock()
	delete(i.bypass, id)
	i.mu.Unlock()
}

// next starts the player's oldest queued message, or clears the
// in-flight marker when the queue is empty. After Close the remaining
// queued messages are rejected with a notice.
func (i *Interceptor) next(q *playerQueue, p Player) {
	i.mu.Lock()
	if q.departed {
		i.mu.Unlock()
		return
	}
	if len(q.waiting) == 0 || i.closed {
		dropped := q.waiting
		q.waiting = nil
		if i.inFlight[p.ID()] == q {
			delete(i.inFlight, p.ID())
		}
		i.mu.Unlock()
		for _, msg := range dropped {
			i.metrics.RecordRejected()
			msg.player.SendMessage(FailureNotice(errShuttingDown))
		}
		return
	}
	msg := q.waiting[0]
	q.waiting = q.waiting[1:]
	i.mu.Unlock()

	i.start(q, msg.player, msg.message)
}
