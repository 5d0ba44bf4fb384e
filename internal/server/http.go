package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/yanpl/grasser/internal/config"
	"github.com/yanpl/grasser/internal/monitoring"
)

// MaxNameLength is the longest accepted display name.
const MaxNameLength = 16

// MaxInboundMessage is the longest accepted raw chat line in runes.
const MaxInboundMessage = 256

// Handler returns the HTTP routes: /ws, /healthz and /stats.
func (h *Hub) Handler(metrics *monitoring.MetricsCollector) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "players": h.PlayerCount()})
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if metrics == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "metrics disabled"})
			return
		}
		writeJSON(w, http.StatusOK, metrics.FullStats())
	})
	return mux
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name must be 1-16 characters"})
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	p := newPlayer(h, name)
	h.join(p)
	defer h.leave(p)

	go p.writeLoop(ctx, conn, cancel)
	p.readLoop(ctx, conn)

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (p *Player) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug().Err(err).Str("player", p.name).Msg("websocket read failed")
			}
			return
		}
		if f.Type != FrameChat {
			continue
		}
		msg := strings.TrimSpace(f.Message)
		if msg == "" {
			continue
		}
		if utf8.RuneCountInString(msg) > MaxInboundMessage {
			p.SendMessage("§cMessage too long")
			continue
		}
		p.hub.receive(p, msg)
	}
}

func (p *Player) writeLoop(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-p.out:
			writeCtx, done := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, conn, f)
			done()
			if err != nil {
				log.Debug().Err(err).Str("player", p.name).Msg("websocket write failed")
				return
			}
		}
	}
}

// ListenAndServe serves handler on addr until ctx is done, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("chat server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
