package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/cache"
)

const (
	// defaultWatchPollInterval is how often a watch stream re-reads the
	// availability pipeline when no interval is configured.
	defaultWatchPollInterval = 30 * time.Second
	// wsKeepAliveInterval is how often a ping is sent to connected clients.
	wsKeepAliveInterval = 10 * time.Second
	// wsReadDeadline is the maximum time to wait for a pong before considering the connection dead.
	wsReadDeadline = 90 * time.Second
	// wsWriteTimeout bounds a single message write.
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
	// Browser origins are already filtered by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHub tracks all active WebSocket connections so they can be closed
// during graceful shutdown. Create one in main and pass it to the handler.
type WSHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	done  chan struct{} // closed on shutdown
	once  sync.Once
}

func NewWSHub() *WSHub {
	return &WSHub{
		conns: make(map[*websocket.Conn]struct{}),
		done:  make(chan struct{}),
	}
}

func (h *WSHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *WSHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Len returns the number of open connections.
func (h *WSHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown closes all active WebSocket connections and signals handlers to exit.
func (h *WSHub) Shutdown() {
	h.once.Do(func() { close(h.done) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
}

// watchMessage is one frame of a watch stream.
type watchMessage struct {
	Type      string                      `json:"type"` // "availability" or "error"
	Library   booking.LibraryID           `json:"library_id"`
	Date      string                      `json:"date"`
	FetchedAt *time.Time                  `json:"fetched_at,omitempty"`
	ExpiresAt *time.Time                  `json:"expires_at,omitempty"`
	Data      booking.LibraryAvailability `json:"data,omitempty"`
	Error     string                      `json:"error,omitempty"`
}

// WatchAvailability handles GET /api/libraries/:libraryId/availability/watch.
// It upgrades to a WebSocket and pushes the grid of the requested day every
// time a newer one has been fetched. The stream re-reads the same cached
// pipeline as GetAvailability, so watchers share fetches with every other
// caller. The stream ends when the day is no longer today or tomorrow.
func (h *LibraryHandler) WatchAvailability(c *gin.Context) {
	id, err := libraryIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	date, err := dateQuery(c, h.svc)
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	// The first read happens before upgrading so bad requests still get a
	// plain HTTP error.
	entry, err := h.svc.LibraryAvailability(ctx, id, date)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.hub.add(conn)
	defer func() {
		h.hub.remove(conn)
		_ = conn.Close()
	}()

	day := date.In(h.svc.Location()).Format(time.DateOnly)
	last := entry.FetchedAt
	if err := writeMessage(conn, availabilityMessage(id, day, entry)); err != nil {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()
	keepAlive := time.NewTicker(wsKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-h.hub.done:
			return
		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				slog.Debug("ws: unexpected close", "error", err)
			}
			return
		case <-keepAlive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				slog.Debug("ws: keepalive write error", "error", err)
				return
			}
		case <-poll.C:
			entry, err := h.svc.LibraryAvailability(ctx, id, date)
			if err != nil {
				if werr := writeMessage(conn, watchMessage{Type: "error", Library: id, Date: day, Error: err.Error()}); werr != nil {
					return
				}
				if errors.Is(err, booking.ErrContractViolation) || errors.Is(err, context.Canceled) {
					closeNormally(conn, "day is no longer available")
					return
				}
				continue
			}
			if entry.FetchedAt.Equal(last) {
				continue
			}
			last = entry.FetchedAt
			if err := writeMessage(conn, availabilityMessage(id, day, entry)); err != nil {
				slog.Debug("ws: write error", "error", err)
				return
			}
		}
	}
}

func availabilityMessage(id booking.LibraryID, day string, e cache.Entry[booking.LibraryAvailability]) watchMessage {
	return watchMessage{
		Type:      "availability",
		Library:   id,
		Date:      day,
		FetchedAt: &e.FetchedAt,
		ExpiresAt: &e.ExpiresAt,
		Data:      e.Value,
	}
}

func writeMessage(conn *websocket.Conn, msg watchMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func closeNormally(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second),
	)
}
