package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/streaming"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const writeWait = 10 * time.Second

var errClientGone = errors.NewPlain("client disconnected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// streaming clients are third-party apps on arbitrary origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frame is one server-to-client socket message.
type frame struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}

// control is a client-to-server socket message.
type control struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
}

type errorFrame struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// handleNotificationStream serves the user:notification stream as server-sent events.
func (s *Server) handleNotificationStream(c *gin.Context) {
	userID := c.GetString(userIDKey)
	sub := s.bus.Subscribe(userID)
	defer sub.Close()

	wanted := map[streaming.Category]bool{streaming.UserNotification: true}
	keepAlive := time.NewTicker(s.conf.KeepAliveInterval())
	defer keepAlive.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	io.WriteString(c.Writer, ":)\n\n")
	c.Writer.Flush()

	log := s.log.With().Str("user", userID).Logger()
	log.Debug().Msg("Streaming: SSE client connected")
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Uint64("dropped", sub.Dropped()).Msg("Streaming: SSE client gone")
			return
		case <-keepAlive.C:
			io.WriteString(c.Writer, ":thump\n\n")
			c.Writer.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !ev.Matches(wanted) {
				continue
			}
			payload, err := s.payload(ctx, ev)
			if err != nil {
				log.Warn().Err(err).Msg("Streaming: failed to render event")
				continue
			}
			c.SSEvent(string(ev.Kind), payload)
			c.Writer.Flush()
		}
	}
}

// subscriptions is the set of categories one socket listens to.
type subscriptions struct {
	mu     sync.Mutex
	wanted map[streaming.Category]bool
}

func (w *subscriptions) set(c streaming.Category, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if on {
		w.wanted[c] = true
	} else {
		delete(w.wanted, c)
	}
}

// matching returns the event's categories the socket asked for, nil when none.
func (w *subscriptions) matching(ev streaming.Event) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var names []string
	for _, c := range ev.Categories {
		if w.wanted[c] {
			names = append(names, string(c))
		}
	}
	return names
}

// handleSocket multiplexes the user's categories over one WebSocket.
func (s *Server) handleSocket(c *gin.Context) {
	userID := c.GetString(userIDKey)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Streaming: websocket upgrade failed")
		return
	}
	defer conn.Close()

	subs := &subscriptions{wanted: make(map[streaming.Category]bool)}
	errs := make(chan errorFrame, 4)
	if name := c.Query("stream"); name != "" {
		if cat, ok := streaming.ParseCategory(name); ok {
			subs.set(cat, true)
		} else {
			errs <- errorFrame{Error: "Unknown stream type"}
		}
	}

	sub := s.bus.Subscribe(userID)
	defer sub.Close()

	log := s.log.With().Str("user", userID).Logger()
	log.Debug().Msg("Streaming: websocket client connected")

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		return s.readControl(ctx, conn, subs, errs)
	})
	g.Go(func() error {
		defer conn.Close()
		return s.writeEvents(ctx, conn, sub, subs, errs)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errClientGone) {
		log.Debug().Err(err).Msg("Streaming: websocket closed")
	}
}

func (s *Server) readControl(ctx context.Context, conn *websocket.Conn, subs *subscriptions, errs chan<- errorFrame) error {
	timeout := 2 * s.conf.KeepAliveInterval()
	conn.SetReadDeadline(time.Now().Add(timeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return err
			}
			return errClientGone
		}
		var msg control
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = control{}
		}
		conn.SetReadDeadline(time.Now().Add(timeout))

		cat, ok := streaming.ParseCategory(msg.Stream)
		if !ok || (msg.Type != "subscribe" && msg.Type != "unsubscribe") {
			select {
			case errs <- errorFrame{Error: "Unknown stream type"}:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		subs.set(cat, msg.Type == "subscribe")
	}
}

func (s *Server) writeEvents(ctx context.Context, conn *websocket.Conn, sub *streaming.Subscription, subs *subscriptions, errs <-chan errorFrame) error {
	ping := time.NewTicker(s.conf.KeepAliveInterval())
	defer ping.Stop()

	write := func(v any) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case e := <-errs:
			if err := write(e); err != nil {
				return err
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			names := subs.matching(ev)
			if names == nil {
				continue
			}
			payload, err := s.payload(ctx, ev)
			if err != nil {
				s.log.Warn().Err(err).Msg("Streaming: failed to render event")
				continue
			}
			if err := write(frame{Stream: names, Event: string(ev.Kind), Payload: payload}); err != nil {
				return err
			}
		}
	}
}
