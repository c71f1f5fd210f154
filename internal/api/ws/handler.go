// Package ws serves the story session over websockets.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/storybox/internal/app/session"
)

// Message types.
const (
	TypeIntent = "intent"
	TypeAlive  = "alive"
	TypeStatus = session.FeedStatus
	TypeEvent  = session.FeedEvent
	TypeError  = "error"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	outBuffer   = 16
	eventBuffer = 32
)

var errUnauthenticated = errors.New("unauthenticated")

// Host is the session surface the handler needs.
type Host interface {
	session.FeedSource
	Apply(req session.IntentRequest) error
	Status() session.Status
	Done() <-chan struct{}
}

// Input is a client message.
type Input struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Output is a server message.
type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type handlerFunc func(ctx context.Context, c *client, payload json.RawMessage) error

// Handler upgrades connections and routes their messages.
type Handler struct {
	host     Host
	token    string
	upgrader websocket.Upgrader
	routes   map[string]handlerFunc
}

// NewHandler creates a websocket handler. A non-empty token is required
// from clients that send intents.
func NewHandler(host Host, token string) *Handler {
	h := &Handler{
		host:  host,
		token: token,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	h.routes = map[string]handlerFunc{
		TypeIntent: h.handleIntent,
		TypeAlive:  h.handleAlive,
	}
	return h
}

// Mount registers the websocket endpoint on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/ws", h.ServeHTTP)
}

// ServeHTTP upgrades the request and serves the connection until either side closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("failed to upgrade to websocket: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		conn:   conn,
		out:    make(chan Output, outBuffer),
		authed: h.authorized(r),
	}
	zlog.Info().Msgf("websocket connected: remote=%s", r.RemoteAddr)

	feed := session.NewFeed(h.host, eventBuffer)
	defer feed.Close()

	c.send(Output{Type: TypeStatus, Payload: h.host.Status().Map()})

	go h.pump(ctx, cancel, feed, c)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()

	if err := h.readLoop(ctx, c); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		zlog.Debug().Msgf("websocket read ended: %v", err)
	}
	cancel()
	<-writerDone
	zlog.Info().Msgf("websocket disconnected: remote=%s", r.RemoteAddr)
}

// pump forwards feed messages to the client until ctx ends or the session stops.
func (h *Handler) pump(ctx context.Context, cancel context.CancelFunc, feed *session.Feed, c *client) {
	go func() {
		select {
		case <-h.host.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	for {
		msg, err := feed.Next(ctx)
		if err != nil {
			return
		}
		c.send(Output{Type: msg.Type, Payload: msg.Payload()})
	}
}

func (h *Handler) readLoop(ctx context.Context, c *client) error {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in Input
		if err := c.conn.ReadJSON(&in); err != nil {
			return err
		}

		handler, ok := h.routes[in.Type]
		if !ok {
			c.sendError(errors.Newf("unknown message type %q", in.Type))
			continue
		}
		if err := handler(ctx, c, in.Payload); err != nil {
			c.sendError(err)
		}
	}
}

func (h *Handler) handleIntent(ctx context.Context, c *client, payload json.RawMessage) error {
	if !c.authed {
		return errUnauthenticated
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return errors.Wrap(err, "failed to decode intent payload")
	}
	req, err := session.DecodeIntent(m)
	if err != nil {
		return err
	}
	return h.host.Apply(req)
}

func (h *Handler) handleAlive(ctx context.Context, c *client, payload json.RawMessage) error {
	return nil
}

// authorized reports whether r carries the configured token, either as a
// bearer header or a token query parameter.
func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// client is one websocket connection. Only writeLoop writes to conn.
type client struct {
	conn   *websocket.Conn
	out    chan Output
	authed bool
}

func (c *client) send(msg Output) {
	select {
	case c.out <- msg:
	default:
		zlog.Warn().Msgf("websocket client too slow, message dropped: type=%s", msg.Type)
	}
}

func (c *client) sendError(err error) {
	c.send(Output{Type: TypeError, Payload: map[string]any{"message": err.Error()}})
}

func (c *client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			// Unblocks the reader
			c.conn.Close()
			return
		case msg := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				zlog.Debug().Msgf("failed to write json: %v", err)
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
