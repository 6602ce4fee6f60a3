/*
Package chatclient implements the client side of one ride's chat panel: it
connects to the hub, loads the message history, merges live messages and keeps
the unread counter used by a collapsed panel.
*/
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cycleconnect/internal/app/chat"
	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/resp"
)

// LockedPlaceholder is shown instead of the chat to users outside the ride.
const LockedPlaceholder = "Join this ride to access the chat"

var (
	// ErrChatLocked is returned by Start when the viewer is not a ride member.
	ErrChatLocked = errors.New("chat is available to ride members only")

	ErrNotConnected = errors.New("chat is not connected")
)

// Session carries the caller's credentials. Nothing is read from ambient state.
type Session struct {
	// BaseURL is the server origin, e.g. "https://api.example.com".
	BaseURL string
	Token   string
	UserID  string
}

// Controller drives the chat of one ride.
type Controller struct {
	session Session
	rideID  string

	dialer *websocket.Dialer
	client *http.Client

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	locked    bool
	messages  []message.View
	seen      map[string]struct{}
	expanded  bool
	unread    int
	lastErr   string

	// writeMu serializes socket writes.
	writeMu sync.Mutex
	done    chan struct{}

	logger zerolog.Logger
}

// Option customizes a Controller.
type Option func(*Controller)

func WithHTTPClient(c *http.Client) Option {
	return func(ctl *Controller) { ctl.client = c }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(ctl *Controller) { ctl.dialer = d }
}

func New(s Session, rideID string, opts ...Option) *Controller {
	c := &Controller{
		session: s,
		rideID:  rideID,
		dialer:  websocket.DefaultDialer,
		client:  http.DefaultClient,
		seen:    make(map[string]struct{}),
		logger:  logx.Component("chat-client").With().Str("ride_id", rideID).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start connects to the hub, joins the ride room and loads the history.
// Viewers who are neither organizer nor confirmed participant get ErrChatLocked.
func (c *Controller) Start(ctx context.Context, r *ride.Ride) error {
	if r == nil || !r.IsConfirmed(c.session.UserID) {
		c.mu.Lock()
		c.locked = true
		c.mu.Unlock()
		return ErrChatLocked
	}

	wsURL, err := c.socketURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.session.Token)

	conn, res, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if res != nil {
			return fmt.Errorf("dial hub: %w (HTTP %d)", err, res.StatusCode)
		}
		return fmt.Errorf("dial hub: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.locked = false
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn, c.done)

	if err := c.emit(chat.EventJoinRide, chat.RideRef{RideID: c.rideID}); err != nil {
		c.Close()
		return err
	}

	history, err := c.fetchHistory(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to load chat history")
		return nil
	}
	c.mergeHistory(history)
	return nil
}

func (c *Controller) socketURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.session.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	return u.String(), nil
}

func (c *Controller) fetchHistory(ctx context.Context) ([]message.View, error) {
	endpoint := strings.TrimRight(c.session.BaseURL, "/") + "/api/rides/" + url.PathEscape(c.rideID) + "/messages"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.session.Token)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var body struct {
		resp.JSONResponse
		Data []message.View `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history: HTTP %d: %s", res.StatusCode, body.Message)
	}
	return body.Data, nil
}

// mergeHistory puts history first and keeps live messages that arrived meanwhile.
func (c *Controller) mergeHistory(history []message.View) {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.messages
	merged := make([]message.View, 0, len(history)+len(live))
	known := make(map[string]struct{}, len(history)+len(live))

	for _, m := range history {
		if _, ok := known[m.ID]; ok {
			continue
		}
		known[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range live {
		if _, ok := known[m.ID]; ok {
			continue
		}
		known[m.ID] = struct{}{}
		merged = append(merged, m)
	}

	c.messages = merged
	c.seen = known
}

func (c *Controller) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		close(done)
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Chat connection lost")
			}
			return
		}

		var env chat.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.logger.Warn().Err(err).Msg("Ignoring malformed frame")
			continue
		}
		c.handle(env)
	}
}

func (c *Controller) handle(env chat.Envelope) {
	switch env.Event {
	case chat.EventNewMessage:
		var m message.View
		if err := json.Unmarshal(env.Data, &m); err != nil {
			c.logger.Warn().Err(err).Msg("Ignoring malformed message")
			return
		}
		c.receive(m)

	case chat.EventMessageError, chat.EventError:
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Data, &e); err != nil {
			c.logger.Warn().Err(err).Str("event", env.Event).Msg("Ignoring malformed error frame")
			return
		}

		if e.Error == "" {
			e.Error = e.Message
		}

		c.mu.Lock()
		c.lastErr = e.Error
		c.mu.Unlock()
	}
}

func (c *Controller) receive(m message.View) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.RideID != "" && m.RideID != c.rideID {
		return
	}
	if _, ok := c.seen[m.ID]; ok {
		return
	}
	c.seen[m.ID] = struct{}{}
	c.messages = append(c.messages, m)

	if !c.expanded && m.Sender.ID != c.session.UserID {
		c.unread++
	}
}

func (c *Controller) emit(event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if conn == nil || !connected {
		return ErrNotConnected
	}

	frame, err := chat.Encode(event, data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Send posts content to the ride chat. Blank content is ignored.
func (c *Controller) Send(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	return c.emit(chat.EventSendMessage, message.Draft{
		RideID:  c.rideID,
		Content: content,
		Type:    message.TypeText,
	})
}

// SetExpanded opens or collapses the panel. Opening it clears the unread counter.
func (c *Controller) SetExpanded(expanded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expanded = expanded
	if expanded {
		c.unread = 0
	}
}

// Messages returns the chat in display order.
func (c *Controller) Messages() []message.View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]message.View(nil), c.messages...)
}

func (c *Controller) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.unread
}

// Connected reports whether the socket is open.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// Placeholder returns the text shown instead of the chat, or "" when the chat is available.
func (c *Controller) Placeholder() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locked {
		return LockedPlaceholder
	}
	return ""
}

// LastError returns the last error reported by the hub.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// Close leaves the ride room and closes the socket.
func (c *Controller) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := c.emit(chat.EventLeaveRide, chat.RideRef{RideID: c.rideID}); err != nil && !errors.Is(err, ErrNotConnected) {
		c.logger.Debug().Err(err).Msg("Failed to send leave-ride")
	}

	c.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := conn.Close()
	<-done

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	return err
}
