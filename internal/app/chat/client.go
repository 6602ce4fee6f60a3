/*
Package chat contains the realtime session hub: ride rooms, user connections and
event fan-out.

This file defines the Client struct, representing an authenticated WebSocket connection.
It runs the read and write loops and handles every inbound event.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/store"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/metrics"
	"cycleconnect/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 16384

	sendBuffer = 256
)

// Client is one authenticated connection. A user may hold several.
type Client struct {
	// ID is the connection identifier, unique across processes.
	ID string

	// UserID is the authenticated user.
	UserID string

	manager *Manager
	conn    *websocket.Conn

	// sender is the user summary attached to messages from this connection.
	sender user.Summary

	// rooms the connection joined, guarded by the manager lock.
	rooms map[string]struct{}

	// a buffered channel used to queue frames waiting to be written.
	send chan []byte

	// closed when the connection is shutting down.
	done      chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

func newClient(m *Manager, conn *websocket.Conn, id string, u *user.User) *Client {
	return &Client{
		ID:      id,
		UserID:  u.ID,
		manager: m,
		conn:    conn,
		sender:  u.Summary(),
		rooms:   make(map[string]struct{}),
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		logger: logx.Component("hub-client").With().
			Str("client_id", id).
			Str("user_id", u.ID).
			Logger(),
	}
}

// ReadPump reads frames until the connection fails, processing them in order.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		c.processInbound(frame)
	}
}

// cleanupOnDisconnect drops all memberships silently and closes the connection.
func (c *Client) cleanupOnDisconnect() {
	c.manager.unregister(c)
	c.close()

	if err := c.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
	c.logger.Info().Msg("Client disconnected.")
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// WritePump writes queued frames and heartbeats until the connection closes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}

		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}

		case <-c.done:
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// write sends one frame. It returns false if the WritePump loop should terminate.
func (c *Client) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		if messageType != websocket.CloseMessage {
			c.logger.Warn().Err(err).Int("message_type", messageType).Msg("Error writing frame")
		}
		return false
	}

	return true
}

// enqueue queues a frame without blocking. It reports false when the frame was dropped.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// emit sends event to this connection only.
func (c *Client) emit(event string, data any) {
	frame, err := Encode(event, data)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to encode frame")
		return
	}

	if !c.enqueue(frame) {
		metrics.HubDroppedFrames.Inc()
		c.logger.Warn().Str("event", event).Msg("Client send queue full, frame dropped.")
	}
}

// SendError answers the sender with an error event.
func (c *Client) SendError(event string, customErr *errs.CustomError) {
	c.emit(EventError, ErrorPayload{
		Event:   event,
		Code:    customErr.Code,
		Message: customErr.Message,
	})
}

func (c *Client) processInbound(frame []byte) {
	var in Envelope
	if err := json.Unmarshal(frame, &in); err != nil || in.Event == "" {
		c.logger.Warn().Err(err).Int("frame_bytes", len(frame)).Msg("Client sent invalid frame")
		c.SendError("", errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	handler, ok := inboundHandlers[in.Event]
	if !ok {
		c.logger.Warn().Str("event", in.Event).Msg("Client sent unsupported event")
		c.SendError(in.Event, errs.NewError(errs.ErrUnknownEvent, in.Event))
		return
	}

	metrics.HubEventsTotal.WithLabelValues(in.Event).Inc()

	if customErr := handler(c, in.Data); customErr != nil {
		if in.Event == EventSendMessage {
			c.emit(EventMessageError, MessageError{
				Error:  customErr.Message,
				Code:   customErr.Code,
				Fields: customErr.Fields,
			})
			return
		}
		c.SendError(in.Event, customErr)
	}
}

type inboundHandler func(c *Client, data json.RawMessage) *errs.CustomError

var inboundHandlers map[string]inboundHandler

func init() {
	inboundHandlers = map[string]inboundHandler{
		EventJoinRide:         (*Client).handleJoinRide,
		EventLeaveRide:        (*Client).handleLeaveRide,
		EventSendMessage:      (*Client).handleSendMessage,
		EventLocationUpdate:   (*Client).handleLocationUpdate,
		EventRideStatusUpdate: (*Client).handleRideStatusUpdate,
		EventUserJoinedRide:   memberNoticeHandler(EventUserJoinedRide, EventParticipantJoined),
		EventUserLeftRide:     memberNoticeHandler(EventUserLeftRide, EventParticipantLeft),
		EventEmergencyAlert:   (*Client).handleEmergencyAlert,
		EventMarkMessagesRead: (*Client).handleMarkMessagesRead,
		EventTypingStart:      typingHandler(true),
		EventTypingStop:       typingHandler(false),
	}
}

func (c *Client) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.manager.ctx, storeTimeout)
}

func (c *Client) now() time.Time {
	return c.manager.opts.Now().UTC()
}

// checkRoom enforces room membership for room events when the hub requires it.
func (c *Client) checkRoom(rideID string) *errs.CustomError {
	if !c.manager.opts.EnforceMembership || c.manager.inRoom(c, rideID) {
		return nil
	}
	return errs.NewError(errs.ErrNotRideMember)
}

func (c *Client) handleJoinRide(data json.RawMessage) *errs.CustomError {
	var ref RideRef
	if customErr := decode(EventJoinRide, data, &ref); customErr != nil {
		return customErr
	}
	rideID, customErr := requireRide(EventJoinRide, ref.RideID)
	if customErr != nil {
		return customErr
	}

	if c.manager.opts.EnforceMembership {
		ctx, cancel := c.storeCtx()
		r, err := c.manager.store.GetRide(ctx, rideID)
		cancel()

		switch {
		case errors.Is(err, store.ErrNotFound):
			return errs.NewError(errs.ErrRideNotFound)
		case err != nil:
			return errs.Internal(err)
		case !r.IsConfirmed(c.UserID):
			return errs.NewError(errs.ErrNotRideMember)
		}
	}

	c.manager.join(c, rideID)
	c.logger.Debug().Str("ride_id", rideID).Msg("Joined ride room.")

	c.emit(EventJoinedRide, RideRef{RideID: rideID})
	return nil
}

func (c *Client) handleLeaveRide(data json.RawMessage) *errs.CustomError {
	var ref RideRef
	if customErr := decode(EventLeaveRide, data, &ref); customErr != nil {
		return customErr
	}
	rideID, customErr := requireRide(EventLeaveRide, ref.RideID)
	if customErr != nil {
		return customErr
	}

	c.manager.leave(c, rideID)
	c.logger.Debug().Str("ride_id", rideID).Msg("Left ride room.")

	c.emit(EventLeftRide, RideRef{RideID: rideID})
	return nil
}

func (c *Client) handleSendMessage(data json.RawMessage) *errs.CustomError {
	var draft message.Draft
	if customErr := decode(EventSendMessage, data, &draft); customErr != nil {
		return customErr
	}
	draft.RideID = strings.TrimSpace(draft.RideID)
	if customErr := draft.Validate(); customErr != nil {
		return customErr
	}
	if customErr := c.checkRoom(draft.RideID); customErr != nil {
		return customErr
	}

	msg := message.New(randx.ID(), c.UserID, draft, c.now())

	ctx, cancel := c.storeCtx()
	defer cancel()

	if err := c.manager.store.CreateMessage(ctx, msg); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Error().Err(err).Str("ride_id", draft.RideID).Msg("Failed to persist message")
		}
		return errs.NewError(errs.ErrMessageSendFailed)
	}
	metrics.MessagesPersisted.Inc()

	view := message.Populate(msg, c.sender)
	if err := c.manager.broadcast(ctx, msg.RideID, "", EventNewMessage, view); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to broadcast message")
	}
	return nil
}

func (c *Client) handleLocationUpdate(data json.RawMessage) *errs.CustomError {
	var in locationUpdate
	if customErr := decode(EventLocationUpdate, data, &in); customErr != nil {
		return customErr
	}
	rideID, customErr := requireRide(EventLocationUpdate, in.RideID)
	if customErr != nil {
		return customErr
	}
	if err := in.Coordinates.Validate(); err != nil {
		return errs.NewError(errs.ErrInvalidEventPayload, EventLocationUpdate).WithField("coordinates", err.Error())
	}
	if customErr := c.checkRoom(rideID); customErr != nil {
		return customErr
	}

	return c.relay(rideID, c.ID, EventParticipantLocation, ParticipantLocation{
		UserID:      c.UserID,
		Coordinates: in.Coordinates,
		Timestamp:   c.now(),
	})
}

func (c *Client) handleRideStatusUpdate(data json.RawMessage) *errs.CustomError {
	var in statusUpdate
	if customErr := decode(EventRideStatusUpdate, data, &in); customErr != nil {
		return customErr
	}
	rideID, customErr := requireRide(EventRideStatusUpdate, in.RideID)
	if customErr != nil {
		return customErr
	}
	if !ride.Status(in.Status).Valid() {
		return errs.NewError(errs.ErrInvalidEventPayload, EventRideStatusUpdate).WithField("status", "is not a known ride status")
	}
	if customErr := c.checkRoom(rideID); customErr != nil {
		return customErr
	}

	return c.relay(rideID, "", EventRideStatusChanged, RideStatusChanged{
		RideID:    rideID,
		Status:    in.Status,
		Message:   in.Message,
		Timestamp: c.now(),
		UpdatedBy: c.UserID,
	})
}

func memberNoticeHandler(event, notice string) inboundHandler {
	return func(c *Client, data json.RawMessage) *errs.CustomError {
		var in memberNotice
		if customErr := decode(event, data, &in); customErr != nil {
			return customErr
		}
		rideID, customErr := requireRide(event, in.RideID)
		if customErr != nil {
			return customErr
		}
		if customErr := c.checkRoom(rideID); customErr != nil {
			return customErr
		}

		return c.relay(rideID, c.ID, notice, ParticipantNotice{
			UserID:    in.UserID,
			UserName:  in.UserName,
			Timestamp: c.now(),
		})
	}
}

func (c *Client) handleEmergencyAlert(data json.RawMessage) *errs.CustomError {
	var in emergency
	if customErr := decode(EventEmergencyAlert, data, &in); customErr != nil {
		return customErr
	}
	rideID, customErr := requireRide(EventEmergencyAlert, in.RideID)
	if customErr != nil {
		return customErr
	}
	if customErr := c.checkRoom(rideID); customErr != nil {
		return customErr
	}

	c.logger.Warn().Str("ride_id", rideID).Msg("Emergency alert raised.")

	return c.relay(rideID, "", EventEmergencyAlert, EmergencyAlert{
		UserID:    c.UserID,
		Location:  in.Location,
		Message:   in.Message,
		Timestamp: c.now(),
	})
}

func (c *Client) handleMarkMessagesRead(data json.RawMessage) *errs.CustomError {
	var in markRead
	if customErr := decode(EventMarkMessagesRead, data, &in); customErr != nil {
		return customErr
	}
	rideID, customErr := requireRide(EventMarkMessagesRead, in.RideID)
	if customErr != nil {
		return customErr
	}
	if len(in.MessageIDs) == 0 {
		return nil
	}

	ctx, cancel := c.storeCtx()
	defer cancel()

	if _, err := c.manager.store.MarkRead(ctx, rideID, c.UserID, in.MessageIDs, c.now()); err != nil {
		c.logger.Error().Err(err).Str("ride_id", rideID).Msg("Failed to mark messages as read")
	}
	return nil
}

func typingHandler(isTyping bool) inboundHandler {
	event := EventTypingStop
	if isTyping {
		event = EventTypingStart
	}

	return func(c *Client, data json.RawMessage) *errs.CustomError {
		var ref RideRef
		if customErr := decode(event, data, &ref); customErr != nil {
			return customErr
		}
		rideID, customErr := requireRide(event, ref.RideID)
		if customErr != nil {
			return customErr
		}
		if customErr := c.checkRoom(rideID); customErr != nil {
			return customErr
		}

		return c.relay(rideID, c.ID, EventUserTyping, UserTyping{UserID: c.UserID, IsTyping: isTyping})
	}
}

// relay publishes a room event, leaving out the connection named by skip.
func (c *Client) relay(rideID, skip, event string, data any) *errs.CustomError {
	ctx, cancel := c.storeCtx()
	defer cancel()

	if err := c.manager.broadcast(ctx, rideID, skip, event, data); err != nil {
		c.logger.Error().Err(err).Str("event", event).Str("ride_id", rideID).Msg("Failed to broadcast event")
		return errs.Internal(err)
	}
	return nil
}
