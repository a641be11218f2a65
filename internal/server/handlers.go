package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/nodechat/internal/chat"
	"github.com/npezzotti/nodechat/internal/stats"
	"github.com/npezzotti/nodechat/internal/types"
	"go.uber.org/zap"
)

// eventTimeout bounds the store work of one event. It is not tied to the
// connection, so work in flight finishes after a disconnect.
const eventTimeout = 10 * time.Second

var (
	errMalformedFrame  = fmt.Errorf("%w: malformed frame", chat.ErrInvalid)
	errUnknownEvent    = fmt.Errorf("%w: unknown event", chat.ErrInvalid)
	errNoSession       = fmt.Errorf("%w: session not established", chat.ErrInvalid)
	errNotInRoom       = fmt.Errorf("%w: not in room", chat.ErrInvalid)
	errUserMismatch    = fmt.Errorf("%w: user does not match session", chat.ErrInvalid)
	errInternalFailure = errors.New("internal error")
)

func (c *Client) handle(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var err error
	switch msg.Event {
	case EventUserSetup:
		err = c.handleUserSetup(ctx, msg)
	case EventJoinRoom:
		err = c.handleJoinRoom(ctx, msg)
	case EventSendMessage:
		err = c.handleSendMessage(ctx, msg)
	case EventRequestRecommendation:
		err = c.handleRequestRecommendation(ctx, msg)
	default:
		err = errUnknownEvent
	}

	if err != nil {
		c.reject(msg.Event, err)
	}
}

// reject applies the drop policy to a failed event: always logged and
// counted, answered with an error event only when reporting is enabled.
func (c *Client) reject(event string, err error) {
	outcome := chat.Classify(err)
	fields := []zap.Field{
		zap.String("event", event),
		zap.Stringer("outcome", outcome),
		zap.Stringer("state", c.state),
		zap.Error(err),
	}
	if outcome == chat.OutcomeStoreFailure {
		c.log.Error("event dropped", fields...)
	} else {
		c.log.Info("event dropped", fields...)
	}
	c.chatServer.stats.Incr(stats.EventsDropped)

	if !c.chatServer.reportErrors {
		return
	}

	reason := err
	if outcome == chat.OutcomeStoreFailure {
		reason = errInternalFailure
	}
	c.queueMessage(ErrorEvent(event, reason.Error()))
}

func (c *Client) sessionUser(rawId string) error {
	id, err := uuid.Parse(rawId)
	if err != nil || id != c.user.Id {
		return errUserMismatch
	}
	return nil
}

func (c *Client) handleUserSetup(ctx context.Context, msg *ClientMessage) error {
	var p UserSetup
	if err := decodePayload(msg.Data, &p); err != nil {
		return err
	}

	user, err := c.chatServer.chat.Identity.EstablishSession(ctx, p.LocalToken, p.Nickname, p.Attribution)
	if err != nil {
		return err
	}

	c.user = user
	if c.state == stateUnauthenticated {
		c.state = stateIdentified
	}
	c.log.Info("user identified", zap.String("user_id", user.Id.String()))

	c.queueMessage(SessionEstablished(user))
	return nil
}

func (c *Client) handleJoinRoom(ctx context.Context, msg *ClientMessage) error {
	if c.state == stateUnauthenticated {
		return errNoSession
	}

	var p JoinRoom
	if err := decodePayload(msg.Data, &p); err != nil {
		return err
	}
	if err := c.sessionUser(p.UserId); err != nil {
		return err
	}

	t, err := c.chatServer.chat.Transitions.Record(ctx, chat.RecordParams{
		UserId:          c.user.Id,
		FromKey:         p.FromRoomKey,
		ToKey:           p.ToRoomKey,
		Type:            types.TransitionType(p.TransitionType),
		DurationSeconds: p.DurationSeconds,
	})
	if err != nil {
		return err
	}
	c.chatServer.stats.Incr(stats.TransitionsRecorded)

	key := chat.NormalizeKey(p.ToRoomKey)
	c.chatServer.moveClient(c, c.roomKey, key)
	c.roomKey = key
	c.state = stateInRoom
	c.log.Debug("joined room", zap.String("room_key", key), zap.String("transition_type", string(t.Type)))

	history, err := c.chatServer.chat.Messages.History(ctx, t.ToRoomId, 0)
	if err != nil {
		return err
	}

	c.queueMessage(History(history))
	return nil
}

func (c *Client) handleSendMessage(ctx context.Context, msg *ClientMessage) error {
	if c.state != stateInRoom {
		return errNotInRoom
	}

	var p SendMessage
	if err := decodePayload(msg.Data, &p); err != nil {
		return err
	}
	if err := c.sessionUser(p.UserId); err != nil {
		return err
	}
	key := chat.NormalizeKey(p.RoomKey)
	if key != c.roomKey {
		return errNotInRoom
	}

	m, err := c.chatServer.chat.Messages.Post(ctx, c.user.Id, key, p.Text)
	if err != nil {
		return err
	}
	c.chatServer.stats.Incr(stats.MessagesSent)

	c.chatServer.broadcast(key, ReceiveMessage(m, c.user.Nickname))
	return nil
}

func (c *Client) handleRequestRecommendation(ctx context.Context, msg *ClientMessage) error {
	var p RequestRecommendation
	if err := decodePayload(msg.Data, &p); err != nil {
		return err
	}

	key, ok, err := c.chatServer.chat.Rooms.Recommend(ctx, p.RoomKey)
	if err != nil {
		return err
	}

	c.queueMessage(RecommendationResult(key, ok))
	return nil
}
