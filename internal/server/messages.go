package server

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/npezzotti/nodechat/internal/chat"
	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/types"
)

// Inbound events.
const (
	EventUserSetup             = "userSetup"
	EventJoinRoom              = "joinRoom"
	EventSendMessage           = "sendMessage"
	EventRequestRecommendation = "requestRecommendation"
)

// Outbound events.
const (
	EventSessionEstablished   = "sessionEstablished"
	EventHistory              = "history"
	EventReceiveMessage       = "receiveMessage"
	EventRecommendationResult = "recommendationResult"
	EventError                = "error"
)

// ClientMessage is one inbound frame. Data is decoded into the payload type
// matching Event.
type ClientMessage struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

type UserSetup struct {
	LocalToken  string            `mapstructure:"localToken"`
	Nickname    string            `mapstructure:"nickname"`
	Attribution types.Attribution `mapstructure:"attribution"`
}

type JoinRoom struct {
	UserId          string `mapstructure:"userId"`
	FromRoomKey     string `mapstructure:"fromRoomKey"`
	ToRoomKey       string `mapstructure:"toRoomKey"`
	DurationSeconds int    `mapstructure:"durationSeconds"`
	TransitionType  string `mapstructure:"transitionType"`
}

type SendMessage struct {
	UserId  string `mapstructure:"userId"`
	RoomKey string `mapstructure:"roomKey"`
	Text    string `mapstructure:"text"`
}

type RequestRecommendation struct {
	RoomKey string `mapstructure:"roomKey"`
}

// decodePayload decodes with weak typing so numbers may arrive as strings.
func decodePayload(data map[string]any, out any) error {
	if err := mapstructure.WeakDecode(data, out); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", chat.ErrInvalid, err)
	}
	return nil
}

type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Session struct {
	UserId     string `json:"userId"`
	Nickname   string `json:"nickname"`
	LocalToken string `json:"localToken"`
}

type Recommendation struct {
	RecommendedKey *string `json:"recommendedKey"`
}

type ErrorReply struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}

func SessionEstablished(user database.User) *ServerMessage {
	return &ServerMessage{
		Event: EventSessionEstablished,
		Data: Session{
			UserId:     user.Id.String(),
			Nickname:   user.Nickname,
			LocalToken: user.LocalToken,
		},
	}
}

func History(msgs []database.Message) *ServerMessage {
	history := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, wireMessage(m, m.SenderNickname))
	}
	return &ServerMessage{Event: EventHistory, Data: history}
}

func ReceiveMessage(msg database.Message, senderNickname string) *ServerMessage {
	return &ServerMessage{Event: EventReceiveMessage, Data: wireMessage(msg, senderNickname)}
}

// RecommendationResult carries a null key when ok is false.
func RecommendationResult(key string, ok bool) *ServerMessage {
	var rec Recommendation
	if ok {
		rec.RecommendedKey = &key
	}
	return &ServerMessage{Event: EventRecommendationResult, Data: rec}
}

func ErrorEvent(event, reason string) *ServerMessage {
	return &ServerMessage{Event: EventError, Data: ErrorReply{Event: event, Reason: reason}}
}

func wireMessage(m database.Message, senderNickname string) types.Message {
	return types.Message{
		Text:           m.Content,
		SenderId:       m.UserId,
		SenderNickname: senderNickname,
		CreatedAt:      m.CreatedAt,
	}
}
