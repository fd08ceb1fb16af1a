package codec

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/chenxilol/hubbot/pkg/protocol"
)

// messagePayload 入站消息帧的 data 字段
type messagePayload struct {
	MessageID  int64           `json:"message_id,omitempty"`
	SenderID   string          `json:"sender_id"`
	SenderName string          `json:"sender_name,omitempty"`
	RoomID     string          `json:"room_id,omitempty"`
	RoomTitle  string          `json:"room_title,omitempty"`
	ChannelID  string          `json:"channel_id,omitempty"`
	Content    json.RawMessage `json:"content"`
	Timestamp  int64           `json:"timestamp,omitempty"`
	Outgoing   bool            `json:"outgoing,omitempty"`
}

// richContent content 为对象时的结构，为字符串时只有文本
type richContent struct {
	Text    string                `json:"text"`
	Media   *mediaPayload         `json:"media,omitempty"`
	ReplyTo *protocol.ReplyHeader `json:"reply_to,omitempty"`
	Forward *forwardPayload       `json:"forward,omitempty"`
}

type mediaPayload struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Size     int64  `json:"size,omitempty"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
	SetName  string `json:"set_name,omitempty"`
}

type forwardPayload struct {
	FromID   string `json:"from_id,omitempty"`
	FromName string `json:"from_name,omitempty"`
	Date     int64  `json:"date,omitempty"`
}

type deletedPayload struct {
	ChatID string  `json:"chat_id"`
	IDs    []int64 `json:"ids"`
}

// 服务端未给出消息ID时使用的本地序号
var localID atomic.Int64

// PeekType 不完整解码，只读取帧的 message_type 和 event_id
func PeekType(raw []byte) (msgType, eventID string, err error) {
	if !gjson.ValidBytes(raw) {
		return "", "", fmt.Errorf("%w: malformed json", ErrInvalidFrame)
	}
	res := gjson.GetManyBytes(raw, "message_type", "event_id")
	if res[0].Type != gjson.String || res[0].Str == "" {
		return "", "", fmt.Errorf("%w: missing message_type", ErrInvalidFrame)
	}
	return res[0].Str, res[1].String(), nil
}

// DecodeEvent 把一个入站帧转换为 protocol 事件，未识别的类型转换为 *protocol.Raw
func DecodeEvent(raw []byte) (protocol.Event, error) {
	msgType, _, err := PeekType(raw)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	switch msgType {
	case TypeDirectMessage, TypeRoomMessage, TypeChannelPost:
		m, err := decodeMessage(&env)
		if err != nil {
			return nil, err
		}
		return &protocol.NewMessage{Message: m}, nil
	case TypeMessageEdited:
		m, err := decodeMessage(&env)
		if err != nil {
			return nil, err
		}
		return &protocol.MessageEdited{Message: m}, nil
	case TypeMessageDeleted:
		var p deletedPayload
		if err := env.Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		return &protocol.MessageDeleted{ChatID: p.ChatID, IDs: p.IDs}, nil
	case TypeError:
		var e ErrorResponse
		if err := env.Decode(&e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		return &protocol.ServerError{Code: e.Code, Message: e.Message, RequestID: e.RequestID}, nil
	default:
		return &protocol.Raw{Type: msgType, Data: env.Data}, nil
	}
}

func decodeMessage(env *Envelope) (*protocol.Message, error) {
	var p messagePayload
	if err := env.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	m := &protocol.Message{
		ID:       p.MessageID,
		Outgoing: p.Outgoing,
	}
	if m.ID == 0 {
		m.ID = int64(env.ID)
	}
	if m.ID == 0 {
		m.ID = -localID.Add(1)
	}

	switch {
	case p.Timestamp > 0:
		m.Date = time.UnixMilli(p.Timestamp)
	case env.Ts > 0:
		m.Date = time.UnixMilli(env.Ts)
	}

	if p.SenderID != "" {
		m.Sender = &protocol.User{ID: p.SenderID, Username: p.SenderName}
	}

	switch {
	case p.ChannelID != "" || env.Type == TypeChannelPost:
		m.Chat = &protocol.ChannelChat{ID: p.ChannelID, Title: p.RoomTitle}
	case p.RoomID != "":
		m.Chat = &protocol.GroupChat{ID: p.RoomID, Title: p.RoomTitle}
	case m.Sender != nil:
		m.Chat = &protocol.UserChat{User: *m.Sender}
	default:
		return nil, fmt.Errorf("%w: message without chat", ErrInvalidFrame)
	}

	if err := decodeContent(p.Content, m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeContent(raw json.RawMessage, m *protocol.Message) error {
	if len(raw) == 0 {
		return nil
	}
	content := gjson.ParseBytes(raw)
	switch {
	case content.Type == gjson.String:
		m.Text = content.Str
		return nil
	case content.IsObject():
	default:
		// 其他 JSON 值按原文作为文本
		m.Text = content.Raw
		return nil
	}

	var rc richContent
	if err := json.Unmarshal(raw, &rc); err != nil {
		return fmt.Errorf("%w: content: %v", ErrInvalidFrame, err)
	}
	m.Text = rc.Text
	m.ReplyTo = rc.ReplyTo
	if rc.Forward != nil {
		m.Forward = &protocol.ForwardHeader{FromID: rc.Forward.FromID, FromName: rc.Forward.FromName}
		if rc.Forward.Date > 0 {
			m.Forward.Date = time.UnixMilli(rc.Forward.Date)
		}
	}
	if rc.Media != nil {
		media, err := rc.Media.toMedia()
		if err != nil {
			return err
		}
		m.Media = media
	}
	return nil
}

func (p *mediaPayload) toMedia() (protocol.Media, error) {
	switch p.Type {
	case "photo":
		return &protocol.Photo{ID: p.ID, Width: p.Width, Height: p.Height, Size: p.Size}, nil
	case "document":
		return &protocol.Document{ID: p.ID, FileName: p.FileName, MimeType: p.MimeType, Size: p.Size}, nil
	case "sticker":
		return &protocol.Sticker{ID: p.ID, Emoji: p.Emoji, SetName: p.SetName}, nil
	default:
		return nil, fmt.Errorf("%w: unknown media type %q", ErrInvalidFrame, p.Type)
	}
}
