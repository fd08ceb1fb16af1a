package codec

import (
	"encoding/json"
	"fmt"

	"github.com/chenxilol/hubbot/pkg/protocol"
)

type directRequest struct {
	TargetID string          `json:"target_id"`
	Content  json.RawMessage `json:"content"`
}

type roomRequest struct {
	RoomID  string          `json:"room_id"`
	Content json.RawMessage `json:"content"`
}

// EncodeOutgoing 构造发送消息的帧：私聊使用 direct_message，群组和频道使用 room_message
func EncodeOutgoing(id int, chat protocol.Chat, msg protocol.OutgoingMessage) (*Envelope, error) {
	if chat == nil {
		return nil, fmt.Errorf("%w: nil chat", ErrInvalidFrame)
	}
	content, err := encodeContent(msg)
	if err != nil {
		return nil, err
	}

	switch chat.Kind() {
	case protocol.ChatUser:
		return NewEnvelope(id, TypeDirectMessage, directRequest{TargetID: chat.ChatID(), Content: content})
	case protocol.ChatGroup, protocol.ChatChannel:
		return NewEnvelope(id, TypeRoomMessage, roomRequest{RoomID: chat.ChatID(), Content: content})
	default:
		return nil, fmt.Errorf("%w: unsupported chat kind %s", ErrInvalidFrame, chat.Kind())
	}
}

// encodeContent 只有文本时编码为字符串，否则编码为对象
func encodeContent(msg protocol.OutgoingMessage) (json.RawMessage, error) {
	if msg.ReplyTo == 0 && msg.Media == nil {
		return json.Marshal(msg.Text)
	}

	rc := richContent{Text: msg.Text}
	if msg.ReplyTo != 0 {
		rc.ReplyTo = &protocol.ReplyHeader{MessageID: msg.ReplyTo}
	}
	if msg.Media != nil {
		rc.Media = fromMedia(msg.Media)
	}
	return json.Marshal(rc)
}

func fromMedia(m protocol.Media) *mediaPayload {
	p := &mediaPayload{Type: m.MediaType()}
	switch v := m.(type) {
	case *protocol.Photo:
		p.ID, p.Width, p.Height, p.Size = v.ID, v.Width, v.Height, v.Size
	case *protocol.Document:
		p.ID, p.FileName, p.MimeType, p.Size = v.ID, v.FileName, v.MimeType, v.Size
	case *protocol.Sticker:
		p.ID, p.Emoji, p.SetName = v.ID, v.Emoji, v.SetName
	}
	return p
}
