// Package codec 在 gohub 的 JSON 消息帧与 protocol 事件之间转换
package codec

import (
	"encoding/json"
	"errors"
	"time"
)

// 消息类型
const (
	TypeDirectMessage  = "direct_message"
	TypeRoomMessage    = "room_message"
	TypeChannelPost    = "channel_post"
	TypeMessageEdited  = "message_edited"
	TypeMessageDeleted = "message_deleted"
	TypeError          = "error"
	TypePing           = "ping"
	TypePong           = "pong"
)

var ErrInvalidFrame = errors.New("invalid frame")

// Envelope 消息帧
type Envelope struct {
	ID      int             `json:"message_id"`
	Type    string          `json:"message_type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Ts      int64           `json:"ts,omitempty"`
	EventID string          `json:"event_id,omitempty"` // 总线投递时用于去重
}

// NewEnvelope 创建一个新的消息帧
func NewEnvelope(id int, msgType string, data any) (*Envelope, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}

	return &Envelope{
		ID:   id,
		Type: msgType,
		Data: rawData,
		Ts:   time.Now().UnixMilli(),
	}, nil
}

// Encode 将消息帧编码为JSON
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode 将Data字段解码到指定结构
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}
