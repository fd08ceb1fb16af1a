package protocol

import "encoding/json"

// 事件类型
const (
	EventNewMessage     = "new_message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventServerError    = "server_error"
)

// Event 客户端产生的入站事件
type Event interface {
	EventType() string
}

// NewMessage 新消息，唯一参与路由的事件
type NewMessage struct {
	Message *Message
}

func (*NewMessage) EventType() string { return EventNewMessage }

type MessageEdited struct {
	Message *Message
}

func (*MessageEdited) EventType() string { return EventMessageEdited }

type MessageDeleted struct {
	ChatID string
	IDs    []int64
}

func (*MessageDeleted) EventType() string { return EventMessageDeleted }

// ServerError 服务端推送的错误帧
type ServerError struct {
	Code      int
	Message   string
	RequestID int
}

func (*ServerError) EventType() string { return EventServerError }

func (e *ServerError) Error() string {
	return e.Message
}

// Raw 未识别的事件，原样保留
type Raw struct {
	Type string
	Data json.RawMessage
}

func (r *Raw) EventType() string { return r.Type }
