// Package protocol 定义聊天协议的数据模型以及机器人使用的客户端契约
package protocol

import "time"

// User 协议中的用户身份
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Bot       bool   `json:"bot,omitempty"`
}

// ChatKind 会话类型
type ChatKind int

const (
	ChatUser ChatKind = iota + 1
	ChatGroup
	ChatChannel
)

func (k ChatKind) String() string {
	switch k {
	case ChatUser:
		return "user"
	case ChatGroup:
		return "group"
	case ChatChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// Chat 消息所在的会话，只有 *UserChat、*GroupChat、*ChannelChat 三种实现
type Chat interface {
	ChatID() string
	Kind() ChatKind
}

// UserChat 与单个用户的私聊
type UserChat struct {
	User
}

func (c *UserChat) ChatID() string { return c.ID }
func (c *UserChat) Kind() ChatKind { return ChatUser }

// GroupChat 群组
type GroupChat struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

func (c *GroupChat) ChatID() string { return c.ID }
func (c *GroupChat) Kind() ChatKind { return ChatGroup }

// ChannelChat 频道
type ChannelChat struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

func (c *ChannelChat) ChatID() string { return c.ID }
func (c *ChannelChat) Kind() ChatKind { return ChatChannel }

// Media 消息附带的媒体
type Media interface {
	MediaType() string
}

type Photo struct {
	ID     string `json:"id"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

func (*Photo) MediaType() string { return "photo" }

type Document struct {
	ID       string `json:"id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

func (*Document) MediaType() string { return "document" }

type Sticker struct {
	ID      string `json:"id"`
	Emoji   string `json:"emoji,omitempty"`
	SetName string `json:"set_name,omitempty"`
}

func (*Sticker) MediaType() string { return "sticker" }

// ReplyHeader 回复关系
type ReplyHeader struct {
	MessageID int64 `json:"message_id"`
	TopID     int64 `json:"top_id,omitempty"`
}

// ForwardHeader 转发来源
type ForwardHeader struct {
	FromID   string    `json:"from_id,omitempty"`
	FromName string    `json:"from_name,omitempty"`
	Date     time.Time `json:"date,omitempty"`
}

// Message 一条聊天消息
type Message struct {
	ID       int64
	Text     string
	Chat     Chat
	Sender   *User
	Media    Media
	ReplyTo  *ReplyHeader
	Forward  *ForwardHeader
	Date     time.Time
	Outgoing bool
}

// OutgoingMessage 发送消息的参数
type OutgoingMessage struct {
	Text    string
	ReplyTo int64
	Media   Media
}
