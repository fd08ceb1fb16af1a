// Package memory 提供一个进程内的 protocol.Client 实现，用于测试和示例
package memory

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenxilol/hubbot/pkg/protocol"
)

// Sent 记录一次 SendMessage 调用
type Sent struct {
	Chat    protocol.Chat
	Message protocol.OutgoingMessage
}

// Client 内存客户端。事件通过 Push 注入，发出的消息通过 Sent 读取
type Client struct {
	me     protocol.User
	events chan protocol.Event
	done   chan struct{}
	nextID atomic.Int64

	mu      sync.Mutex
	sent    []Sent
	sendErr error
	endErr  error
	closed  bool
}

// New 创建内存客户端
func New(me protocol.User) *Client {
	return &Client{
		me:     me,
		events: make(chan protocol.Event, 256),
		done:   make(chan struct{}),
		endErr: io.EOF,
	}
}

// Push 注入一个事件，客户端关闭后注入的事件被丢弃
func (c *Client) Push(ev protocol.Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// PushText 构造一条新消息事件并注入，返回构造的消息
func (c *Client) PushText(chat protocol.Chat, sender *protocol.User, text string) *protocol.Message {
	m := &protocol.Message{
		ID:     c.nextID.Add(1),
		Text:   text,
		Chat:   chat,
		Sender: sender,
		Date:   time.Now(),
	}
	c.Push(&protocol.NewMessage{Message: m})
	return m
}

// Close 结束事件流，已注入的事件仍会被读出，之后 NextEvent 返回 io.EOF
func (c *Client) Close() {
	c.CloseWithError(io.EOF)
}

// CloseWithError 结束事件流，之后 NextEvent 返回 err
func (c *Client) CloseWithError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.endErr = err
	close(c.done)
}

// FailSends 让后续 SendMessage 返回 err，传 nil 恢复
func (c *Client) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Sent 返回已发送消息的副本
func (c *Client) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sent, len(c.sent))
	copy(out, c.sent)
	return out
}

// Texts 返回已发送消息的文本
func (c *Client) Texts() []string {
	sent := c.Sent()
	out := make([]string, len(sent))
	for i, s := range sent {
		out[i] = s.Message.Text
	}
	return out
}

func (c *Client) NextEvent(ctx context.Context) (protocol.Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	default:
	}

	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.done:
		select {
		case ev := <-c.events:
			return ev, nil
		default:
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.endErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) Me(ctx context.Context) (protocol.User, error) {
	return c.me, nil
}

func (c *Client) SendMessage(ctx context.Context, chat protocol.Chat, msg protocol.OutgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, Sent{Chat: chat, Message: msg})
	return nil
}

var _ protocol.Client = (*Client)(nil)
