package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chenxilol/hubbot/internal/auth"
	"github.com/chenxilol/hubbot/internal/codec"
	"github.com/chenxilol/hubbot/internal/utils"
	"github.com/chenxilol/hubbot/pkg/protocol"
)

// 定义错误
var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client 一条到网关的WebSocket连接。读循环把入站帧解码为事件，写循环串行发送出站帧
type Client struct {
	conn   WSConn
	cfg    Config
	self   protocol.User
	claims *auth.TokenClaims // 未提供令牌时为 nil

	events chan protocol.Event
	out    chan Frame
	ctx    context.Context
	cancel context.CancelFunc
	closed sync.Once
	seq    atomic.Int64

	mu      sync.Mutex
	readErr error // 读循环结束的原因，正常关闭时为 nil
}

// Dial 连接网关。令牌被拒绝时立即返回 protocol.ErrAuthorization，其他失败按退避参数重试
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: websocket transport requires a bot token", protocol.ErrSignIn)
	}
	claims, err := auth.Inspect(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrSignIn, err)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadBufferSize:   cfg.ReadBufferSize,
		WriteBufferSize:  cfg.WriteBufferSize,
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.Token)

	var conn *websocket.Conn
	err = utils.RetryWithBackoff(ctx, "dial "+cfg.URL, cfg.Backoff, func() error {
		c, resp, err := dialer.DialContext(ctx, cfg.URL, header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return utils.Permanent(fmt.Errorf("%w: handshake rejected: %s", protocol.ErrAuthorization, resp.Status))
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		if errors.Is(err, protocol.ErrAuthorization) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: dial %s: %w", protocol.ErrIO, cfg.URL, err)
	}

	self := protocol.User{ID: claims.UserID, Username: claims.Username, Bot: claims.Bot}
	slog.Info("connected to gateway", "url", cfg.URL, "bot_id", self.ID)
	return NewClient(ctx, NewGorillaConn(conn), self, claims, cfg), nil
}

// NewClient 在已建立的连接上启动读写循环。claims 为 nil 时不做发送权限检查
func NewClient(ctx context.Context, conn WSConn, self protocol.User, claims *auth.TokenClaims, cfg Config) *Client {
	cfg = cfg.withDefaults()
	clientCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c := &Client{
		conn:   conn,
		cfg:    cfg,
		self:   self,
		claims: claims,
		events: make(chan protocol.Event, cfg.MessageBufferCap),
		out:    make(chan Frame, cfg.MessageBufferCap),
		ctx:    clientCtx,
		cancel: cancel,
	}

	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer c.shutdown()

	c.conn.SetReadLimit(c.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setReadErr(err)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		ev, ok := c.decode(data)
		if !ok {
			continue
		}

		select {
		case c.events <- ev:
		case <-c.ctx.Done():
			return
		}
	}
}

// decode 解码一个入站帧；心跳帧在这里应答，不作为事件交给机器人
func (c *Client) decode(data []byte) (protocol.Event, bool) {
	msgType, _, err := codec.PeekType(data)
	if err != nil {
		slog.Warn("dropping malformed frame", "error", err)
		return nil, false
	}
	switch msgType {
	case codec.TypePing:
		if env, err := codec.NewEnvelope(int(c.seq.Add(1)), codec.TypePong, nil); err == nil {
			if pong, err := env.Encode(); err == nil {
				_ = c.enqueue(Frame{MsgType: websocket.TextMessage, Data: pong})
			}
		}
		return nil, false
	case codec.TypePong:
		return nil, false
	}

	ev, err := codec.DecodeEvent(data)
	if err != nil {
		slog.Warn("dropping undecodable frame", "type", msgType, "error", err)
		return nil, false
	}
	return ev, true
}

func (c *Client) writeLoop() {
	defer c.shutdown()

	var ping <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-ping:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				slog.Info("ping failed", "error", err)
				return
			}

		case frame := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := c.conn.WriteMessage(frame.MsgType, frame.Data)
			if frame.Ack != nil {
				frame.Ack <- err
			}
			if err != nil {
				slog.Info("write failed", "error", err)
				c.setReadErr(err)
				return
			}
		}
	}
}

// enqueue 不阻塞地放入发送队列
func (c *Client) enqueue(f Frame) error {
	select {
	case c.out <- f:
		return nil
	case <-c.ctx.Done():
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) setReadErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil || c.ctx.Err() != nil || isNormalClose(err) {
		return
	}
	c.readErr = err
}

// NextEvent 返回下一个事件；连接正常关闭时返回 io.EOF，异常断开时返回包装 protocol.ErrIO 的错误
func (c *Client) NextEvent(ctx context.Context) (protocol.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-c.events:
		if ok {
			return ev, nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrIO, c.readErr)
	}
	return nil, io.EOF
}

func (c *Client) Me(ctx context.Context) (protocol.User, error) {
	if c.self.ID == "" {
		return protocol.User{}, fmt.Errorf("%w: unknown bot identity", protocol.ErrSignIn)
	}
	return c.self, nil
}

// SendMessage 编码消息并等待写循环确认写出
func (c *Client) SendMessage(ctx context.Context, chat protocol.Chat, msg protocol.OutgoingMessage) error {
	if c.claims != nil && !auth.HasPermission(c.claims, auth.PermSendMessage) {
		return fmt.Errorf("%w: %w", protocol.ErrAuthorization, auth.ErrPermissionDenied)
	}

	env, err := codec.EncodeOutgoing(int(c.seq.Add(1)), chat, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrInvocation, err)
	}
	env.EventID = uuid.NewString()
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrInvocation, err)
	}

	frame := Frame{MsgType: websocket.TextMessage, Data: data, Ack: make(chan error, 1)}
	select {
	case c.out <- frame:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return fmt.Errorf("%w: %w", protocol.ErrIO, ErrClientClosed)
	}

	select {
	case err := <-frame.Ack:
		if err != nil {
			return fmt.Errorf("%w: %w", protocol.ErrIO, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return fmt.Errorf("%w: %w", protocol.ErrIO, ErrClientClosed)
	}
}

// Close 发送关闭帧并断开连接，之后 NextEvent 返回 io.EOF
func (c *Client) Close() error {
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closed.Do(func() {
		c.cancel()
		_ = c.conn.Close()
		slog.Info("gateway connection closed", "bot_id", c.self.ID)
	})
}

var _ protocol.Client = (*Client)(nil)
