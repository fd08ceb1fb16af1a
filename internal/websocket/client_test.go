package websocket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/chenxilol/hubbot/internal/auth"
	"github.com/chenxilol/hubbot/internal/codec"
	"github.com/chenxilol/hubbot/internal/utils"
	"github.com/chenxilol/hubbot/pkg/protocol"
)

var upgrader = websocket.Upgrader{}

// gateway 模拟网关：校验令牌后把连接交给 serve
func gateway(t *testing.T, token string, serve func(*websocket.Conn)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return srv, &attempts
}

func botToken(t *testing.T, perms ...auth.Permission) string {
	t.Helper()
	if perms == nil {
		perms = auth.BotPermissions()
	}
	token, err := auth.NewJWTService("gateway-secret", "gateway").GenerateToken(context.Background(), "b1", "hubbot", perms, time.Hour)
	require.NoError(t, err)
	return token
}

func testConfig(srv *httptest.Server, token string) Config {
	cfg := DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.Token = token
	cfg.Backoff = utils.Backoff{Retries: 2, Initial: time.Millisecond}
	return cfg
}

func TestClient_ReceiveAndReply(t *testing.T) {
	token := botToken(t)
	replies := make(chan []byte, 1)
	srv, _ := gateway(t, token, func(conn *websocket.Conn) {
		frame := `{"message_id":5,"message_type":"room_message","data":{"sender_id":"u1","sender_name":"alice","room_id":"r1","content":"/ping"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Errorf("write failed: %v", err)
			return
		}
		_, data, err := conn.ReadMessage()
		if err == nil {
			replies <- data
		}
		// 等待客户端关闭
		_, _, _ = conn.ReadMessage()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, testConfig(srv, token))
	require.NoError(t, err)
	defer c.Close()

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.User{ID: "b1", Username: "hubbot", Bot: true}, me)

	ev, err := c.NextEvent(ctx)
	require.NoError(t, err)
	msg := ev.(*protocol.NewMessage).Message
	assert.Equal(t, "/ping", msg.Text)
	assert.Equal(t, "alice", msg.Sender.Username)
	assert.Equal(t, int64(5), msg.ID)

	require.NoError(t, protocol.Reply(ctx, c, msg, "pong"))
	select {
	case data := <-replies:
		res := gjson.GetManyBytes(data, "message_type", "data.room_id", "data.content.text", "data.content.reply_to.message_id")
		assert.Equal(t, codec.TypeRoomMessage, res[0].String())
		assert.Equal(t, "r1", res[1].String())
		assert.Equal(t, "pong", res[2].String())
		assert.Equal(t, int64(5), res[3].Int())
	case <-ctx.Done():
		t.Fatal("reply not received")
	}
}

func TestClient_AnswersPing(t *testing.T) {
	token := botToken(t)
	pongs := make(chan string, 1)
	srv, _ := gateway(t, token, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"message_id":1,"message_type":"ping"}`))
		_, data, err := conn.ReadMessage()
		if err == nil {
			pongs <- gjson.GetBytes(data, "message_type").String()
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, testConfig(srv, token))
	require.NoError(t, err)

	select {
	case typ := <-pongs:
		assert.Equal(t, codec.TypePong, typ)
	case <-ctx.Done():
		t.Fatal("pong not received")
	}

	// 心跳不作为事件交给机器人，正常关闭后事件流结束
	_, err = c.NextEvent(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestClient_AbnormalDisconnect(t *testing.T) {
	token := botToken(t)
	srv, _ := gateway(t, token, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.UnderlyingConn().Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, testConfig(srv, token))
	require.NoError(t, err)

	_, err = c.NextEvent(ctx)
	assert.ErrorIs(t, err, protocol.ErrIO)

	err = c.SendMessage(ctx, &protocol.GroupChat{ID: "r"}, protocol.OutgoingMessage{Text: "late"})
	assert.ErrorIs(t, err, protocol.ErrIO)
}

func TestDial_Rejected(t *testing.T) {
	srv, attempts := gateway(t, botToken(t), func(*websocket.Conn) {})

	other, err := auth.NewJWTService("x", "y").GenerateToken(context.Background(), "b2", "", nil, time.Hour)
	require.NoError(t, err)

	_, err = Dial(context.Background(), testConfig(srv, other))
	assert.ErrorIs(t, err, protocol.ErrAuthorization)
	assert.Equal(t, int32(1), attempts.Load(), "rejected handshakes are not retried")

	_, err = Dial(context.Background(), testConfig(srv, ""))
	assert.ErrorIs(t, err, protocol.ErrSignIn)

	_, err = Dial(context.Background(), testConfig(srv, "not-a-jwt"))
	assert.ErrorIs(t, err, protocol.ErrSignIn)
}

func TestDial_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://127.0.0.1:1/ws"
	cfg.Token = botToken(t)
	cfg.Backoff = utils.Backoff{Retries: 1, Initial: time.Millisecond}

	_, err := Dial(context.Background(), cfg)
	assert.ErrorIs(t, err, protocol.ErrIO)
	assert.ErrorIs(t, err, utils.ErrRetriesExhausted)
}

func TestClient_SendRequiresPermission(t *testing.T) {
	token := botToken(t, auth.PermReadMessage)
	srv, _ := gateway(t, token, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	ctx := context.Background()
	c, err := Dial(ctx, testConfig(srv, token))
	require.NoError(t, err)
	defer c.Close()

	err = c.SendMessage(ctx, &protocol.UserChat{User: protocol.User{ID: "u"}}, protocol.OutgoingMessage{Text: "hi"})
	assert.ErrorIs(t, err, protocol.ErrAuthorization)
	assert.True(t, errors.Is(err, auth.ErrPermissionDenied))
}

func TestClient_CloseEndsStream(t *testing.T) {
	token := botToken(t)
	srv, _ := gateway(t, token, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, testConfig(srv, token))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	_, err = c.NextEvent(ctx)
	assert.ErrorIs(t, err, io.EOF)

	err = c.SendMessage(ctx, &protocol.GroupChat{ID: "r"}, protocol.OutgoingMessage{Text: "x"})
	assert.ErrorIs(t, err, protocol.ErrIO)
}
