package nats

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/chenxilol/hubbot/internal/bus"
	"github.com/chenxilol/hubbot/pkg/protocol"
)

// 测试辅助函数，启动NATS服务器
func startNatsServer(t *testing.T, args ...string) string {
	t.Helper()
	if _, err := exec.LookPath("nats-server"); err != nil {
		t.Skip("nats-server not found in PATH, skipping test")
	}

	port, err := freePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	cmd := exec.Command("nats-server", append([]string{"-p", strconv.Itoa(port)}, args...)...)
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start nats-server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Signal(os.Interrupt)
		_ = cmd.Wait()
	})

	addr := fmt.Sprintf("localhost:%d", port)
	for i := 0; i < 50; i++ {
		if conn, err := net.Dial("tcp", addr); err == nil {
			conn.Close()
			return "nats://" + addr
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("nats-server did not start")
	return ""
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func newBus(t *testing.T, url string, jetstream bool) *NatsBus {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URLs = []string{url}
	cfg.UseJetStream = jetstream
	nb, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create NatsBus: %v", err)
	}
	t.Cleanup(func() { nb.Close() })
	return nb
}

// TestNatsBus_PublishSubscribe 测试基本的发布订阅功能
func TestNatsBus_PublishSubscribe(t *testing.T) {
	nb := newBus(t, startNatsServer(t), false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := nb.Subscribe(ctx, "test.topic")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if err := nb.Publish(ctx, "test.topic", []byte("hello")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case msg := <-ch:
		if string(msg) != "hello" {
			t.Errorf("Expected 'hello', got '%s'", msg)
		}
	case <-ctx.Done():
		t.Fatal("Timeout waiting for message")
	}

	if err := nb.Unsubscribe("test.topic"); err != nil {
		t.Fatalf("Failed to unsubscribe: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Expected channel to be closed")
		}
	case <-ctx.Done():
		t.Fatal("Channel not closed after Unsubscribe")
	}
}

// TestNatsBus_Errors 测试空主题和关闭后的操作
func TestNatsBus_Errors(t *testing.T) {
	nb := newBus(t, startNatsServer(t), false)
	ctx := context.Background()

	if err := nb.Publish(ctx, "", nil); err != bus.ErrTopicEmpty {
		t.Errorf("Expected ErrTopicEmpty, got %v", err)
	}
	if _, err := nb.Subscribe(ctx, ""); err != bus.ErrTopicEmpty {
		t.Errorf("Expected ErrTopicEmpty, got %v", err)
	}

	nb.Close()
	if err := nb.Publish(ctx, "x", nil); !errors.Is(err, bus.ErrBusClosed) {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
	if _, err := nb.Subscribe(ctx, "x"); !errors.Is(err, bus.ErrBusClosed) {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
}

// TestNatsBus_JetStreamInbox 测试JetStream持久化收件主题
func TestNatsBus_JetStreamInbox(t *testing.T) {
	url := startNatsServer(t, "-js", "-sd", t.TempDir())
	nb := newBus(t, url, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inbox := bus.InboxTopic("bot")
	// 订阅前发布的消息也应被收到
	if err := nb.Publish(ctx, inbox, []byte("queued")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	ch, err := nb.Subscribe(ctx, inbox)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	select {
	case msg := <-ch:
		if string(msg) != "queued" {
			t.Errorf("Expected 'queued', got '%s'", msg)
		}
	case <-ctx.Done():
		t.Fatal("Timeout waiting for message")
	}
}

// TestNatsBus_BotClient 测试机器人客户端通过NATS收发事件
func TestNatsBus_BotClient(t *testing.T) {
	nb := newBus(t, startNatsServer(t), false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := bus.NewClient(ctx, nb, bus.ClientConfig{Self: protocol.User{ID: "bot"}})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	frame := `{"message_id":7,"message_type":"direct_message","event_id":"e1","data":{"sender_id":"u1","content":"hi"}}`
	if err := nb.Publish(ctx, bus.InboxTopic("bot"), []byte(frame)); err != nil {
		t.Fatal(err)
	}
	ev, err := c.NextEvent(ctx)
	if err != nil {
		t.Fatalf("NextEvent failed: %v", err)
	}
	msg := ev.(*protocol.NewMessage).Message
	if msg.Text != "hi" || msg.Chat.Kind() != protocol.ChatUser {
		t.Errorf("unexpected message %+v", msg)
	}
}
