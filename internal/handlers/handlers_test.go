package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenxilol/hubbot/pkg/bot"
	"github.com/chenxilol/hubbot/pkg/protocol"
	"github.com/chenxilol/hubbot/pkg/protocol/memory"
)

var self = protocol.User{ID: "bot", Username: "hubbot", Bot: true}

func newBot(t *testing.T) (*bot.Bot, *memory.Client) {
	t.Helper()
	client := memory.New(self)
	b := bot.NewWithSelf(client, self)
	b.SetPatternMutator(CommandMutator("/"))
	bot.AddData(b, Settings{Greeting: "hello", Version: "test", Transport: "memory"})
	RegisterHandlers(b)
	return b, client
}

func dispatch(t *testing.T, b *bot.Bot, m *protocol.Message) {
	t.Helper()
	require.NoError(t, b.Dispatch(context.Background(), &protocol.NewMessage{Message: m}))
}

func group() protocol.Chat { return &protocol.GroupChat{ID: "g1"} }

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"ping", "/ping", []string{"Pong!"}},
		{"ping needs prefix", "ping", nil},
		{"ping exact", "/ping now", nil},
		{"hi", "/hi bob and friends", []string{"Hi bob!"}},
		{"hi without name falls through", "/hi", nil},
		{"repeat", "/repeat 3 la la", []string{"la la", "la la", "la la"}},
		{"repeat bad amount", "/repeat x y", nil},
		{"repeat limit", "/repeat 20 z", []string{"z", "z", "z", "z", "z", "z", "z", "z", "z", "z", "z", "z", "z", "z", "z", "z", "z", "z", "z", "z"}},
		{"repeat over limit", "/repeat 4000000000 x", []string{"Too many repetitions, at most 20"}},
		{"action", "/action PAUSE", []string{"Player: pause"}},
		{"action unknown", "/action stop", nil},
		{"sum", "/sum 1 2.5 -0.5", []string{"3"}},
		{"sum empty", "/sum", []string{"0"}},
		{"args", "/args a  b\tc", []string{"a\nb\nc"}},
		{"quote", `/quote one "two three"`, []string{`"one" "two three"`}},
		{"quote unbalanced", `/quote "open`, nil},
		{"config", "/config", []string{"{Greeting:hello Version:test Transport:memory}"}},
		{"mention", "/ping@HubBot", []string{"Pong!"}},
		{"mention with args", "/hi@hubbot amy", []string{"Hi amy!"}},
		{"other mention", "/ping@otherbot", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, client := newBot(t)
			dispatch(t, b, &protocol.Message{ID: 1, Text: tt.text, Chat: group(), Sender: &protocol.User{ID: "u1"}})
			if tt.want == nil {
				assert.Empty(t, client.Texts())
				return
			}
			assert.Equal(t, tt.want, client.Texts())
		})
	}
}

func TestReplyTargetsMessage(t *testing.T) {
	b, client := newBot(t)
	dispatch(t, b, &protocol.Message{ID: 42, Text: "/ping", Chat: group()})

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(42), sent[0].Message.ReplyTo)
	assert.Equal(t, "g1", sent[0].Chat.ChatID())
}

func TestSaveMedia(t *testing.T) {
	b, client := newBot(t)
	photo := &protocol.Photo{ID: "p1"}
	dispatch(t, b, &protocol.Message{ID: 1, Text: "/save", Chat: group(), Media: photo})

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Saved!", sent[0].Message.Text)
	assert.Equal(t, photo, sent[0].Message.Media)
	assert.Equal(t, "bot", sent[0].Chat.ChatID())
	assert.Equal(t, protocol.ChatUser, sent[0].Chat.Kind())

	// 没有媒体时不处理
	b, client = newBot(t)
	dispatch(t, b, &protocol.Message{ID: 2, Text: "/save", Chat: group()})
	assert.Empty(t, client.Sent())
}

func TestStickerAndNamedUser(t *testing.T) {
	var handled []string
	client := memory.New(self)
	b := bot.NewWithSelf(client, self,
		bot.WithOnFallback(func(context.Context, protocol.Event) { handled = append(handled, "fallback") }),
	)
	RegisterHandlers(b)

	dispatch(t, b, &protocol.Message{ID: 1, Chat: group(), Media: &protocol.Sticker{ID: "s", Emoji: "🙂"}})
	named := &protocol.UserChat{User: protocol.User{ID: "u2", Username: "alice"}}
	dispatch(t, b, &protocol.Message{ID: 2, Text: "hello", Chat: named, Sender: &named.User})
	anon := &protocol.UserChat{User: protocol.User{ID: "u3"}}
	dispatch(t, b, &protocol.Message{ID: 3, Text: "hello", Chat: anon, Sender: &anon.User})

	// 只有匿名用户的消息进入回退处理
	assert.Equal(t, []string{"fallback"}, handled)
	assert.Empty(t, client.Sent())
}

func TestErrorHandlerSwallowsFailures(t *testing.T) {
	b, client := newBot(t)
	client.FailSends(errors.New("offline"))

	err := b.Dispatch(context.Background(), &protocol.NewMessage{Message: &protocol.Message{ID: 1, Text: "/ping", Chat: group()}})
	assert.EqualError(t, err, "offline")
	assert.NoError(t, handleError(context.Background(), err, client, &protocol.NewMessage{}))
}

func TestCommandMutator(t *testing.T) {
	m := CommandMutator("!")
	assert.Equal(t, `^!ping$`, m(`ping$`))
	assert.Equal(t, `^!ping`, m(`^ping`))
	assert.Equal(t, `^\.run`, CommandMutator(".")(`run`))
}
