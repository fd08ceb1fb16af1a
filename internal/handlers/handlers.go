// Package handlers 提供机器人自带的命令处理函数
package handlers

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/chenxilol/hubbot/pkg/bot"
	"github.com/chenxilol/hubbot/pkg/protocol"
)

// Settings 通过 bot.AddData 注入，由 config 命令展示
type Settings struct {
	Greeting  string
	Version   string
	Transport string
}

// RegisterHandlers 注册所有处理函数。命令的模式不含前缀，前缀由 CommandMutator 统一添加
func RegisterHandlers(b *bot.Bot) {
	b.Handle(bot.Fn1(handlePing), bot.Pattern(`ping$`))
	b.Handle(bot.Fn2(handleHi), bot.Pattern(`hi\b`))
	b.Handle(bot.Fn3(handleRepeat), bot.Pattern(`repeat\b`))
	b.Handle(bot.Fn2(handleAction), bot.Pattern(`action\b`))
	b.Handle(bot.Fn2(handleSum), bot.Pattern(`sum\b`))
	b.Handle(bot.Fn2(handleArgs), bot.Pattern(`args\b`))
	b.Handle(bot.Fn2(handleQuoted), bot.Pattern(`quote\b`))
	b.Handle(bot.Fn2(handleConfig), bot.Pattern(`config$`))
	b.Handle(bot.Fn3(handleSave), bot.Pattern(`save$`))

	// 没有模式的处理函数不受前缀影响
	b.Handle(bot.Fn2(handleSticker), bot.Func(func(*protocol.Message, *bot.Context) bool { return true }))
	b.Handle(bot.Fn2(handleNamedUser), bot.Func(fromNamedUser))

	b.Fallback(bot.Fn1(handleFallback))
	b.OnError(handleError)
	b.Intercept(StripMention)

	slog.Info("registered all message handlers")
}

// CommandMutator 返回把 prefix 加在每个模式前面的模式变换
func CommandMutator(prefix string) func(string) string {
	quoted := regexp.QuoteMeta(prefix)
	return func(pattern string) string {
		return "^" + quoted + strings.TrimPrefix(pattern, "^")
	}
}

// StripMention 把 "/cmd@botname args" 改写为 "/cmd args"，其他消息原样通过
func StripMention(ctx context.Context, c *bot.Context) (*bot.Context, error) {
	username := c.Me().Username
	if username == "" {
		return c, nil
	}
	text := c.Text()
	first, rest, found := strings.Cut(text, " ")
	cmd, mention, ok := strings.Cut(first, "@")
	if !ok || !strings.EqualFold(mention, username) {
		return c, nil
	}
	if found {
		return c.WithText(cmd + " " + rest), nil
	}
	return c.WithText(cmd), nil
}

func fromNamedUser(m *protocol.Message, _ *bot.Context) bool {
	u, ok := m.Chat.(*protocol.UserChat)
	return ok && u.User.Username != ""
}

func handleFallback(ctx context.Context, m *protocol.Message) error {
	slog.Info("unhandled message", "id", m.ID, "text", m.Text)
	return nil
}

func handleError(ctx context.Context, err error, client protocol.Client, ev protocol.Event) error {
	slog.Error("an error occurred while handling", "event", ev.EventType(), "error", err)
	return nil
}
