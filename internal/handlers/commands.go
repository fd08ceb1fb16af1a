package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chenxilol/hubbot/pkg/bot"
	"github.com/chenxilol/hubbot/pkg/protocol"
)

// 只需要一个词，多余的参数被忽略
type nameArgs struct {
	Name string
}

type repeatArgs struct {
	Amount uint32
	Text   string `args:"rest"`
}

// Action 播放器动作，不区分大小写
type Action string

func (Action) Options() []string { return []string{"play", "pause", "skip"} }
func (Action) IgnoreCase() bool  { return true }

type actionArgs struct {
	Action Action
}

type sumArgs struct {
	Values []float64 `args:"rest"`
}

func handlePing(ctx context.Context, r bot.Responder) error {
	return r.Reply(ctx, "Pong!")
}

func handleHi(ctx context.Context, r bot.Responder, args bot.Args[nameArgs]) error {
	return r.Replyf(ctx, "Hi %s!", args.Value.Name)
}

// maxRepeat 单条命令最多触发的消息数
const maxRepeat = 20

// handleRepeat 把文本发送 n 次
func handleRepeat(ctx context.Context, client protocol.Client, m *protocol.Message, args bot.Args[repeatArgs]) error {
	if args.Value.Amount > maxRepeat {
		return protocol.Reply(ctx, client, m, fmt.Sprintf("Too many repetitions, at most %d", maxRepeat))
	}
	for range args.Value.Amount {
		if err := client.SendMessage(ctx, m.Chat, protocol.OutgoingMessage{Text: args.Value.Text}); err != nil {
			return err
		}
	}
	return nil
}

func handleAction(ctx context.Context, r bot.Responder, args bot.Args[actionArgs]) error {
	slog.Info("player", "action", args.Value.Action)
	return r.Replyf(ctx, "Player: %s", args.Value.Action)
}

func handleSum(ctx context.Context, r bot.Responder, args bot.Args[sumArgs]) error {
	var sum float64
	for _, v := range args.Value.Values {
		sum += v
	}
	return r.Reply(ctx, strconv.FormatFloat(sum, 'f', -1, 64))
}

// handleArgs 每行回复一个参数
func handleArgs(ctx context.Context, r bot.Responder, args bot.RawArgs) error {
	return r.Reply(ctx, strings.Join(args, "\n"))
}

func handleQuoted(ctx context.Context, r bot.Responder, args bot.QuotedArgs) error {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	return r.Reply(ctx, strings.Join(quoted, " "))
}

func handleConfig(ctx context.Context, r bot.Responder, settings bot.Data[Settings]) error {
	return r.Reply(ctx, fmt.Sprintf("%+v", settings.Inner()))
}

// handleSave 把消息里的媒体转发到机器人自己的会话
func handleSave(ctx context.Context, client protocol.Client, me bot.Me, media protocol.Media) error {
	self := &protocol.UserChat{User: protocol.User(me)}
	return client.SendMessage(ctx, self, protocol.OutgoingMessage{Text: "Saved!", Media: media})
}

func handleSticker(ctx context.Context, m *protocol.Message, sticker *protocol.Sticker) error {
	slog.Info("message with sticker received", "id", m.ID, "emoji", sticker.Emoji)
	return nil
}

func handleNamedUser(ctx context.Context, m *protocol.Message, sender *protocol.User) error {
	slog.Info("message from user with username", "id", m.ID, "username", sender.Username, "text", m.Text)
	return nil
}
