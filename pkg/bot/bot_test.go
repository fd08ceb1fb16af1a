package bot_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenxilol/hubbot/pkg/bot"
	"github.com/chenxilol/hubbot/pkg/protocol"
	"github.com/chenxilol/hubbot/pkg/protocol/memory"
)

var (
	self  = protocol.User{ID: "bot-1", Username: "hubbot", Bot: true}
	alice = &protocol.User{ID: "u-1", Username: "alice"}
	dm    = &protocol.UserChat{User: *alice}
	group = &protocol.GroupChat{ID: "room-1", Title: "general"}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBot(t *testing.T, opts ...bot.Option) (*bot.Bot, *memory.Client) {
	t.Helper()
	client := memory.New(self)
	b, err := bot.New(context.Background(), client, append([]bot.Option{bot.WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return b, client
}

func message(text string) *protocol.NewMessage {
	return &protocol.NewMessage{Message: &protocol.Message{ID: 1, Text: text, Chat: dm, Sender: alice}}
}

// recorder 记录被调用的处理函数名
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) handler(name string) bot.Handler {
	return bot.Fn0(func(ctx context.Context) error {
		r.add(name)
		return nil
	})
}

func TestDispatch_FirstMatchWins(t *testing.T) {
	b, _ := newBot(t)
	rec := &recorder{}
	b.Handle(rec.handler("first"), bot.Pattern(`^/ping`)).
		Handle(rec.handler("second"), bot.Pattern(`^/ping`)).
		Handle(rec.handler("catchall"))

	require.NoError(t, b.Dispatch(context.Background(), message("/ping")))
	require.NoError(t, b.Dispatch(context.Background(), message("hello")))

	assert.Equal(t, []string{"first", "catchall"}, rec.get())
}

func TestDispatch_FiltersAreConjunctive(t *testing.T) {
	b, _ := newBot(t)
	rec := &recorder{}
	b.Handle(rec.handler("group-ping"), bot.Pattern(`^/ping$`), bot.Func(bot.ChatIs(protocol.ChatGroup))).
		Handle(rec.handler("any-ping"), bot.Pattern(`^/ping$`))

	require.NoError(t, b.Dispatch(context.Background(), message("/ping")))
	groupMsg := &protocol.NewMessage{Message: &protocol.Message{Text: "/ping", Chat: group, Sender: alice}}
	require.NoError(t, b.Dispatch(context.Background(), groupMsg))

	assert.Equal(t, []string{"any-ping", "group-ping"}, rec.get())
}

func TestDispatch_PatternIsUnanchored(t *testing.T) {
	b, _ := newBot(t)
	rec := &recorder{}
	b.Handle(rec.handler("hit"), bot.Pattern(`world`))

	require.NoError(t, b.Dispatch(context.Background(), message("hello world!")))
	assert.Equal(t, []string{"hit"}, rec.get())
}

func TestDispatch_PatternMutator(t *testing.T) {
	b, _ := newBot(t)
	rec := &recorder{}
	b.SetPatternMutator(func(p string) string { return "^/" + p }).
		Handle(rec.handler("ping"), bot.Pattern(`ping$`))
	b.Fallback(rec.handler("fallback"))

	require.NoError(t, b.Dispatch(context.Background(), message("/ping")))
	require.NoError(t, b.Dispatch(context.Background(), message("ping")))

	assert.Equal(t, []string{"ping", "fallback"}, rec.get())
}

func TestRun_InvalidMutatedPatternFailsFast(t *testing.T) {
	b, client := newBot(t)
	b.SetPatternMutator(func(p string) string { return "(" + p }).
		Handle(bot.Fn0(func(context.Context) error { return nil }), bot.Pattern(`ping`))

	client.Push(message("ping"))
	err := b.Run(context.Background())
	require.Error(t, err)

	// 事件未被读取
	ev, err := client.NextEvent(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &protocol.NewMessage{}, ev)
}

func TestPattern_PanicsOnInvalidExpression(t *testing.T) {
	assert.Panics(t, func() { bot.Pattern(`(`) })
	assert.Panics(t, func() { bot.Func(nil) })
}

func TestDispatch_ExtractionFailureFallsThrough(t *testing.T) {
	b, _ := newBot(t)
	rec := &recorder{}
	b.Handle(bot.Fn1(func(ctx context.Context, s *protocol.Sticker) error {
		rec.add("sticker")
		return nil
	})).Handle(rec.handler("text"))

	require.NoError(t, b.Dispatch(context.Background(), message("hi")))

	withSticker := message("")
	withSticker.Message.Media = &protocol.Sticker{ID: "s1", Emoji: "👍"}
	require.NoError(t, b.Dispatch(context.Background(), withSticker))

	assert.Equal(t, []string{"text", "sticker"}, rec.get())
}

func TestDispatch_FallbackMissingParameters(t *testing.T) {
	b, _ := newBot(t)
	b.Fallback(bot.Fn1(func(ctx context.Context, p *protocol.Photo) error { return nil }))

	err := b.Dispatch(context.Background(), message("no photo"))
	assert.ErrorIs(t, err, bot.ErrMissingParameters)
}

func TestUnimplementedEvents(t *testing.T) {
	b, _ := newBot(t)
	b.EventFallback(bot.UnimplementedEvents)

	err := b.Dispatch(context.Background(), &protocol.MessageEdited{})
	assert.ErrorIs(t, err, bot.ErrUnimplemented)
	assert.Contains(t, err.Error(), protocol.EventMessageEdited)

	// 消息事件不受影响
	assert.NoError(t, b.Dispatch(context.Background(), message("hi")))
}

func TestDispatch_FreezesTable(t *testing.T) {
	b, _ := newBot(t)
	require.NoError(t, b.Dispatch(context.Background(), message("hi")))
	assert.Panics(t, func() {
		b.Handle(bot.Fn0(func(context.Context) error { return nil }))
	})
}

// TestFnN_AllParametersMustExtract 多参数处理函数按声明顺序收到参数，任一参数缺失时跳过该处理函数
func TestFnN_AllParametersMustExtract(t *testing.T) {
	m := &protocol.Message{ID: 7, Text: "/cmd a b", Chat: dm, Sender: alice}
	all := []any{bot.Text("/cmd a b"), bot.Me(self), alice, protocol.Chat(dm), protocol.ChatUser, dm, m, bot.RawArgs{"a", "b"}}

	var got []any
	record := func(vs ...any) error {
		got = vs
		return nil
	}

	tests := []struct {
		name    string
		n       int
		full    bot.Handler
		missing bot.Handler
	}{
		{
			name: "Fn5",
			n:    5,
			full: bot.Fn5(func(_ context.Context, a bot.Text, b bot.Me, c *protocol.User, d protocol.Chat, e protocol.ChatKind) error {
				return record(a, b, c, d, e)
			}),
			missing: bot.Fn5(func(_ context.Context, a bot.Text, b bot.Me, c *protocol.User, d protocol.Chat, e *protocol.Sticker) error {
				return record(a, b, c, d, e)
			}),
		},
		{
			name: "Fn6",
			n:    6,
			full: bot.Fn6(func(_ context.Context, a bot.Text, b bot.Me, c *protocol.User, d protocol.Chat, e protocol.ChatKind, f *protocol.UserChat) error {
				return record(a, b, c, d, e, f)
			}),
			missing: bot.Fn6(func(_ context.Context, a bot.Text, b bot.Me, c *protocol.User, d protocol.Chat, e protocol.ChatKind, f *protocol.Sticker) error {
				return record(a, b, c, d, e, f)
			}),
		},
		{
			name: "Fn7",
			n:    7,
			full: bot.Fn7(func(_ context.Context, a bot.Text, b bot.Me, c *protocol.User, d protocol.Chat, e protocol.ChatKind, f *protocol.UserChat, g *protocol.Message) error {
				return record(a, b, c, d, e, f, g)
			}),
			missing: bot.Fn7(func(_ context.Context, a bot.Text, b bot.Me, c *protocol.User, d protocol.Chat, e protocol.ChatKind, f *protocol.UserChat, g *protocol.Sticker) error {
				return record(a, b, c, d, e, f, g)
			}),
		},
		{
			name: "Fn8",
			n:    8,
			full: bot.Fn8(func(_ context.Context, a bot.Text, b bot.Me, c *protocol.User, d protocol.Chat, e protocol.ChatKind, f *protocol.UserChat, g *protocol.Message, h bot.RawArgs) error {
				return record(a, b, c, d, e, f, g, h)
			}),
			missing: bot.Fn8(func(_ context.Context, a bot.Text, b bot.Me, c *protocol.User, d protocol.Chat, e protocol.ChatKind, f *protocol.UserChat, g *protocol.Message, h *protocol.Sticker) error {
				return record(a, b, c, d, e, f, g, h)
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			b, _ := newBot(t)
			b.Handle(tt.full)
			require.NoError(t, b.Dispatch(context.Background(), &protocol.NewMessage{Message: m}))
			assert.Equal(t, all[:tt.n], got)

			got = nil
			var rec recorder
			b, _ = newBot(t)
			b.Handle(tt.missing)
			b.Handle(rec.handler("next"))
			require.NoError(t, b.Dispatch(context.Background(), &protocol.NewMessage{Message: m}))
			assert.Nil(t, got)
			assert.Equal(t, []string{"next"}, rec.get())
		})
	}
}

func TestDispatch_DefaultFallbackSucceeds(t *testing.T) {
	b, _ := newBot(t)
	assert.NoError(t, b.Dispatch(context.Background(), message("anything")))
}

func TestDispatch_NonMessageEvents(t *testing.T) {
	b, _ := newBot(t)
	assert.NoError(t, b.Dispatch(context.Background(), &protocol.MessageDeleted{ChatID: "c", IDs: []int64{1}}))

	var got protocol.Event
	b2, client := newBot(t)
	b2.EventFallback(func(ctx context.Context, c protocol.Client, ev protocol.Event) error {
		assert.Same(t, client, c)
		got = ev
		return bot.ErrUnimplemented
	})
	ev := &protocol.Raw{Type: "typing"}
	err := b2.Dispatch(context.Background(), ev)
	assert.ErrorIs(t, err, bot.ErrUnimplemented)
	assert.Same(t, ev, got)
}

func TestDispatch_Interceptor(t *testing.T) {
	b, _ := newBot(t)
	var seen string
	b.Intercept(func(ctx context.Context, c *bot.Context) (*bot.Context, error) {
		return c.WithText(strings.TrimPrefix(c.Text(), "@hubbot ")), nil
	}).Handle(bot.Fn1(func(ctx context.Context, text bot.Text) error {
		seen = string(text)
		return nil
	}), bot.Pattern(`^/start$`))

	original := message("@hubbot /start")
	require.NoError(t, b.Dispatch(context.Background(), original))
	assert.Equal(t, "/start", seen)
	assert.Equal(t, "@hubbot /start", original.Message.Text, "original message untouched")
}

func TestDispatch_InterceptorErrorAborts(t *testing.T) {
	b, _ := newBot(t)
	rec := &recorder{}
	denied := errors.New("denied")
	b.Intercept(func(ctx context.Context, c *bot.Context) (*bot.Context, error) {
		return nil, denied
	}).Handle(rec.handler("never"))

	assert.ErrorIs(t, b.Dispatch(context.Background(), message("x")), denied)
	assert.Empty(t, rec.get())
}

func TestDispatch_InterceptorDrop(t *testing.T) {
	b, _ := newBot(t)
	rec := &recorder{}
	b.Intercept(func(ctx context.Context, c *bot.Context) (*bot.Context, error) {
		return nil, nil
	}).Handle(rec.handler("never"))

	assert.NoError(t, b.Dispatch(context.Background(), message("x")))
	assert.Empty(t, rec.get())
}

func TestDispatch_PanicBecomesError(t *testing.T) {
	b, _ := newBot(t)
	b.Handle(bot.Fn0(func(context.Context) error { panic("boom") }))

	err := b.Dispatch(context.Background(), message("x"))
	assert.ErrorIs(t, err, bot.ErrPanic)
	assert.Contains(t, err.Error(), "boom")
}

func TestFn_UnknownParameterTypePanics(t *testing.T) {
	type unknown struct{}
	assert.Panics(t, func() {
		bot.Fn1(func(ctx context.Context, u unknown) error { return nil })
	})
}

func TestRun_ErrorHandlerReceivesFailure(t *testing.T) {
	b, client := newBot(t)
	failure := errors.New("handler failed")
	b.Handle(bot.Fn0(func(context.Context) error { return failure }))

	type report struct {
		err    error
		client protocol.Client
		ev     protocol.Event
	}
	reports := make(chan report, 4)
	b.OnError(func(ctx context.Context, err error, c protocol.Client, ev protocol.Event) error {
		reports <- report{err, c, ev}
		return errors.New("error handler also failed")
	})

	ev := message("x")
	client.Push(ev)
	client.Push(message("y"))
	client.Close()

	require.NoError(t, b.Run(context.Background()))
	b.Wait()
	close(reports)

	var got []report
	for r := range reports {
		got = append(got, r)
	}
	require.Len(t, got, 2, "failure in the error handler does not stop the loop")
	for _, r := range got {
		assert.ErrorIs(t, r.err, failure)
		assert.Same(t, client, r.client)
	}
}

func TestRun_PanicRoutedToErrorHandler(t *testing.T) {
	b, client := newBot(t)
	b.Handle(bot.Fn0(func(context.Context) error { panic("kaboom") }))
	errs := make(chan error, 1)
	b.OnError(func(ctx context.Context, err error, c protocol.Client, ev protocol.Event) error {
		errs <- err
		return nil
	})

	client.Push(message("x"))
	client.Close()
	require.NoError(t, b.Run(context.Background()))
	b.Wait()

	assert.ErrorIs(t, <-errs, bot.ErrPanic)
}

func TestRun_HungHandlerDoesNotBlockOthers(t *testing.T) {
	b, client := newBot(t)
	release := make(chan struct{})
	fastDone := make(chan struct{})
	slowDone := make(chan struct{})

	b.Handle(bot.Fn0(func(context.Context) error {
		<-release
		close(slowDone)
		return nil
	}), bot.Pattern(`^slow$`)).
		Handle(bot.Fn0(func(context.Context) error {
			close(fastDone)
			return nil
		}), bot.Pattern(`^fast$`))

	client.Push(message("slow"))
	client.Push(message("fast"))
	client.Close()

	require.NoError(t, b.Run(context.Background()))

	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fast handler blocked behind slow handler")
	}
	select {
	case <-slowDone:
		t.Fatal("slow handler finished before release")
	default:
	}

	close(release)
	b.Wait()
	<-slowDone
}

func TestRun_ReturnsOnFetchError(t *testing.T) {
	b, client := newBot(t)
	broken := errors.New("connection reset")
	client.CloseWithError(broken)

	err := b.Run(context.Background())
	assert.ErrorIs(t, err, broken)
}

func TestRun_ContextCanceled(t *testing.T) {
	b, _ := newBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.ErrorIs(t, b.Run(ctx), context.Canceled)
}

func TestRun_HooksObserveOutcomes(t *testing.T) {
	var mu sync.Mutex
	var fetched, ok, failed, fallbacks, inflight int
	b, client := newBot(t,
		bot.WithOnFetch(func(context.Context, protocol.Event) { mu.Lock(); fetched++; mu.Unlock() }),
		bot.WithOnSuccess(func(context.Context, protocol.Event, time.Duration) { mu.Lock(); ok++; mu.Unlock() }),
		bot.WithOnFailure(func(context.Context, protocol.Event, error, time.Duration) { mu.Lock(); failed++; mu.Unlock() }),
		bot.WithOnFallback(func(context.Context, protocol.Event) { mu.Lock(); fallbacks++; mu.Unlock() }),
		bot.WithOnInFlight(func(d int) { mu.Lock(); inflight += d; mu.Unlock() }),
	)
	b.Handle(bot.Fn0(func(context.Context) error { return errors.New("x") }), bot.Pattern(`^fail$`))

	client.Push(message("fail"))
	client.Push(message("other"))
	client.Push(&protocol.Raw{Type: "typing"})
	client.Close()
	require.NoError(t, b.Run(context.Background()))
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, fetched)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, fallbacks)
	assert.Zero(t, inflight)
}

func TestHandle_AfterRunPanics(t *testing.T) {
	b, client := newBot(t)
	client.Close()
	require.NoError(t, b.Run(context.Background()))

	assert.Panics(t, func() {
		b.Handle(bot.Fn0(func(context.Context) error { return nil }))
	})
}

func TestNew_SelfFetchError(t *testing.T) {
	_, err := bot.New(context.Background(), failingMe{})
	assert.ErrorIs(t, err, protocol.ErrAuthorization)
}

type failingMe struct{ protocol.Client }

func (failingMe) Me(context.Context) (protocol.User, error) {
	return protocol.User{}, protocol.ErrAuthorization
}
