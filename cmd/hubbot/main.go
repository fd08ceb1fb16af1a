package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/chenxilol/hubbot/configs"
	"github.com/chenxilol/hubbot/internal/auth"
	"github.com/chenxilol/hubbot/internal/bus"
	hubnats "github.com/chenxilol/hubbot/internal/bus/nats"
	"github.com/chenxilol/hubbot/internal/bus/noop"
	hubredis "github.com/chenxilol/hubbot/internal/bus/redis"
	"github.com/chenxilol/hubbot/internal/handlers"
	"github.com/chenxilol/hubbot/internal/metrics"
	"github.com/chenxilol/hubbot/internal/websocket"
	"github.com/chenxilol/hubbot/pkg/bot"
	"github.com/chenxilol/hubbot/pkg/protocol"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "配置文件路径")
	mintToken  = flag.Bool("mint-token", false, "用 auth 配置签发一个机器人令牌并退出")
)

// closer 传输层关闭函数，按注册的逆序调用
type closer func() error

func main() {
	flag.Parse()

	level := new(slog.LevelVar)
	var running atomic.Pointer[bot.Bot]
	// 配置文件变化时更新日志级别和注入的数据，处理函数表不变
	cfg, err := configs.LoadConfig(*configFile, func(c configs.Config) {
		level.Set(configs.ParseLogLevel(c.Log.Level))
		if b := running.Load(); b != nil {
			bot.AddData(b, settingsFrom(c))
		}
	})
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(configs.ParseLogLevel(cfg.Log.Level))
	slog.SetDefault(newLogger(cfg.Log, level))

	if *mintToken {
		if err := printToken(cfg); err != nil {
			slog.Error("failed to mint token", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, &running); err != nil {
		slog.Error("hubbot exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("hubbot stopped")
}

func newLogger(cfg configs.Log, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printToken(cfg configs.Config) error {
	if cfg.Auth.SecretKey == "" {
		return errors.New("auth.secret_key is required to mint a token")
	}
	svc := auth.NewJWTService(cfg.Auth.SecretKey, cfg.Auth.Issuer)
	token, err := svc.GenerateToken(context.Background(), cfg.Bot.ID, cfg.Bot.Username, auth.BotPermissions(), cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run(ctx context.Context, cfg configs.Config, running *atomic.Pointer[bot.Bot]) error {
	m := metrics.Default()

	client, closers, err := newClient(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Error("failed to close transport", "error", err)
			}
		}
	}()

	opts := append(m.Hooks(), bot.WithLogger(slog.Default()))
	b, err := bot.New(ctx, client, opts...)
	if err != nil {
		return err
	}
	b.SetPatternMutator(handlers.CommandMutator(cfg.Bot.CommandPrefix))
	bot.AddData(b, settingsFrom(cfg))
	handlers.RegisterHandlers(b)
	running.Store(b)

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			if srv == nil {
				return
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		err := b.Run(gctx)
		b.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

func settingsFrom(cfg configs.Config) handlers.Settings {
	return handlers.Settings{
		Greeting:  cfg.Bot.Greeting,
		Version:   cfg.Version,
		Transport: cfg.Transport.Type,
	}
}

// newClient 按配置创建协议客户端，返回的 closer 由调用方在退出时调用
func newClient(ctx context.Context, cfg configs.Config, m *metrics.Metrics) (protocol.Client, []closer, error) {
	if cfg.Transport.Type == configs.TransportWebSocket {
		c, err := websocket.Dial(ctx, cfg.Transport.WebSocket)
		if err != nil {
			return nil, nil, err
		}
		return c, []closer{c.Close}, nil
	}

	var (
		mb      bus.MessageBus
		backend = cfg.Transport.Type
	)
	switch cfg.Transport.Type {
	case configs.TransportNATS:
		natsCfg := cfg.Transport.NATS
		natsCfg.Metrics = m.Bus
		nb, err := hubnats.New(natsCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", protocol.ErrIO, err)
		}
		mb = nb
	case configs.TransportRedis:
		redisCfg := cfg.Transport.Redis
		redisCfg.Metrics = m.Bus
		rb, err := hubredis.New(redisCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", protocol.ErrIO, err)
		}
		mb = rb
	default:
		slog.Warn("noop transport selected, replies are dropped")
		mb = noop.New()
	}

	c, err := bus.NewClient(ctx, mb, bus.ClientConfig{
		Self:           protocol.User{ID: cfg.Bot.ID, Username: cfg.Bot.Username, Bot: true},
		InboxTopic:     cfg.Transport.InboxTopic,
		OutboxTopic:    cfg.Transport.OutboxTopic,
		DedupTTL:       cfg.Transport.DedupTTL,
		ObserveLatency: m.Bus.LatencyObserver(backend),
	})
	if err != nil {
		_ = mb.Close()
		return nil, nil, err
	}
	return c, []closer{mb.Close, c.Close}, nil
}
