package configs

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/chenxilol/hubbot/internal/bus/nats"
	"github.com/chenxilol/hubbot/internal/bus/redis"
	"github.com/chenxilol/hubbot/internal/websocket"
)

// 传输类型
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
	TransportRedis     = "redis"
	TransportNoop      = "noop"
)

type Bot struct {
	// 总线传输使用的身份；websocket 传输从令牌中读取身份
	ID       string `mapstructure:"id"`
	Username string `mapstructure:"username"`
	// 命令前缀，加在每个处理函数的模式之前
	CommandPrefix string `mapstructure:"command_prefix"`
	// 交给 config 命令展示的附加数据
	Greeting string `mapstructure:"greeting"`
}

type Transport struct {
	Type        string           `mapstructure:"type"` // websocket, nats, redis, noop
	WebSocket   websocket.Config `mapstructure:"websocket"`
	NATS        nats.Config      `mapstructure:"nats"`
	Redis       redis.Config     `mapstructure:"redis"`
	InboxTopic  string           `mapstructure:"inbox_topic"`  // 为空时按机器人ID生成
	OutboxTopic string           `mapstructure:"outbox_topic"` // 为空时按机器人ID生成
	DedupTTL    time.Duration    `mapstructure:"dedup_ttl"`
}

// Auth 签发机器人令牌所用的网关密钥
type Auth struct {
	SecretKey string        `mapstructure:"secret_key"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json 或 text
}

type Config struct {
	Bot       `mapstructure:"bot"`
	Transport `mapstructure:"transport"`
	Auth      `mapstructure:"auth"`
	Metrics   `mapstructure:"metrics"`
	Log       `mapstructure:"log"`
	Version   string `mapstructure:"version"`
}

// NewDefaultConfig creates a new Config with default values
func NewDefaultConfig() Config {
	config := Config{}

	config.Bot.Username = "hubbot"
	config.Bot.CommandPrefix = "/"
	config.Bot.Greeting = "hello from hubbot"

	config.Transport.Type = TransportWebSocket
	config.Transport.WebSocket = websocket.DefaultConfig()
	config.Transport.NATS = nats.DefaultConfig()
	config.Transport.Redis = redis.DefaultConfig()
	config.Transport.DedupTTL = 30 * time.Second

	config.Auth.Issuer = "gohub"
	config.Auth.TokenTTL = 30 * 24 * time.Hour

	config.Metrics.Enabled = true
	config.Metrics.Addr = ":9090"
	config.Metrics.Path = "/metrics"

	config.Log.Level = "info"
	config.Log.Format = "json"

	config.Version = "dev"
	return config
}

// Validate 检查所选传输需要的字段
func (c *Config) Validate() error {
	switch c.Transport.Type {
	case TransportWebSocket:
		if c.Transport.WebSocket.URL == "" {
			return fmt.Errorf("transport.websocket.url is required")
		}
	case TransportNATS, TransportRedis, TransportNoop:
		if c.Bot.ID == "" {
			return fmt.Errorf("bot.id is required for the %s transport", c.Transport.Type)
		}
	default:
		return fmt.Errorf("unknown transport type %q", c.Transport.Type)
	}
	return nil
}

// 这些键没有出现在配置文件里时也能被环境变量覆盖
var envKeys = []string{
	"bot.id",
	"bot.username",
	"bot.command_prefix",
	"transport.type",
	"transport.websocket.url",
	"transport.websocket.token",
	"transport.nats.urls",
	"transport.nats.token",
	"transport.redis.addrs",
	"transport.redis.password",
	"auth.secret_key",
	"metrics.addr",
	"log.level",
}

// LoadConfig 读取配置文件并应用 HUBBOT_ 前缀的环境变量。
// 文件不可读时使用默认值；onChange 在配置文件变更并重新解析成功后被调用
func LoadConfig(configFile string, onChange ...func(Config)) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HUBBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	fileLoaded := false
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("failed to read config file, using defaults", "file", configFile, "error", err)
		} else {
			fileLoaded = true
		}
	}

	config, err := decode(v)
	if err != nil {
		return Config{}, err
	}

	if fileLoaded {
		SetupConfigHotReload(v, onChange...)
	}
	return config, nil
}

func decode(v *viper.Viper) (Config, error) {
	config := NewDefaultConfig()
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return config, nil
}

// SetupConfigHotReload 监听配置文件变化，每次变化后把重新解析的配置交给回调
func SetupConfigHotReload(v *viper.Viper, onChange ...func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("config file changed", "file", e.Name, "op", e.Op.String())

		config, err := decode(v)
		if err != nil {
			slog.Error("failed to unmarshal updated config", "error", err)
			return
		}
		for _, fn := range onChange {
			fn(config)
		}
		slog.Info("config reloaded successfully")
	})
	v.WatchConfig()
}

// ParseLogLevel parses a string log level to slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
