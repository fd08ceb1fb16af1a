// Package websocket 通过WebSocket连接网关收发事件，实现 protocol.Client
package websocket

import (
	"time"

	"github.com/chenxilol/hubbot/internal/utils"
)

// Config 定义WebSocket连接的配置选项
type Config struct {
	URL              string        `mapstructure:"url" json:"url"`
	Token            string        `mapstructure:"token" json:"-"`            // 以 Bearer 方式发送，同时用于确定机器人身份
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" json:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" json:"read_timeout"`   // 超过该时间没有任何数据或pong时断开
	WriteTimeout     time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval" json:"ping_interval"` // 0 表示不主动发送ping
	ReadLimit        int64         `mapstructure:"read_limit" json:"read_limit"`       // 单帧最大字节数
	ReadBufferSize   int           `mapstructure:"read_buffer_size" json:"read_buffer_size"`
	WriteBufferSize  int           `mapstructure:"write_buffer_size" json:"write_buffer_size"`
	MessageBufferCap int           `mapstructure:"message_buffer_cap" json:"message_buffer_cap"`
	Backoff          utils.Backoff `mapstructure:"backoff" json:"-"`
}

// DefaultConfig 返回默认的WebSocket配置
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8080/ws",
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      3 * time.Minute,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadLimit:        1 << 20,
		ReadBufferSize:   4 << 10,
		WriteBufferSize:  4 << 10,
		MessageBufferCap: 256,
		Backoff:          utils.DefaultBackoff(),
	}
}

// withDefaults 用默认值填充未设置的字段
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.MessageBufferCap <= 0 {
		c.MessageBufferCap = d.MessageBufferCap
	}
	return c
}
