package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// WSConn 客户端使用的连接操作，便于在测试中替换
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	WriteControl(int, []byte, time.Time) error
	SetReadLimit(int64)
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	SetPongHandler(func(string) error)
	Close() error
}

// GorillaConn 适配gorilla/websocket到WSConn接口
type GorillaConn struct {
	*websocket.Conn
}

var _ WSConn = (*GorillaConn)(nil)

func NewGorillaConn(conn *websocket.Conn) *GorillaConn {
	return &GorillaConn{Conn: conn}
}

// Frame 封装底层websocket帧
type Frame struct {
	MsgType int        // websocket.TextMessage / BinaryMessage
	Data    []byte     // 消息内容
	Ack     chan error // nil表示发送后不需要确认
}

// isNormalClose 对端正常关闭连接
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}
