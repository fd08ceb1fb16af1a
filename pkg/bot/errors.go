package bot

import "errors"

var (
	// ErrMissingParameters 回退处理函数的参数无法从上下文中取得
	ErrMissingParameters = errors.New("missing parameters")
	ErrUnimplemented     = errors.New("unimplemented")
	// ErrPanic 处理函数发生 panic
	ErrPanic = errors.New("handler panicked")
)
