package args

import (
	"errors"
	"fmt"
)

var (
	ErrArgCount     = errors.New("not enough arguments")
	ErrNoSuchOption = errors.New("no matching option")
	ErrInvalidBool  = errors.New("invalid boolean")
	ErrUnsupported  = errors.New("unsupported argument type")
)

// ParseError 参数解析失败，Input 为出错的原始文本
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("args: parse %q", e.Input)
	}
	return fmt.Sprintf("args: parse %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
