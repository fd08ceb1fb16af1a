// Package args 把命令参数文本解析为类型化的值
package args

import (
	"unicode"
	"unicode/utf8"

	"github.com/google/shlex"
)

// SplitN 从 text 中取出至多 n 个以空白分隔的词，返回这些词以及剩余文本。
// 剩余文本从结束第 n 个词的空白字符之后开始，保持原样不做裁剪。
// n <= 0 时返回 (nil, text)；词数不足 n 时返回全部词和空字符串。
func SplitN(text string, n int) ([]string, string) {
	if n <= 0 {
		return nil, text
	}

	var tokens []string
	start := -1
	for i, r := range text {
		if !unicode.IsSpace(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start < 0 {
			continue
		}
		tokens = append(tokens, text[start:i])
		start = -1
		if len(tokens) == n {
			return tokens, text[i+utf8.RuneLen(r):]
		}
	}
	if start >= 0 {
		tokens = append(tokens, text[start:])
	}
	return tokens, ""
}

// Fields 返回 text 中所有以空白分隔的词
func Fields(text string) []string {
	tokens, _ := SplitN(text, len(text)+1)
	return tokens
}

// SplitQuoted 按 shell 规则拆分，支持引号和转义
func SplitQuoted(text string) ([]string, error) {
	tokens, err := shlex.Split(text)
	if err != nil {
		return nil, &ParseError{Input: text, Err: err}
	}
	return tokens, nil
}
