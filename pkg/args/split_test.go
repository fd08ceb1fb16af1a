package args

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitN(t *testing.T) {
	const input = "aaa  bbb c d e  f  g"

	tests := []struct {
		name       string
		text       string
		n          int
		wantTokens []string
		wantRest   string
	}{
		{"zero", input, 0, nil, input},
		{"negative", input, -1, nil, input},
		{"one", input, 1, []string{"aaa"}, " bbb c d e  f  g"},
		{"two", input, 2, []string{"aaa", "bbb"}, "c d e  f  g"},
		{"all", input, 99, []string{"aaa", "bbb", "c", "d", "e", "f", "g"}, ""},
		{"exact without trailing space", "a b", 2, []string{"a", "b"}, ""},
		{"exact with trailing space", "a b ", 2, []string{"a", "b"}, ""},
		{"leading whitespace", "   x y", 1, []string{"x"}, "y"},
		{"tabs and newlines", "a\tb\nc", 2, []string{"a", "b"}, "c"},
		{"empty", "", 3, nil, ""},
		{"only spaces", "    ", 1, nil, ""},
		{"unicode", "héllo wörld !", 1, []string{"héllo"}, "wörld !"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, rest := SplitN(tt.text, tt.n)
			assert.Equal(t, tt.wantTokens, tokens)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestSplitN_MatchesFieldsWhenNIsLarge(t *testing.T) {
	inputs := []string{"", "a", " a  b\tc ", "1 2 3 4 5 6 7 8 9"}
	for _, in := range inputs {
		all := Fields(in)
		tokens, rest := SplitN(in, len(all))
		if len(all) == 0 {
			continue
		}
		assert.Equal(t, all, tokens, in)
		assert.Empty(t, rest, in)
	}
}

func TestFields(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Fields("  a b   c "))
	assert.Empty(t, Fields(""))
	assert.Empty(t, Fields("   "))
}

func TestSplitQuoted(t *testing.T) {
	tokens, err := SplitQuoted(`say "hello world" it's`)
	require.Error(t, err, "unterminated quote should fail")
	assert.Nil(t, tokens)

	tokens, err = SplitQuoted(`say "hello world" 'twice'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"say", "hello world", "twice"}, tokens)
}
