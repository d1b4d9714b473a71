package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTruncateText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "short", tp.TruncateText("short", 10))
	assert.Equal(t, "unbounded", tp.TruncateText("unbounded", 0))
	assert.Equal(t, "abc...", tp.TruncateText("abcdef", 3))

	// "é" is two bytes; cutting through it must not leave half a rune
	out := tp.TruncateText("aé", 2)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "a...", out)
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(nil)
	assert.Equal(t, "ok", tp.SanitizeUTF8("ok"))
	assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
}

func TestHeaderValue(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "Greylist time elapsed", tp.HeaderValue("Greylist time elapsed", DefaultHeaderValueSize))
	assert.Equal(t, "a b  c", tp.HeaderValue("a\rb\r\nc\n", DefaultHeaderValueSize))
	assert.NotContains(t, tp.HeaderValue("x\x00y\x7f", DefaultHeaderValueSize), "\x00")

	long := tp.HeaderValue(strings.Repeat("z", 2000), DefaultHeaderValueSize)
	assert.Len(t, long, DefaultHeaderValueSize+3)
}
