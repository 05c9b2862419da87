package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentPassesPlainText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello there", Content("hello there"))
}

func TestContentTrimsWhitespace(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello", Content("  hello \n"))
}

func TestContentStripsTags(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello", Content("<script>alert(1)</script>hello"))
	require.Equal(t, "bold", Content("<b>bold</b>"))
	require.Equal(t, "a  b", Content("a <img src=x onerror=alert(1)> b"))
}

func TestContentStripsControlCharacters(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ab", Content("a\x00\x07\x1b\x7fb"))
	require.Equal(t, "ab", Content("a\rb"))
}

func TestContentKeepsNewlinesAndTabs(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a\nb\tc", Content("a\nb\tc"))
}

func TestContentTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", MaxContentLength+50)
	got := Content(long)
	require.Len(t, got, MaxContentLength)
}

func TestContentTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// 2-byte runes; an odd cap would split one without the boundary check
	long := strings.Repeat("é", MaxContentLength)
	got := Content(long)
	require.True(t, len(got) <= MaxContentLength)
	require.Equal(t, strings.Repeat("é", len(got)/2), got)
}

func TestContentEmptyStaysEmpty(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Content(""))
	require.Equal(t, "", Content("   "))
	require.Equal(t, "", Content("<br>"))
}
