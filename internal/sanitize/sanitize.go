// Package sanitize normalizes user-supplied message content before storage.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxContentLength is the cap applied to message content before any other
// transformation.
const MaxContentLength = 1024

var (
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	controlPattern = regexp.MustCompile("[\x00-\x08\x0b-\x1f\x7f]")
)

// Content transforms raw message text into its stored form: truncate to
// MaxContentLength, drop markup-like tag sequences, drop control characters
// except newline and tab, trim surrounding whitespace. It never fails; the
// result may be empty.
func Content(s string) string {
	if s == "" {
		return s
	}

	if len(s) > MaxContentLength {
		s = truncate(s, MaxContentLength)
	}

	s = tagPattern.ReplaceAllString(s, "")
	s = controlPattern.ReplaceAllString(s, "")

	return strings.TrimSpace(s)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	// step back over a partial multi-byte rune at the cut point
	for i := 0; i < utf8.UTFMax-1 && len(cut) > 0; i++ {
		if r, _ := utf8.DecodeLastRuneInString(cut); r != utf8.RuneError {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut
}
