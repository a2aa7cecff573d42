package bot

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ErrInvalidDelay is returned by ParseDelay for malformed input.
var ErrInvalidDelay = errors.New("invalid delay, use e.g. 1d2h30m")

var (
	delayRE   = regexp.MustCompile(`^(\d+[dhms])+$`)
	delayPart = regexp.MustCompile(`(\d+)([dhms])`)
)

var delayUnits = map[string]time.Duration{
	"d": 24 * time.Hour,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

// ParseDelay parses durations like "1d2h30m", "90m" or "45s". Units may
// repeat and appear in any order; the result must be positive.
func ParseDelay(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !delayRE.MatchString(s) {
		return 0, ErrInvalidDelay
	}
	var total time.Duration
	for _, m := range delayPart.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, ErrInvalidDelay
		}
		total += time.Duration(n) * delayUnits[m[2]]
	}
	if total <= 0 {
		return 0, ErrInvalidDelay
	}
	return total, nil
}

// SplitArgs splits s on whitespace, keeping double-quoted runs together
// without their quotes. An unterminated quote runs to the end.
func SplitArgs(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote, started := false, false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case unicode.IsSpace(r) && !inQuote:
			if started {
				out = append(out, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		out = append(out, cur.String())
	}
	return out
}

// splitCommand separates the command word from the rest of text.
func splitCommand(text string) (cmd, rest string) {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return strings.ToLower(text), ""
	}
	return strings.ToLower(text[:i]), strings.TrimSpace(text[i:])
}

// isSnowflake reports whether s looks like a platform id.
func isSnowflake(s string) bool {
	if len(s) < 5 || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// mentionID extracts the id from "<@123>" or "<@!123>", or returns s.
func mentionID(s string) string {
	s = strings.TrimPrefix(strings.TrimSuffix(s, ">"), "<@")
	return strings.TrimPrefix(s, "!")
}

// pageArg parses a 1-based page number from args[0]. Missing, malformed
// and non-positive values mean the first page.
func pageArg(args []string) int {
	if len(args) == 0 {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
