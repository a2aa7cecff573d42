package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EmbedPlaceholder is logged for messages that carry only embeds.
const EmbedPlaceholder = "<message contains embeds>"

// ChunkMessage splits text into pieces of at most limit runes. Each cut is
// made after the last newline in the window, else after the last space,
// else at the limit. Concatenating the chunks yields text exactly.
func ChunkMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	rest := []rune(text)
	for len(rest) > limit {
		window := rest[:limit]
		cut := lastIndexRune(window, '\n')
		if cut <= 0 {
			cut = lastIndexRune(window, ' ')
		}
		if cut <= 0 {
			cut = limit
		} else {
			cut++ // keep the separator with the chunk it ends
		}
		out = append(out, string(rest[:cut]))
		rest = rest[cut:]
	}
	if len(rest) > 0 {
		out = append(out, string(rest))
	}
	return out
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

var (
	channelNameDrop = regexp.MustCompile(`[^a-z0-9_-]+`)
	dashRuns        = regexp.MustCompile(`-{2,}`)
)

// ChannelName derives a channel-safe name from a username: accents are
// stripped, whitespace becomes "-", anything outside [a-z0-9_-] is dropped,
// and the result is capped at maxLen. An empty result becomes "unknown".
func ChannelName(username string, maxLen int) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, username)
	if err != nil {
		ascii = username
	}
	name := strings.ToLower(strings.Join(strings.Fields(ascii), "-"))
	name = channelNameDrop.ReplaceAllString(name, "")
	name = dashRuns.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "unknown"
	}
	if maxLen > 0 && len(name) > maxLen {
		name = strings.TrimRight(name[:maxLen], "-")
	}
	return name
}

var placeholderRE = regexp.MustCompile(`\\?\{(\d+)\}`)

// RenderSnippet substitutes {1}..{N} in body with args. Placeholders
// without a matching argument are kept; a backslash-escaped placeholder
// renders literally without the backslash.
func RenderSnippet(body string, args []string) string {
	return placeholderRE.ReplaceAllStringFunc(body, func(m string) string {
		if strings.HasPrefix(m, `\`) {
			return m[1:]
		}
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || n < 1 || n > len(args) {
			return m
		}
		return args[n-1]
	})
}

// humanAge renders the time elapsed between from and now, e.g. "3 weeks".
func humanAge(from, now time.Time) string {
	return strings.TrimSpace(humanize.RelTime(from, now, "", ""))
}

// joinLines appends extra lines to text, separated by a blank line.
func joinLines(text string, extra []string) string {
	if len(extra) == 0 {
		return text
	}
	if text == "" {
		return strings.Join(extra, "\n")
	}
	return text + "\n\n" + strings.Join(extra, "\n")
}
