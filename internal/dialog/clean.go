package dialog

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

var (
	htmlTagPattern     = regexp.MustCompile(`<[^>]+>`)
	urlPattern         = regexp.MustCompile(`https?://\S+`)
	emoticonPattern    = regexp.MustCompile(`\[ww:[^\]]*\]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	systemBlockPattern = regexp.MustCompile(`(?s)[\[【](?:系统提示|系统消息|自动回复|自动消息)[\]】].*?[\[【]/(?:系统提示|系统消息|自动回复|自动消息)[\]】]`)

	// Markdown marks are unwrapped, keeping the inner text.
	markdownBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	markdownItalic = regexp.MustCompile(`\*(.+?)\*`)
	markdownStrike = regexp.MustCompile(`~~(.+?)~~`)
	markdownCode   = regexp.MustCompile("`(.+?)`")
	markdownLink   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
)

// Clean normalizes raw message content for matching and extraction.
// It never returns an error; content that cleans down to nothing yields "".
func Clean(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	text = width.Fold.String(text)
	text = html.UnescapeString(text)
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = systemBlockPattern.ReplaceAllString(text, "")
	text = emoticonPattern.ReplaceAllString(text, "")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = urlPattern.ReplaceAllString(text, "[URL]")

	text = markdownBold.ReplaceAllString(text, "$1")
	text = markdownStrike.ReplaceAllString(text, "$1")
	text = markdownItalic.ReplaceAllString(text, "$1")
	text = markdownCode.ReplaceAllString(text, "$1")

	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)

	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// IsSubstantive reports whether text contains at least one letter or digit,
// i.e. it is not only punctuation, symbols or emoji.
func IsSubstantive(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
