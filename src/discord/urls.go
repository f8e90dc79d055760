package discord

import (
	"regexp"
	"strings"
)

var urlRegex = regexp.MustCompile(`<?https?://[^\s\[\]()<>]+>?`)

// WrapURLsNoEmbed wraps bare URLs in angle brackets so Discord does not embed
// them. Already wrapped URLs are left alone.
func WrapURLsNoEmbed(text string) string {
	return urlRegex.ReplaceAllStringFunc(text, func(match string) string {
		if strings.HasPrefix(match, "<") && strings.HasSuffix(match, ">") {
			return match
		}
		raw := strings.Trim(match, "<>")
		trimmed := strings.TrimRight(raw, ".,;:!?)")
		return "<" + trimmed + ">" + raw[len(trimmed):]
	})
}
