package validation

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxMessageLength = 4000
	MaxEmojiBytes           = 32
	MaxImageURLLength       = 2048
	MediaPathPrefix         = "/api/media/"
)

func NormalizeContent(content string) string {
	return strings.TrimSpace(content)
}

// ContentTooLong counts characters, not bytes.
func ContentTooLong(content string, max int) bool {
	if max <= 0 {
		max = DefaultMaxMessageLength
	}
	return utf8.RuneCountInString(content) > max
}

func TrimAndLimit(s string, max int) string {
	s = strings.TrimSpace(s)
	if max > 0 && utf8.RuneCountInString(s) > max {
		return string([]rune(s)[:max])
	}
	return s
}

// NormalizeImageURL trims the value and maps blank to nil.
func NormalizeImageURL(u *string) *string {
	if u == nil {
		return nil
	}
	v := strings.TrimSpace(*u)
	if v == "" {
		return nil
	}
	return &v
}

// ValidateImageURL accepts our own media paths or absolute http(s) URLs.
func ValidateImageURL(u string) bool {
	if u == "" || len(u) > MaxImageURLLength || !utf8.ValidString(u) {
		return false
	}
	if strings.HasPrefix(u, MediaPathPrefix) {
		return !strings.Contains(u, "..") && !strings.ContainsAny(u, " \t\r\n")
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// ValidateEmoji accepts a short token with at least one non-ASCII rune and no
// whitespace or control characters. Keycap sequences like "1️⃣" pass.
func ValidateEmoji(emoji string) bool {
	if emoji == "" || len(emoji) > MaxEmojiBytes || !utf8.ValidString(emoji) {
		return false
	}
	hasSymbol := false
	for _, r := range emoji {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
		if r > unicode.MaxASCII {
			hasSymbol = true
		}
	}
	return hasSymbol
}
