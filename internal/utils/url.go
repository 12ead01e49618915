package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var inviteRegex = regexp.MustCompile(`(?i)(?:discord\.gg|discord(?:app)?\.com/invite)/([A-Za-z0-9-]+)`)

func ExtractURLs(content string) []string {
	return urlRegex.FindAllString(content, -1)
}

// ExtractInvites returns the invite codes in a message, in order.
func ExtractInvites(content string) []string {
	matches := inviteRegex.FindAllStringSubmatch(content, -1)
	codes := make([]string, 0, len(matches))
	for _, match := range matches {
		codes = append(codes, match[1])
	}
	return codes
}

// NormalizeHost lowercases and punycodes a URL's host so links to the
// same place compare equal regardless of how they were typed.
func NormalizeHost(raw string) (string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(parsed.Hostname())
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	return host, nil
}
