package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

func ExtractURLs(content string) []string {
	return urlRegex.FindAllString(content, -1)
}

// ParseHost returns the lowercased ASCII host of a raw URL with any
// leading "www." stripped. Schemeless input is treated as https.
func ParseHost(raw string) (string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	host := strings.ToLower(parsed.Hostname())
	asciiHost, err := idna.ToASCII(host)
	if err == nil {
		host = asciiHost
	}
	return strings.TrimPrefix(host, "www."), nil
}
