package automod

import (
	"regexp"
	"strings"

	"sbmod/internal/storage"
	"sbmod/internal/utils"

	goaway "github.com/TwiN/go-away"
)

const (
	KindLink      = "link"
	KindInvite    = "invite"
	KindProfanity = "profanity"
	KindSpam      = "spam"
)

var inviteRegex = regexp.MustCompile(`(?i)(discord\.gg|discord\.com/invite|discordapp\.com/invite)/[a-zA-Z0-9-]+`)

// EvaluateContent runs every enabled content filter and returns all
// triggered kinds, not just the first. Spam is rate-based and handled
// by the module.
func EvaluateContent(settings storage.AutomodSettings, content string) []string {
	var kinds []string

	if settings.LinkFilter && linkViolation(content, settings.LinkWhitelist) {
		kinds = append(kinds, KindLink)
	}
	if settings.AppsFilter && inviteRegex.MatchString(content) {
		kinds = append(kinds, KindInvite)
	}
	if settings.ProfanityFilter && goaway.IsProfane(content) {
		kinds = append(kinds, KindProfanity)
	}
	return kinds
}

// linkViolation reports whether the content contains a URL whose host is
// not on the whitelist. Unparseable URLs count as violations: a link the
// filter cannot classify is not allowed through.
func linkViolation(content string, whitelist []string) bool {
	urls := utils.ExtractURLs(content)
	if len(urls) == 0 {
		return false
	}

	allowed := make(map[string]struct{}, len(whitelist))
	for _, entry := range whitelist {
		host := strings.ToLower(strings.TrimSpace(entry))
		host = strings.TrimPrefix(host, "www.")
		if host != "" {
			allowed[host] = struct{}{}
		}
	}

	for _, raw := range urls {
		host, err := utils.ParseHost(raw)
		if err != nil {
			return true
		}
		if _, ok := allowed[host]; !ok {
			return true
		}
	}
	return false
}
