package automod

import (
	"testing"

	"sbmod/internal/storage"
)

func TestLinkFilterWhitelist(t *testing.T) {
	settings := storage.AutomodSettings{
		Enabled:       true,
		LinkFilter:    true,
		LinkWhitelist: []string{"youtube.com", "www.example.com"},
	}

	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{"whitelisted", "watch https://youtube.com/watch?v=x", false},
		{"whitelisted www", "https://www.youtube.com/watch?v=x", false},
		{"whitelist entry with www", "see https://example.com/page", false},
		{"not whitelisted", "go to https://evil.example.org", true},
		{"subdomain is a different host", "https://music.youtube.com/track", true},
		{"no links", "just text", false},
	}
	for _, tc := range cases {
		kinds := EvaluateContent(settings, tc.content)
		got := containsKind(kinds, KindLink)
		if got != tc.want {
			t.Fatalf("%s: link violation = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestLinkFilterDisabled(t *testing.T) {
	settings := storage.AutomodSettings{Enabled: true, LinkFilter: false}
	if kinds := EvaluateContent(settings, "https://anything.example"); containsKind(kinds, KindLink) {
		t.Fatalf("disabled filter flagged a link: %v", kinds)
	}
}

func TestInviteFilter(t *testing.T) {
	settings := storage.AutomodSettings{Enabled: true, AppsFilter: true}
	for _, content := range []string{
		"join discord.gg/abc123",
		"https://discord.com/invite/abc123",
		"DISCORDAPP.COM/INVITE/xyz",
	} {
		if kinds := EvaluateContent(settings, content); !containsKind(kinds, KindInvite) {
			t.Fatalf("expected invite violation for %q, got %v", content, kinds)
		}
	}
	if kinds := EvaluateContent(settings, "we chat on discord sometimes"); containsKind(kinds, KindInvite) {
		t.Fatalf("false positive: %v", kinds)
	}
}

func TestInviteFilterDisabled(t *testing.T) {
	settings := storage.AutomodSettings{Enabled: true, AppsFilter: false}
	if kinds := EvaluateContent(settings, "join discord.gg/abc123"); containsKind(kinds, KindInvite) {
		t.Fatalf("disabled filter flagged an invite: %v", kinds)
	}
}

func TestProfanityFilter(t *testing.T) {
	settings := storage.AutomodSettings{Enabled: true, ProfanityFilter: true}
	if kinds := EvaluateContent(settings, "what the fuck"); !containsKind(kinds, KindProfanity) {
		t.Fatalf("expected profanity violation, got %v", kinds)
	}
	if kinds := EvaluateContent(settings, "have a nice day"); containsKind(kinds, KindProfanity) {
		t.Fatalf("false positive: %v", kinds)
	}
}

func TestEvaluateCollectsAllKinds(t *testing.T) {
	settings := storage.AutomodSettings{
		Enabled:         true,
		LinkFilter:      true,
		ProfanityFilter: true,
		AppsFilter:      true,
	}
	kinds := EvaluateContent(settings, "fuck this, join https://discord.gg/abc123")
	if !containsKind(kinds, KindLink) || !containsKind(kinds, KindInvite) || !containsKind(kinds, KindProfanity) {
		t.Fatalf("expected link, invite, and profanity together, got %v", kinds)
	}
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
