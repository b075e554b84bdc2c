package mailer

import (
	"reflect"
	"strings"
	"testing"
)

func resolvedMap(t *testing.T, lines []string) map[string]string {
	t.Helper()
	out := make(map[string]string, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			t.Fatalf("malformed resolved header line: %q", line)
		}
		out[strings.ToLower(name)] = strings.TrimSpace(value)
	}
	return out
}

func TestSplitHeaders(t *testing.T) {
	got := SplitHeaders("From: a@example.com\r\nCc: b@example.com\n\nX-Extra: 1\n")
	want := []string{"From: a@example.com", "Cc: b@example.com", "X-Extra: 1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if SplitHeaders("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestResolve_DefaultsFromSiteURL(t *testing.T) {
	r := &HeaderResolver{SiteURL: "https://www.example.com:8443/app", FromName: "Mailspool"}

	h := resolvedMap(t, r.Resolve(nil))
	if h["from"] != "Mailspool <mail@example.com>" {
		t.Errorf("unexpected default From: %q", h["from"])
	}
	if h["content-type"] != "text/plain; charset=UTF-8" {
		t.Errorf("unexpected default Content-Type: %q", h["content-type"])
	}
}

func TestResolve_ConfiguredFromAddressWins(t *testing.T) {
	r := &HeaderResolver{SiteURL: "https://example.com", FromName: "Ops", FromEmail: "ops@example.net"}

	h := resolvedMap(t, r.Resolve(nil))
	if h["from"] != "Ops <ops@example.net>" {
		t.Errorf("unexpected From: %q", h["from"])
	}
}

func TestResolve_SubmittedFromHeaderWins(t *testing.T) {
	r := &HeaderResolver{SiteURL: "https://example.com", FromName: "Default"}

	h := resolvedMap(t, r.Resolve([]string{"From: Alice <alice@example.org>"}))
	if h["from"] != "Alice <alice@example.org>" {
		t.Errorf("unexpected From: %q", h["from"])
	}
}

func TestResolve_FromNameQuotedOnlyWhenNeeded(t *testing.T) {
	r := &HeaderResolver{SiteURL: "https://example.com", FromName: "Mailspool"}

	h := resolvedMap(t, r.Resolve(nil))
	if strings.Contains(h["from"], `"`) {
		t.Errorf("a plain name must stay unquoted, got %q", h["from"])
	}

	r.FromName = "Ops, Team"
	h = resolvedMap(t, r.Resolve(nil))
	if h["from"] != `"Ops, Team" <mail@example.com>` {
		t.Errorf("a name with specials must be quoted, got %q", h["from"])
	}

	r.FromName = ""
	h = resolvedMap(t, r.Resolve(nil))
	if h["from"] != "mail@example.com" {
		t.Errorf("expected the bare address without a name, got %q", h["from"])
	}
}

func TestResolve_ContentTypeCharsetPreserved(t *testing.T) {
	r := &HeaderResolver{SiteURL: "https://example.com"}

	h := resolvedMap(t, r.Resolve([]string{"Content-Type: text/html; charset=ISO-8859-1"}))
	if h["content-type"] != "text/html; charset=ISO-8859-1" {
		t.Errorf("unexpected Content-Type: %q", h["content-type"])
	}
}

func TestResolve_MultipartBoundaryPreserved(t *testing.T) {
	r := &HeaderResolver{SiteURL: "https://example.com"}

	h := resolvedMap(t, r.Resolve([]string{`Content-Type: multipart/alternative; boundary="=_border"`}))
	if h["content-type"] != `multipart/alternative; boundary="=_border"` {
		t.Errorf("boundary lost while resolving: %q", h["content-type"])
	}
}

func TestResolve_OverridesApplyInOrder(t *testing.T) {
	r := &HeaderResolver{
		SiteURL:  "https://example.com",
		FromName: "Default",
		Overrides: Overrides{
			FromEmail:   func(string) string { return "over@example.com" },
			FromName:    func(string) string { return "Override" },
			ContentType: func(string) string { return "text/html" },
			Charset:     func(string) string { return "ISO-8859-2" },
		},
	}

	h := resolvedMap(t, r.Resolve([]string{"From: Alice <alice@example.org>"}))
	if h["from"] != "Override <over@example.com>" {
		t.Errorf("overrides should win over the submitted From, got %q", h["from"])
	}
	if h["content-type"] != "text/html; charset=ISO-8859-2" {
		t.Errorf("unexpected Content-Type after overrides: %q", h["content-type"])
	}
}

func TestResolve_PassesThroughOtherHeaders(t *testing.T) {
	r := &HeaderResolver{SiteURL: "https://example.com"}

	lines := r.Resolve([]string{"Reply-To: help@example.com", "X-Campaign: 7"})
	h := resolvedMap(t, lines)
	if h["reply-to"] != "help@example.com" {
		t.Errorf("Reply-To dropped: %v", lines)
	}
	if h["x-campaign"] != "7" {
		t.Errorf("X-Campaign dropped: %v", lines)
	}
}

func TestSiteDomain(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.example.com", "example.com"},
		{"https://example.com:8080", "example.com"},
		{"http://localhost:8080", "localhost"},
		{"example.org", "example.org"},
		{"", "localhost"},
	}
	for _, tc := range tests {
		if got := siteDomain(tc.in); got != tc.want {
			t.Errorf("siteDomain(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
