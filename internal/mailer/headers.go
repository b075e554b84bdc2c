package mailer

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/emersion/go-message"
)

const (
	defaultContentType = "text/plain"
	defaultCharset     = "UTF-8"
)

// Overrides are the explicit hooks applied once, at submission time, while
// resolving headers. A nil hook leaves the value alone. The processor sends
// stored headers byte-for-byte and never consults these again, so an
// override registered for one submission can never leak into another's
// delivery.
type Overrides struct {
	FromEmail   func(string) string
	FromName    func(string) string
	ContentType func(string) string
	Charset     func(string) string
}

// HeaderResolver materializes the final header lines for an envelope.
type HeaderResolver struct {
	// SiteURL supplies the default From domain (mail@<host>, www. stripped).
	SiteURL string
	// FromName is the display name used when the submission carries none.
	FromName string
	// FromEmail, if set, overrides the SiteURL-derived default address.
	FromEmail string

	Overrides Overrides
}

// SplitHeaders turns a newline-separated raw header block into lines,
// dropping blanks. CRLF and bare LF input are both accepted.
func SplitHeaders(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Resolve parses raw header lines, fills in From and Content-Type with
// defaults and override hooks applied, and reserializes the result. The
// returned lines are what gets persisted with the envelope.
func (r *HeaderResolver) Resolve(headers []string) []string {
	fromName := r.FromName
	fromEmail := r.FromEmail
	if fromEmail == "" {
		fromEmail = "mail@" + siteDomain(r.SiteURL)
	}
	contentType := defaultContentType
	charset := defaultCharset
	boundary := ""

	var passthrough []string
	for _, line := range headers {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "from":
			if addr, err := mail.ParseAddress(value); err == nil {
				if addr.Name != "" {
					fromName = addr.Name
				}
				fromEmail = addr.Address
			}
		case "content-type":
			ct, params := parseContentType(value)
			if ct != "" {
				contentType = ct
			}
			if cs, ok := params["charset"]; ok && cs != "" {
				charset = cs
			}
			if b, ok := params["boundary"]; ok {
				boundary = b
			}
		default:
			passthrough = append(passthrough, strings.TrimSpace(name)+": "+value)
		}
	}

	if r.Overrides.FromEmail != nil {
		fromEmail = r.Overrides.FromEmail(fromEmail)
	}
	if r.Overrides.FromName != nil {
		fromName = r.Overrides.FromName(fromName)
	}
	if r.Overrides.ContentType != nil {
		contentType = r.Overrides.ContentType(contentType)
	}
	if r.Overrides.Charset != nil {
		charset = r.Overrides.Charset(charset)
	}

	resolved := []string{"From: " + formatFrom(fromName, fromEmail)}
	if strings.HasPrefix(contentType, "multipart/") && boundary != "" {
		resolved = append(resolved, fmt.Sprintf("Content-Type: %s; boundary=%q", contentType, boundary))
	} else {
		resolved = append(resolved, fmt.Sprintf("Content-Type: %s; charset=%s", contentType, charset))
	}
	return append(resolved, passthrough...)
}

// formatFrom renders the From value as "Name <addr>", the format older
// spools and mail clients expect. A plain-word name stays unquoted; one
// that needs escaping falls back to the strict serializer.
func formatFrom(name, email string) string {
	if name == "" {
		return email
	}
	if phraseSafe(name) {
		return name + " <" + email + ">"
	}
	return (&mail.Address{Name: name, Address: email}).String()
}

// phraseSafe reports whether s can appear as an RFC 5322 phrase without
// quoting: atext characters and single interior spaces only.
func phraseSafe(s string) bool {
	if s == "" || s[0] == ' ' || s[len(s)-1] == ' ' {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ' ':
		case strings.ContainsRune("!#$%&'*+-/=?^_`{|}~", r):
		default:
			return false
		}
	}
	return true
}

// parseContentType decodes a Content-Type value with its parameters.
func parseContentType(value string) (string, map[string]string) {
	var h message.Header
	h.Set("Content-Type", value)
	t, params, err := h.ContentType()
	if err != nil {
		// Fall back to the bare type before any parameters.
		bare, _, _ := strings.Cut(value, ";")
		return strings.ToLower(strings.TrimSpace(bare)), nil
	}
	return t, params
}

// siteDomain extracts the mail domain from a site URL, stripping a
// leading "www.".
func siteDomain(siteURL string) string {
	host := siteURL
	if u, err := url.Parse(siteURL); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.TrimPrefix(host, "www.")
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	if host == "" {
		host = "localhost"
	}
	return host
}
