// Package licence turns whatever a QR reader or a paste produced into a
// licence number.
package licence

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	pathRe   = regexp.MustCompile(`(?i)licen[cs]e/(\w{5,})`)
	tokenRe  = regexp.MustCompile(`[A-Za-z0-9]{5,}`)
	unsafeRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// Extract returns the uppercased licence number found in raw, trying the
// itac.pro lookup parameters first and falling back to ever looser
// patterns. It never fails; ok is false when nothing looks like a licence.
func Extract(raw string) (id string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	rest := raw
	if u, err := url.Parse(raw); err == nil {
		q := u.Query()
		if IsLookupURL(u) {
			for _, k := range []string{"C", "c", "N", "n"} {
				if v := strings.TrimSpace(q.Get(k)); v != "" {
					return strings.ToUpper(v), true
				}
			}
		}
		if m := pathRe.FindStringSubmatch(u.Path); m != nil {
			return strings.ToUpper(m[1]), true
		}
		for _, k := range []string{"licence", "license"} {
			if v := strings.TrimSpace(q.Get(k)); v != "" {
				return strings.ToUpper(v), true
			}
		}
		if u.IsAbs() && u.Host != "" {
			rest = u.RequestURI()
			if u.Fragment != "" {
				rest += "#" + u.Fragment
			}
		}
	}

	if m := tokenRe.FindString(rest); m != "" {
		return strings.ToUpper(m), true
	}
	return "", false
}

// IsLookupURL reports whether u points at the federation licence lookup
// page (itac.pro/F.aspx).
func IsLookupURL(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host != "itac.pro" && !strings.HasSuffix(host, ".itac.pro") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), "/f.aspx")
}

// Sanitize makes a licence number safe to use as an object key segment.
func Sanitize(id string) string {
	return unsafeRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(id)), "_")
}
