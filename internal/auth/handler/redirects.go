package handler

import "strings"

// DefaultErrorRedirect is used when no configured rule matches.
const DefaultErrorRedirect = "/login"

// ErrorRedirect sends provider errors whose message contains Match to URL.
type ErrorRedirect struct {
	Match string
	URL   string
}

// ParseErrorRedirects reads one "substring|url" rule per line. Blank and
// malformed lines are skipped.
func ParseErrorRedirects(raw string) []ErrorRedirect {
	var out []ErrorRedirect
	for _, line := range strings.Split(raw, "\n") {
		match, url, ok := strings.Cut(strings.TrimSpace(line), "|")
		match, url = strings.TrimSpace(match), strings.TrimSpace(url)
		if !ok || match == "" || url == "" {
			continue
		}
		out = append(out, ErrorRedirect{Match: match, URL: url})
	}
	return out
}

// errorRedirect returns the first rule URL whose match occurs in message.
func errorRedirect(rules []ErrorRedirect, message string) string {
	for _, r := range rules {
		if strings.Contains(message, r.Match) {
			return r.URL
		}
	}
	return DefaultErrorRedirect
}
