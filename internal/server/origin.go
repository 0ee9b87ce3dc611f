package server

import (
	"net/url"
	"strings"
)

type builtinOrigin struct {
	scheme  string
	host    string
	portAny bool
}

var builtinOrigins = []builtinOrigin{
	{scheme: "http", host: "localhost", portAny: true},
	{scheme: "http", host: "127.0.0.1", portAny: true},
	{scheme: "https", host: "localhost", portAny: true},
}

func isBuiltinOrigin(u *url.URL) bool {
	if u == nil {
		return false
	}
	hostname := u.Hostname()
	port := u.Port()
	for _, b := range builtinOrigins {
		if u.Scheme != b.scheme {
			continue
		}
		if hostname != b.host {
			continue
		}
		if !b.portAny && port != "" {
			continue
		}
		return true
	}
	return false
}

// originChecker accepts the built-in local origins plus the configured ones.
// Configured entries compare by scheme and host, case-insensitively.
func originChecker(allowed []string) func(string) bool {
	extra := make(map[string]struct{}, len(allowed))
	for _, raw := range allowed {
		if u, err := url.Parse(strings.TrimSpace(raw)); err == nil && u.Host != "" {
			extra[strings.ToLower(u.Scheme+"://"+u.Host)] = struct{}{}
		}
	}
	return func(origin string) bool {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if isBuiltinOrigin(u) {
			return true
		}
		_, ok := extra[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
