// Package origin decides which browser origins may talk to the relay.
package origin

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Policy is the Origin allow-list for both the HTTP API and the signaling
// WebSocket.
//
// An empty Allowed list means same-host only. "*" allows any origin. Any other
// entry must be a normalized origin (scheme://host[:port]).
type Policy struct {
	Allowed []string
}

// Check reports whether r may proceed. Requests without an Origin header are
// not browser cross-origin requests and are always allowed; normalized is
// empty for them.
func (p Policy) Check(r *http.Request) (normalized string, ok bool) {
	header := strings.TrimSpace(r.Header.Get("Origin"))
	if header == "" {
		return "", true
	}
	normalized, host, ok := NormalizeHeader(header)
	if !ok {
		return "", false
	}
	return normalized, IsAllowed(normalized, host, r.Host, p.Allowed)
}

// CheckOrigin adapts the policy to websocket.Upgrader.CheckOrigin.
func (p Policy) CheckOrigin(r *http.Request) bool {
	_, ok := p.Check(r)
	return ok
}

// NormalizeHeader validates a browser Origin header and returns
// scheme://host[:port] plus the host[:port] part. Default ports are dropped.
// The opaque origin "null" is returned as-is with an empty host.
func NormalizeHeader(header string) (normalized string, host string, ok bool) {
	trimmed := strings.TrimSpace(header)
	switch trimmed {
	case "":
		return "", "", false
	case "null":
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" || (u.Path != "" && u.Path != "/") {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = normalizeHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// IsAllowed matches a normalized origin against the allow-list, or against
// the request Host when the list is empty. The scheme is not compared for
// same-host checks since TLS is often terminated in front of the relay.
func IsAllowed(normalized, originHost, requestHost string, allowed []string) bool {
	if len(allowed) > 0 {
		for _, a := range allowed {
			if a == "*" || a == normalized {
				return true
			}
		}
		return false
	}

	scheme, _, found := strings.Cut(normalized, "://")
	if !found || (scheme != "http" && scheme != "https") {
		return false
	}
	reqHost, ok := normalizeHost(requestHost, scheme)
	return ok && reqHost == originHost
}

func normalizeHost(raw, scheme string) (string, bool) {
	hostname, port, ok := splitHostPort(strings.ToLower(strings.TrimSpace(raw)))
	if !ok || hostname == "" {
		return "", false
	}

	var n uint64
	if port != "" {
		var err error
		n, err = strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
	}
	if (scheme == "http" && n == 80) || (scheme == "https" && n == 443) {
		n = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if n != 0 {
		host += ":" + strconv.FormatUint(n, 10)
	}
	return host, true
}

// splitHostPort splits host[:port]; IPv6 literals must be bracketed and are
// returned without brackets.
func splitHostPort(raw string) (hostname, port string, ok bool) {
	if raw == "" {
		return "", "", false
	}
	if strings.HasPrefix(raw, "[") {
		end := strings.IndexByte(raw, ']')
		if end < 0 {
			return "", "", false
		}
		hostname, rest := raw[1:end], raw[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if len(rest) < 2 || rest[0] != ':' {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(raw, ":") {
	case 0:
		return raw, "", true
	case 1:
		hostname, port, _ = strings.Cut(raw, ":")
		if hostname == "" || port == "" {
			return "", "", false
		}
		return hostname, port, true
	default:
		return "", "", false
	}
}
