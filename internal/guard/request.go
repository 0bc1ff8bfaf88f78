package guard

import (
	"net/http"
	"strings"
)

// UnknownClient is reported when no forwarding header names a client.
const UnknownClient = "unknown"

// MaxLoggedURLLength is the number of characters of a URL kept in log entries.
const MaxLoggedURLLength = 200

// InboundRequest is an immutable snapshot of one request taken at the edge.
type InboundRequest struct {
	// URL is the full request URL including the raw query string.
	URL string
	// Headers maps lowercased header names to their submitted values.
	Headers map[string][]string
	// ID correlates log entries with the rest of the request's lifecycle.
	// It is not inspected.
	ID string
}

// Header returns the first value of the named header, or "".
// name must be lowercase.
func (r InboundRequest) Header(name string) string {
	if values := r.Headers[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// Snapshot captures r as an InboundRequest.
// The URL keeps the request target exactly as it appeared on the request line.
func Snapshot(r *http.Request) InboundRequest {
	headers := make(map[string][]string, len(r.Header)+1)
	for key, values := range r.Header {
		headers[strings.ToLower(key)] = values
	}
	if _, ok := headers["host"]; !ok && r.Host != "" {
		headers["host"] = []string{r.Host}
	}

	return InboundRequest{URL: fullURL(r), Headers: headers}
}

func fullURL(r *http.Request) string {
	target := r.RequestURI
	if target == "" {
		target = r.URL.RequestURI()
	}
	// Absolute-form targets already carry scheme and host.
	if strings.Contains(target, "://") && !strings.HasPrefix(target, "/") {
		return target
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + target
}

// ClientIP derives the client address from x-forwarded-for and x-real-ip,
// in that order. It returns UnknownClient when neither carries a value.
// The result is advisory and only used for logging.
func ClientIP(headers map[string][]string) string {
	for _, name := range []string{"x-forwarded-for", "x-real-ip"} {
		for _, value := range headers[name] {
			for _, part := range strings.Split(value, ",") {
				if ip := strings.TrimSpace(part); ip != "" {
					return ip
				}
			}
		}
	}
	return UnknownClient
}

// TruncateURL returns the first MaxLoggedURLLength characters of s.
func TruncateURL(s string) string {
	if len(s) <= MaxLoggedURLLength {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxLoggedURLLength {
			return s[:i]
		}
		n++
	}
	return s
}
