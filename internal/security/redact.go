package security

import (
	"net/url"
	"strings"
)

// RedactURL removes secrets from a request URL before it is written to the
// access log. It redacts user credentials and query parameters whose names
// look like credentials, including Telegram Web App launch data.
// URLs without secrets are returned unchanged.
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}

	redacted := false
	if parsed.User != nil {
		parsed.User = url.User("[REDACTED]")
		redacted = true
	}

	if parsed.RawQuery != "" {
		query, changed := redactQueryParams(parsed.Query())
		if changed {
			parsed.RawQuery = query.Encode()
			redacted = true
		}
	}

	if !redacted {
		return rawURL
	}
	return parsed.String()
}

// sensitiveParamPatterns are query parameter names that likely contain secrets
var sensitiveParamPatterns = []string{
	"password",
	"passwd",
	"pwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"api-key",
	"auth",
	"bearer",
	"credential",
	"key",
	"session",
	"sessionid",
	"sid",
	"private",
	"initdata",
	"tgwebappdata",
	"hash",
}

func redactQueryParams(params url.Values) (url.Values, bool) {
	changed := false
	for key := range params {
		keyLower := strings.ToLower(key)
		for _, pattern := range sensitiveParamPatterns {
			if strings.Contains(keyLower, pattern) {
				params[key] = []string{"[REDACTED]"}
				changed = true
				break
			}
		}
	}
	return params, changed
}
