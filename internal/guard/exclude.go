package guard

import (
	"path"
	"strings"
)

// DefaultExcludedPaths are static asset and framework paths that bypass inspection.
var DefaultExcludedPaths = []string{
	"/_next/static/",
	"/_next/image",
	"/favicon.ico",
}

// Exclusions is a list of path prefixes that bypass the guard.
type Exclusions []string

// Excluded reports whether urlPath bypasses inspection. A path that only
// matches a prefix before dot segments are resolved is not excluded, so
// "/_next/static/../../admin" is still inspected.
func (e Exclusions) Excluded(urlPath string) bool {
	if len(e) == 0 || urlPath == "" {
		return false
	}

	cleaned := path.Clean(urlPath)
	if strings.HasSuffix(urlPath, "/") && cleaned != "/" {
		cleaned += "/"
	}

	for _, prefix := range e {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(urlPath, prefix) && strings.HasPrefix(cleaned, prefix) {
			return true
		}
	}
	return false
}
