// Package patterns loads and compiles the suspicious request pattern set.
//
// The set is versioned configuration data: an ordered list of labelled
// substring or regex descriptors, each scoped to request URLs, header
// keys/values, or both. A compiled Set is immutable and safe for concurrent use.
package patterns

import (
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultPatternsFS embed.FS

// Pattern kinds.
const (
	KindSubstring = "substring"
	KindRegex     = "regex"
)

// Pattern targets.
const (
	TargetURL    = "url"
	TargetHeader = "header"
)

// Document validation errors.
var (
	ErrMissingVersion = errors.New("pattern document has no version")
	ErrNoPatterns     = errors.New("pattern document has no patterns")
	ErrEmptyLabel     = errors.New("pattern label cannot be empty")
	ErrEmptyValue     = errors.New("pattern value cannot be empty")
	ErrDuplicateLabel = errors.New("duplicate pattern label")
	ErrUnknownKind    = errors.New("unknown pattern kind")
	ErrUnknownTarget  = errors.New("unknown pattern target")
	ErrNoTargets      = errors.New("pattern has no targets")
	ErrInvalidRegex   = errors.New("invalid pattern regex")
)

// Pattern is a single descriptor as written in the pattern document.
type Pattern struct {
	Label         string   `yaml:"label"`
	Kind          string   `yaml:"kind"`
	Value         string   `yaml:"value"`
	Targets       []string `yaml:"targets"`
	CaseSensitive bool     `yaml:"case_sensitive"`
}

// Document is the on-disk form of a pattern set.
type Document struct {
	Version  string    `yaml:"version"`
	Patterns []Pattern `yaml:"patterns"`
}

type matcher struct {
	label         string
	substr        string
	caseSensitive bool
	re            *regexp.Regexp
}

func (m *matcher) match(raw, lower string) bool {
	if m.re != nil {
		return m.re.MatchString(raw)
	}
	if m.caseSensitive {
		return strings.Contains(raw, m.substr)
	}
	return strings.Contains(lower, m.substr)
}

// Set is a compiled pattern set.
type Set struct {
	version string
	url     []matcher
	header  []matcher
	size    int
}

// Version returns the document version the set was compiled from.
func (s *Set) Version() string {
	return s.version
}

// Len returns the number of patterns in the set.
func (s *Set) Len() int {
	return s.size
}

// URLCount returns the number of patterns applied to URLs.
func (s *Set) URLCount() int {
	return len(s.url)
}

// HeaderCount returns the number of patterns applied to header keys and values.
func (s *Set) HeaderCount() int {
	return len(s.header)
}

// MatchURL returns the labels of every URL pattern found in value,
// in document order. Returns nil when nothing matches.
func (s *Set) MatchURL(value string) []string {
	lower := strings.ToLower(value)
	var matched []string
	for i := range s.url {
		if s.url[i].match(value, lower) {
			matched = append(matched, s.url[i].label)
		}
	}
	return matched
}

// MatchHeader reports whether any header pattern is found in value.
// It stops at the first match.
func (s *Set) MatchHeader(value string) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for i := range s.header {
		if s.header[i].match(value, lower) {
			return true
		}
	}
	return false
}

// Parse decodes and compiles a YAML pattern document.
// Any invalid descriptor rejects the whole document.
func Parse(data []byte) (*Set, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return Compile(doc)
}

// Compile validates a document and builds its matchers.
func Compile(doc Document) (*Set, error) {
	if strings.TrimSpace(doc.Version) == "" {
		return nil, ErrMissingVersion
	}
	if len(doc.Patterns) == 0 {
		return nil, ErrNoPatterns
	}

	set := &Set{version: doc.Version, size: len(doc.Patterns)}
	seen := make(map[string]struct{}, len(doc.Patterns))

	for i, p := range doc.Patterns {
		if p.Label == "" {
			return nil, fmt.Errorf("pattern %d: %w", i, ErrEmptyLabel)
		}
		if _, dup := seen[p.Label]; dup {
			return nil, fmt.Errorf("pattern %q: %w", p.Label, ErrDuplicateLabel)
		}
		seen[p.Label] = struct{}{}

		if p.Value == "" {
			return nil, fmt.Errorf("pattern %q: %w", p.Label, ErrEmptyValue)
		}
		if len(p.Targets) == 0 {
			return nil, fmt.Errorf("pattern %q: %w", p.Label, ErrNoTargets)
		}

		m := matcher{label: p.Label, caseSensitive: p.CaseSensitive}
		switch p.Kind {
		case KindSubstring, "":
			if p.CaseSensitive {
				m.substr = p.Value
			} else {
				m.substr = strings.ToLower(p.Value)
			}
		case KindRegex:
			re, err := regexp.Compile(p.Value)
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w: %v", p.Label, ErrInvalidRegex, err)
			}
			m.re = re
		default:
			return nil, fmt.Errorf("pattern %q: %w: %q", p.Label, ErrUnknownKind, p.Kind)
		}

		for _, target := range p.Targets {
			switch strings.ToLower(target) {
			case TargetURL:
				set.url = append(set.url, m)
			case TargetHeader:
				set.header = append(set.header, m)
			default:
				return nil, fmt.Errorf("pattern %q: %w: %q", p.Label, ErrUnknownTarget, target)
			}
		}
	}

	return set, nil
}

var (
	defaultSet  *Set
	defaultOnce sync.Once
)

// Default returns the compiled embedded pattern set.
// It panics if the embedded document is invalid, which is a build defect.
func Default() *Set {
	defaultOnce.Do(func() {
		data, err := defaultPatternsFS.ReadFile("patterns.yaml")
		if err != nil {
			panic(fmt.Sprintf("patterns: read embedded document: %v", err))
		}
		set, err := Parse(data)
		if err != nil {
			panic(fmt.Sprintf("patterns: embedded document is invalid: %v", err))
		}
		defaultSet = set
	})
	return defaultSet
}
