// Package guard implements the request filter that runs in front of the
// web application. Every inbound request has its URL and headers checked
// against the suspicious pattern set exactly once, before any routing, and
// is either passed through untouched or rejected with a fixed 403 response.
//
// The guard keeps no state between requests. Decisions are computed fresh
// from the request snapshot and the active pattern set.
package guard

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sellerdesk/edgeguard/internal/security"
)

// Denial response bodies.
const (
	BodySuspiciousRequest = "Forbidden: Suspicious request detected"
	BodySuspiciousHeader  = "Forbidden: Suspicious header detected"
)

// Block reasons.
const (
	ReasonNone            = ""
	ReasonURL             = "url"
	ReasonHeader          = "header"
	ReasonInspectionError = "inspection_error"
)

// Outcome is the binary result of an inspection.
type Outcome int

const (
	Allow Outcome = iota
	Block
)

func (o Outcome) String() string {
	if o == Block {
		return "block"
	}
	return "allow"
}

// Decision is the verdict for one request.
type Decision struct {
	Outcome Outcome
	// Status and Body are set for blocked requests only.
	Status int
	Body   string
	Reason string
	// Header is the lowercased name of the header that triggered a header block.
	Header string
	// Suspicious lists matched pattern labels for URL blocks.
	Suspicious []string
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// Checker validates request content. *security.Validator implements it.
type Checker interface {
	ValidateRequestURL(rawURL string) security.ValidationResult
	ContainsSuspiciousPattern(value string) bool
}

// Recorder observes guard decisions. It must not block.
type Recorder interface {
	ObserveDecision(outcome, reason string, elapsed time.Duration)
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger used for block entries.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Guard) {
		g.log = logger
	}
}

// WithRecorder sets the decision recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Guard) {
		g.recorder = r
	}
}

// WithExcludedPaths sets the path prefixes that bypass the guard in Middleware.
func WithExcludedPaths(prefixes []string) Option {
	return func(g *Guard) {
		g.exclusions = Exclusions(append([]string(nil), prefixes...))
	}
}

// Guard inspects inbound requests. It is safe for concurrent use.
type Guard struct {
	checker    Checker
	log        zerolog.Logger
	recorder   Recorder
	exclusions Exclusions
	requestID  func(*http.Request) string
}

// WithRequestID sets the function the middleware uses to fill
// InboundRequest.ID. The ID comes from the caller, never from the
// inspected headers.
func WithRequestID(fn func(*http.Request) string) Option {
	return func(g *Guard) {
		g.requestID = fn
	}
}

// New creates a Guard. By default it does not log or record decisions and
// uses DefaultExcludedPaths.
func New(checker Checker, opts ...Option) *Guard {
	g := &Guard{
		checker:    checker,
		log:        zerolog.Nop(),
		exclusions: Exclusions(DefaultExcludedPaths),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Inspect decides whether req may proceed. It never panics; a failure
// inside the checker blocks the request.
func (g *Guard) Inspect(req InboundRequest) (decision Decision) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			g.log.Error().
				Str("url", TruncateURL(req.URL)).
				Str("ip", ClientIP(req.Headers)).
				Str("panic", fmt.Sprint(rec)).
				Msg("Request inspection failed, blocking request")
			decision = Decision{
				Outcome: Block,
				Status:  http.StatusForbidden,
				Body:    BodySuspiciousRequest,
				Reason:  ReasonInspectionError,
			}
		}
		g.observe(decision, time.Since(start))
	}()

	return g.inspect(req)
}

func (g *Guard) inspect(req InboundRequest) Decision {
	result := g.checker.ValidateRequestURL(req.URL)
	if !result.Safe {
		userAgent := req.Header("user-agent")
		if userAgent == "" {
			userAgent = UnknownClient
		}
		withRequestID(g.log.Warn(), req).
			Str("url", TruncateURL(req.URL)).
			Strs("suspiciousParts", result.Suspicious).
			Str("ip", ClientIP(req.Headers)).
			Str("userAgent", userAgent).
			Msg("Blocked suspicious request")

		return Decision{
			Outcome:    Block,
			Status:     http.StatusForbidden,
			Body:       BodySuspiciousRequest,
			Reason:     ReasonURL,
			Suspicious: result.Suspicious,
		}
	}

	for name, values := range req.Headers {
		if g.headerSuspicious(name, values) {
			withRequestID(g.log.Warn(), req).
				Str("header", name).
				Str("url", TruncateURL(req.URL)).
				Str("ip", ClientIP(req.Headers)).
				Msg("Blocked suspicious header")

			return Decision{
				Outcome: Block,
				Status:  http.StatusForbidden,
				Body:    BodySuspiciousHeader,
				Reason:  ReasonHeader,
				Header:  name,
			}
		}
	}

	return Decision{Outcome: Allow}
}

func withRequestID(e *zerolog.Event, req InboundRequest) *zerolog.Event {
	if req.ID != "" {
		return e.Str("requestId", req.ID)
	}
	return e
}

func (g *Guard) headerSuspicious(name string, values []string) bool {
	if g.checker.ContainsSuspiciousPattern(name) {
		return true
	}
	for _, value := range values {
		if g.checker.ContainsSuspiciousPattern(value) {
			return true
		}
	}
	return false
}

func (g *Guard) observe(d Decision, elapsed time.Duration) {
	if g.recorder == nil {
		return
	}
	g.recorder.ObserveDecision(d.Outcome.String(), d.Reason, elapsed)
}

// Middleware returns next wrapped by the guard. Excluded paths skip
// inspection; blocked requests never reach next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.exclusions.Excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		snap := Snapshot(r)
		if g.requestID != nil {
			snap.ID = g.requestID(r)
		}
		decision := g.Inspect(snap)
		if decision.Allowed() {
			next.ServeHTTP(w, r)
			return
		}

		writeDenial(w, decision)
	})
}

func writeDenial(w http.ResponseWriter, d Decision) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(d.Status)
	_, _ = w.Write([]byte(d.Body))
}
