// Package proxy forwards allowed requests to the upstream web application.
package proxy

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/sellerdesk/edgeguard/internal/middleware"
	"github.com/sellerdesk/edgeguard/internal/security"
)

// BodyBadGateway is returned when the upstream cannot be reached.
const BodyBadGateway = "Bad Gateway"

// ErrInvalidUpstream is returned for upstream URLs that are not absolute http(s) URLs.
var ErrInvalidUpstream = errors.New("upstream URL must be an absolute http or https URL")

// Proxy is a reverse proxy to a single upstream.
type Proxy struct {
	upstream *url.URL
	rp       *httputil.ReverseProxy
	log      zerolog.Logger
}

// New creates a Proxy forwarding to upstreamURL.
func New(upstreamURL string, logger zerolog.Logger) (*Proxy, error) {
	target, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream URL: %w", err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUpstream, upstreamURL)
	}

	p := &Proxy{
		upstream: target,
		log:      logger.With().Str("component", "proxy").Logger(),
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			// Append to the chain reported by earlier hops instead of replacing it.
			if prior := pr.In.Header["X-Forwarded-For"]; len(prior) > 0 {
				pr.Out.Header["X-Forwarded-For"] = prior
			}
			pr.SetXForwarded()
			if id := middleware.RequestIDFromContext(pr.In.Context()); id != "" {
				pr.Out.Header.Set(middleware.RequestIDHeader, id)
			}
			// The application routes on the host the client asked for.
			pr.Out.Host = pr.In.Host
		},
		Transport:     transport,
		FlushInterval: -1,
		ErrorHandler:  p.handleError,
		ErrorLog:      stdlog.New(p.log, "", 0),
	}
	return p, nil
}

// Upstream returns the upstream base URL.
func (p *Proxy) Upstream() *url.URL {
	u := *p.upstream
	return &u
}

// ServeHTTP forwards r to the upstream.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody is left to answer.
		p.log.Debug().Str("path", r.URL.Path).Msg("Client canceled request before upstream responded")
		w.WriteHeader(499)
		return
	}

	p.log.Error().
		Err(err).
		Str("method", r.Method).
		Str("url", security.RedactURL(r.URL.RequestURI())).
		Str("upstream", p.upstream.Host).
		Msg("Upstream request failed")

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(BodyBadGateway))
}
