// Package httpproxy is the agent's local reverse proxy: it forwards
// every request on its listen port to the configured remote API host,
// preserving method, path, query, headers, and body.
//
// Grounded on the teacher's reverse-proxy pattern in
// perkeep-perkeep/pkg/server/app/app.go (an httputil.ReverseProxy
// wrapped in a Handler that adjusts the request before proxying),
// adapted from Camlistore's per-app backend URL to a single
// platform-wide upstream with a per-request override header. Routing
// uses the teacher's chi router (pkg/controlplane/api/router.go)
// rather than a bare ServeMux.
package httpproxy

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/pennsieve/agent/internal/logger"
	"github.com/pennsieve/agent/internal/version"
	"github.com/pennsieve/agent/pkg/registry"
	"github.com/pennsieve/agent/pkg/statushub"
)

// overrideHeader lets a single request's destination host be
// overridden without reconfiguring the whole proxy.
const overrideHeader = "X-Ps-Api-Location"

// droppedHeaders are stripped from the incoming request before it is
// forwarded: Host and Connection are hop-by-hop/destination-specific
// and must not be replayed against the upstream, and the override
// header itself is consumed rather than forwarded.
var droppedHeaders = []string{"Host", "Connection", overrideHeader}

// Proxy is the local HTTP reverse proxy.
type Proxy struct {
	upstream *url.URL
	sender   registry.EventSender
	handler  http.Handler
}

// New constructs a Proxy forwarding to upstream by default.
func New(upstream string, sender registry.EventSender) (*Proxy, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}

	p := &Proxy{upstream: u, sender: sender}
	rp := &httputil.ReverseProxy{
		Director: p.direct,
	}
	r := chi.NewRouter()
	r.Get("/health", p.serveHealth)
	r.Handle("/*", p.wrapped(rp))
	p.handler = r
	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

func (p *Proxy) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// wrapped emits the IncomingProxyRequest event for every request
// actually forwarded (the local /health path never reaches this).
func (p *Proxy) wrapped(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.sendEvent(statushub.NewIncomingProxyRequestEvent(r.Method, r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

// direct rewrites an incoming request onto the resolved destination,
// per spec.md §4.7: preserve method/path/query/headers/body, drop
// Host/Connection/the override header, honor the override header for
// this one request, and stamp a synthetic User-Agent.
func (p *Proxy) direct(r *http.Request) {
	target := p.upstream
	if override := r.Header.Get(overrideHeader); override != "" {
		if u, err := url.Parse(override); err == nil {
			target = u
		} else {
			logger.Warn("ignoring malformed proxy override header", "value", override, "error", err)
		}
	}

	r.URL.Scheme = target.Scheme
	r.URL.Host = target.Host
	r.Host = target.Host

	for _, h := range droppedHeaders {
		r.Header.Del(h)
	}
	r.Header.Set("User-Agent", version.UserAgent())
}

func (p *Proxy) sendEvent(event any) {
	if p.sender != nil {
		p.sender.SendEvent(event)
	}
}

// Run listens on addr until ctx is cancelled.
func Run(ctx context.Context, addr string, p *Proxy) error {
	srv := &http.Server{Addr: addr, Handler: p}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = srv.Close()
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
