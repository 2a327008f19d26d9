package edge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/calendis/calendis-edge/pkg/domain"
	"github.com/calendis/calendis-edge/pkg/telemetry"
)

// PathnameHeader carries the pathname the client asked for.
const PathnameHeader = "X-Pathname"

// Decider produces routing decisions. *routing.Store and *routing.Router
// both satisfy it.
type Decider interface {
	Route(req domain.RequestContext) domain.Decision
	Classify(host string) domain.Classification
	CookieNames() (session, demo string)
}

// SessionVerifier checks a session cookie against the identity provider.
type SessionVerifier interface {
	VerifySession(ctx context.Context, cookie string) (domain.Session, error)
}

// Options configures the data plane handler.
type Options struct {
	Router       Decider
	Upstream     *url.URL
	PreserveHost bool
	Transport    http.RoundTripper
	// TrustForwardedHost makes X-Forwarded-Host win over Host. Enable it only
	// behind a load balancer that rewrites Host.
	TrustForwardedHost bool
	// TrustForwardedProto takes the scheme from X-Forwarded-Proto instead of
	// the connection. Only http and https are accepted.
	TrustForwardedProto bool
	// Verifier, when set, is consulted for every session cookie. A cookie it
	// rejects is cleared and the request is routed as anonymous.
	Verifier SessionVerifier
	Security *SecurityPolicy
	Manifest *Manifest
	Metrics  *Metrics
	Logger   *slog.Logger
}

// routed is what the handler hands to the reverse proxy through the request
// context.
type routed struct {
	decision domain.Decision
	request  domain.RequestContext
}

// Handler is the data plane: it routes every request and executes the
// decision.
type Handler struct {
	router        Decider
	proxy         *httputil.ReverseProxy
	trustFwdHost  bool
	trustFwdProto bool
	verifier      SessionVerifier
	security      *SecurityPolicy
	manifest      *Manifest
	metrics       *Metrics
	logger        *slog.Logger
}

// NewHandler validates opts and builds the handler.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Router == nil {
		return nil, errors.New("edge: router is required")
	}
	if opts.Upstream == nil || opts.Upstream.Scheme == "" || opts.Upstream.Host == "" {
		return nil, errors.New("edge: absolute upstream URL is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		router:        opts.Router,
		trustFwdHost:  opts.TrustForwardedHost,
		trustFwdProto: opts.TrustForwardedProto,
		verifier:      opts.Verifier,
		security:      opts.Security,
		manifest:      opts.Manifest,
		metrics:       opts.Metrics,
		logger:        logger,
	}
	h.proxy = h.newReverseProxy(opts.Upstream, opts.PreserveHost, opts.Transport)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	sessionCookie, demoCookie := h.router.CookieNames()
	rc := h.requestContext(r, sessionCookie, demoCookie)

	if r.URL.Path == ManifestPath && h.manifest != nil {
		cls := h.router.Classify(rc.Host)
		h.security.Apply(w.Header(), cls.Environment)
		h.manifest.Serve(w, cls)
		return
	}

	if h.verifier != nil && rc.HasSession() {
		rc = h.verifySession(ctx, w, rc, sessionCookie)
	}

	d := h.router.Route(rc)
	telemetry.RecordRoutingEvent(trace.SpanFromContext(ctx), d, rc.HasSession(), rc.HasDemoSession())

	requestID, _ := RequestIDFromContext(ctx)
	h.logger.Debug("request routed",
		"request_id", requestID,
		"host", rc.Host,
		"path", rc.Path,
		"environment", d.Classification.Environment,
		"subdomain", d.Classification.Subdomain,
		"kind", d.Kind,
		"rule", d.Rule,
	)

	defer func() {
		elapsed := time.Since(start)
		h.metrics.RecordDecision(d, elapsed)
		telemetry.RecordDecision(ctx, telemetry.DecisionMetrics{Decision: d, Duration: elapsed})
	}()

	if d.Kind == domain.DecisionRedirect {
		h.redirect(w, rc, d)
		return
	}

	ctx = context.WithValue(ctx, routedContextKey, routed{decision: d, request: rc})
	h.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func (h *Handler) redirect(w http.ResponseWriter, rc domain.RequestContext, d domain.Decision) {
	header := w.Header()
	h.security.Apply(header, d.Classification.Environment)
	if d.ForwardPathname {
		header.Set(PathnameHeader, rc.Path)
	}
	header.Set("Location", d.Location)
	header.Set("Cache-Control", "no-store")
	w.WriteHeader(d.Status)
}

// verifySession drops a session cookie the verifier rejects and tells the
// browser to forget it.
func (h *Handler) verifySession(ctx context.Context, w http.ResponseWriter, rc domain.RequestContext, cookieName string) domain.RequestContext {
	_, err := h.verifier.VerifySession(ctx, rc.SessionCookie)
	h.metrics.RecordSessionVerification(err == nil)
	if err == nil {
		return rc
	}

	h.logger.Debug("session cookie rejected", "host", rc.Host, "error", err)
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   rc.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	})
	rc.SessionCookie = ""
	return rc
}

// requestContext extracts the routing input from r. X-Forwarded-Proto sets
// the scheme only when trusted; X-Forwarded-Host is used when Host is missing
// or trusted.
func (h *Handler) requestContext(r *http.Request, sessionCookie, demoCookie string) domain.RequestContext {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if h.trustFwdProto {
		switch proto := strings.ToLower(firstValue(r.Header.Get("X-Forwarded-Proto"))); proto {
		case "http", "https":
			scheme = proto
		}
	}

	host := r.Host
	if fwd := firstValue(r.Header.Get("X-Forwarded-Host")); fwd != "" && (host == "" || h.trustFwdHost) {
		host = fwd
	}
	if host == "" {
		host = r.URL.Host
	}

	rc := domain.RequestContext{
		Scheme:   scheme,
		Host:     host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
	if sessionCookie != "" {
		if c, err := r.Cookie(sessionCookie); err == nil {
			rc.SessionCookie = c.Value
		}
	}
	if demoCookie != "" {
		if c, err := r.Cookie(demoCookie); err == nil {
			rc.DemoCookie = c.Value
		}
	}
	return rc
}

func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
