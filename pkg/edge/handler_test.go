package edge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendis/calendis-edge/pkg/config"
	"github.com/calendis/calendis-edge/pkg/domain"
	"github.com/calendis/calendis-edge/pkg/routing"
)

type seenRequest struct {
	Host     string
	Path     string
	RawQuery string
	Header   http.Header
}

type upstream struct {
	*httptest.Server
	mu     sync.Mutex
	seen   []seenRequest
	status int
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{status: http.StatusOK}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.seen = append(u.seen, seenRequest{Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery, Header: r.Header.Clone()})
		status := u.status
		u.mu.Unlock()

		w.Header().Set("X-Frame-Options", "ALLOWALL")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, "page:"+r.URL.Path)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) last(t *testing.T) seenRequest {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.seen, "upstream was not called")
	return u.seen[len(u.seen)-1]
}

func (u *upstream) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.seen)
}

type stubVerifier struct {
	valid map[string]bool
}

func (s stubVerifier) VerifySession(_ context.Context, cookie string) (domain.Session, error) {
	if s.valid[cookie] {
		return domain.Session{UID: "uid-" + cookie}, nil
	}
	return domain.Session{}, domain.ErrSessionInvalid
}

type handlerFixture struct {
	handler *Handler
	metrics *Metrics
}

func newTestHandler(t *testing.T, target string, mutate func(*Options)) handlerFixture {
	t.Helper()

	router, err := routing.NewRouter(routing.DefaultSettings())
	require.NoError(t, err)
	manifest, err := NewManifest(config.DefaultManifest())
	require.NoError(t, err)
	u, err := url.Parse(target)
	require.NoError(t, err)

	metrics := NewMetrics()
	opts := Options{
		Router:       routing.NewStore(router),
		Upstream:     u,
		PreserveHost: true,
		Security:     NewSecurityPolicy(config.DefaultSecurity()),
		Manifest:     manifest,
		Metrics:      metrics,
	}
	if mutate != nil {
		mutate(&opts)
	}

	h, err := NewHandler(opts)
	require.NoError(t, err)
	return handlerFixture{handler: h, metrics: metrics}
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	RequestID(h).ServeHTTP(rec, req)
	return rec
}

func TestNewHandler_Validation(t *testing.T) {
	u, _ := url.Parse("http://127.0.0.1:3000")
	store := routing.NewStore(nil)

	tests := []struct {
		name string
		opts Options
	}{
		{name: "no router", opts: Options{Upstream: u}},
		{name: "no upstream", opts: Options{Router: store}},
		{name: "relative upstream", opts: Options{Router: store, Upstream: &url.URL{Path: "/x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHandler(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestHandler_AnonymousAppRootRedirectsToLogin(t *testing.T) {
	up := newUpstream(t)
	f := newTestHandler(t, up.URL, nil)

	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "https://app.calendis.fr/", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://app.calendis.fr/login?redirect=https%3A%2F%2Fapp.calendis.fr%2F", rec.Header().Get("Location"))
	assert.Equal(t, "/", rec.Header().Get(PathnameHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotContains(t, rec.Header().Get("Content-Security-Policy"), "'unsafe-eval'")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Zero(t, up.calls())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.decisionsTotal.WithLabelValues("production", "app", "redirect", "app-login-required")))
}

func TestHandler_AuthenticatedAppPageIsRewritten(t *testing.T) {
	up := newUpstream(t)
	f := newTestHandler(t, up.URL, func(o *Options) {
		o.TrustForwardedProto = true
	})

	req := httptest.NewRequest(http.MethodGet, "http://app.calendis.fr/calendar/week?day=3", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set(RequestIDHeader, "req-42")
	req.AddCookie(&http.Cookie{Name: "user", Value: "tok"})

	rec := serve(f.handler, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page:/app/calendar/week", rec.Body.String())

	seen := up.last(t)
	assert.Equal(t, "/app/calendar/week", seen.Path)
	assert.Equal(t, "day=3", seen.RawQuery)
	assert.Equal(t, "app.calendis.fr", seen.Host)
	assert.Equal(t, "app.calendis.fr", seen.Header.Get("X-Forwarded-Host"))
	assert.Equal(t, "https", seen.Header.Get("X-Forwarded-Proto"))
	assert.Equal(t, "/calendar/week", seen.Header.Get(PathnameHeader))
	assert.Equal(t, "req-42", seen.Header.Get(RequestIDHeader))

	// Upstream framing headers are replaced.
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestHandler_ForwardedHostClassifiesRequest(t *testing.T) {
	up := newUpstream(t)
	f := newTestHandler(t, up.URL, func(o *Options) {
		o.PreserveHost = false
		o.TrustForwardedHost = true
		o.TrustForwardedProto = true
	})

	req := httptest.NewRequest(http.MethodGet, "http://10.0.0.7/login", nil)
	req.Header.Set("X-Forwarded-Host", "app.calendis.fr, lb.internal")
	req.Header.Set("X-Forwarded-Proto", "https")

	rec := serve(f.handler, req)

	require.Equal(t, http.StatusOK, rec.Code)
	seen := up.last(t)
	assert.Equal(t, "/app/login", seen.Path)
	assert.Equal(t, "app.calendis.fr", seen.Header.Get("X-Forwarded-Host"))
	assert.Equal(t, strings.TrimPrefix(up.URL, "http://"), seen.Host)
}

func TestHandler_HostWinsOverUntrustedForwardedHost(t *testing.T) {
	up := newUpstream(t)
	f := newTestHandler(t, up.URL, nil)

	req := httptest.NewRequest(http.MethodGet, "https://www.calendis.fr/login", nil)
	req.Header.Set("X-Forwarded-Host", "app.calendis.fr")

	rec := serve(f.handler, req)

	require.Equal(t, http.StatusOK, rec.Code)
	seen := up.last(t)
	assert.Equal(t, "/login", seen.Path)
	assert.Equal(t, "www.calendis.fr", seen.Header.Get("X-Forwarded-Host"))
}

func TestHandler_ForwardedProto(t *testing.T) {
	tests := []struct {
		name     string
		trusted  bool
		proto    string
		location string
		upstream string
	}{
		{
			name:     "untrusted header is ignored",
			proto:    "https",
			location: "http://app.calendis.fr/login?redirect=http%3A%2F%2Fapp.calendis.fr%2Fcalendar",
			upstream: "http",
		},
		{
			name:     "trusted header sets scheme",
			trusted:  true,
			proto:    "HTTPS, http",
			location: "https://app.calendis.fr/login?redirect=https%3A%2F%2Fapp.calendis.fr%2Fcalendar",
			upstream: "https",
		},
		{
			name:     "trusted header with foreign scheme is ignored",
			trusted:  true,
			proto:    "javascript",
			location: "http://app.calendis.fr/login?redirect=http%3A%2F%2Fapp.calendis.fr%2Fcalendar",
			upstream: "http",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t)
			f := newTestHandler(t, up.URL, func(o *Options) {
				o.TrustForwardedProto = tt.trusted
			})

			req := httptest.NewRequest(http.MethodGet, "http://app.calendis.fr/calendar", nil)
			req.Header.Set("X-Forwarded-Proto", tt.proto)
			rec := serve(f.handler, req)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))

			req = httptest.NewRequest(http.MethodGet, "http://www.calendis.fr/pricing", nil)
			req.Header.Set("X-Forwarded-Proto", tt.proto)
			rec = serve(f.handler, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.upstream, up.last(t).Header.Get("X-Forwarded-Proto"))
		})
	}
}

func TestHandler_CookieNamesFollowReload(t *testing.T) {
	up := newUpstream(t)
	store := routing.NewStore(nil)
	f := newTestHandler(t, up.URL, func(o *Options) {
		o.Router = store
	})

	settings := routing.DefaultSettings()
	first, err := routing.NewRouter(settings)
	require.NoError(t, err)
	store.Swap(first)

	req := httptest.NewRequest(http.MethodGet, "https://app.calendis.fr/calendar", nil)
	req.AddCookie(&http.Cookie{Name: "__session", Value: "tok"})
	rec := serve(f.handler, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	settings.SessionCookie = "__session"
	renamed, err := routing.NewRouter(settings)
	require.NoError(t, err)
	store.Swap(renamed)

	rec = serve(f.handler, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/app/calendar", up.last(t).Path)
}

func TestHandler_MarketingPassesThrough(t *testing.T) {
	up := newUpstream(t)
	f := newTestHandler(t, up.URL, nil)

	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "https://www.calendis.fr/pricing?plan=pro", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	seen := up.last(t)
	assert.Equal(t, "/pricing", seen.Path)
	assert.Equal(t, "plan=pro", seen.RawQuery)
	assert.Empty(t, seen.Header.Get(PathnameHeader))
}

func TestHandler_NotFoundForcesStatus(t *testing.T) {
	up := newUpstream(t)
	f := newTestHandler(t, up.URL, nil)

	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "https://shop.calendis.fr/cart?id=1", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "page:/404", rec.Body.String())
	seen := up.last(t)
	assert.Equal(t, "/404", seen.Path)
	assert.Empty(t, seen.RawQuery)
}

func TestHandler_UpstreamUnreachable(t *testing.T) {
	up := newUpstream(t)
	target := up.URL
	up.Close()

	f := newTestHandler(t, target, nil)
	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "https://www.calendis.fr/", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	var body domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeUpstreamUnreachable, body.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.upstreamErrors.WithLabelValues("production", "root")))
}

func TestHandler_SessionVerification(t *testing.T) {
	up := newUpstream(t)
	f := newTestHandler(t, up.URL, func(o *Options) {
		o.Verifier = stubVerifier{valid: map[string]bool{"good": true}}
	})

	t.Run("valid cookie is authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "https://app.calendis.fr/calendar", nil)
		req.AddCookie(&http.Cookie{Name: "user", Value: "good"})

		rec := serve(f.handler, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Values("Set-Cookie"))
		assert.Equal(t, "/app/calendar", up.last(t).Path)
	})

	t.Run("rejected cookie is cleared and treated as anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "https://app.calendis.fr/calendar", nil)
		req.AddCookie(&http.Cookie{Name: "user", Value: "forged"})

		rec := serve(f.handler, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://app.calendis.fr/login?"))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "user", cookies[0].Name)
		assert.Equal(t, -1, cookies[0].MaxAge)
		assert.True(t, cookies[0].Secure)
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.sessionVerifications.WithLabelValues("valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.sessionVerifications.WithLabelValues("invalid")))
}

func TestHandler_Manifest(t *testing.T) {
	up := newUpstream(t)
	f := newTestHandler(t, up.URL, nil)

	decode := func(rec *httptest.ResponseRecorder) map[string]any {
		t.Helper()
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var m map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
		return m
	}

	app := decode(serve(f.handler, httptest.NewRequest(http.MethodGet, "https://app.calendis.fr"+ManifestPath, nil)))
	assert.Equal(t, "Calendis", app["name"])
	assert.Equal(t, "standalone", app["display"])
	assert.NotEmpty(t, app["icons"])

	root := decode(serve(f.handler, httptest.NewRequest(http.MethodGet, "https://www.calendis.fr"+ManifestPath, nil)))
	assert.Empty(t, root["name"])
	assert.Empty(t, root["icons"])

	assert.Zero(t, up.calls())
}

func TestHandler_RouterSwapIsObserved(t *testing.T) {
	up := newUpstream(t)
	store := routing.NewStore(nil)
	f := newTestHandler(t, up.URL, func(o *Options) { o.Router = store })

	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "https://www.calendis.fr/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	settings := routing.DefaultSettings()
	r, err := routing.NewRouter(settings)
	require.NoError(t, err)
	store.Swap(r)

	rec = serve(f.handler, httptest.NewRequest(http.MethodGet, "https://www.calendis.fr/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewTransport(t *testing.T) {
	rt, err := NewTransport(config.UpstreamConfig{URL: "https://origin.internal"})
	require.NoError(t, err)
	assert.NotNil(t, rt)

	_, err = NewTransport(config.UpstreamConfig{
		URL: "https://origin.internal",
		TLS: &config.UpstreamTLSConfig{CAFile: "/does/not/exist.pem"},
	})
	assert.ErrorContains(t, err, "upstream tls")
}
