package edge

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/calendis/calendis-edge/pkg/config"
	"github.com/calendis/calendis-edge/pkg/domain"
	"github.com/calendis/calendis-edge/pkg/telemetry"
)

// NewTransport builds the upstream round tripper from configuration. Client
// spans are emitted for every upstream request.
func NewTransport(cfg config.UpstreamConfig) (http.RoundTripper, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("edge: unexpected default transport %T", http.DefaultTransport)
	}
	transport := base.Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	transport.MaxIdleConnsPerHost = 64
	transport.IdleConnTimeout = 90 * time.Second

	if cfg.TLS != nil {
		tlsConfig, err := cfg.TLS.ClientTLS()
		if err != nil {
			return nil, fmt.Errorf("edge: upstream tls: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
	}

	return otelhttp.NewTransport(transport), nil
}

func (h *Handler) newReverseProxy(upstream *url.URL, preserveHost bool, transport http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			rt, _ := pr.In.Context().Value(routedContextKey).(routed)

			switch rt.decision.Kind {
			case domain.DecisionRewrite:
				pr.Out.URL.Path = rt.decision.Path
				pr.Out.URL.RawPath = ""
			case domain.DecisionNotFound:
				pr.Out.URL.Path = rt.decision.Path
				pr.Out.URL.RawPath = ""
				pr.Out.URL.RawQuery = ""
			}

			pr.SetURL(upstream)
			pr.SetXForwarded()
			if rt.request.Host != "" {
				pr.Out.Header.Set("X-Forwarded-Host", rt.request.Host)
			}
			if rt.request.Scheme != "" {
				pr.Out.Header.Set("X-Forwarded-Proto", rt.request.Scheme)
			}
			if preserveHost {
				pr.Out.Host = pr.In.Host
			}
			if rt.decision.ForwardPathname {
				pr.Out.Header.Set(PathnameHeader, rt.request.Path)
			}
		},
		Transport:      transport,
		ModifyResponse: h.modifyResponse,
		ErrorHandler:   h.proxyError,
	}
}

func (h *Handler) modifyResponse(resp *http.Response) error {
	rt, _ := resp.Request.Context().Value(routedContextKey).(routed)
	h.security.Apply(resp.Header, rt.decision.Classification.Environment)

	if rt.decision.Kind == domain.DecisionNotFound && resp.StatusCode == http.StatusOK {
		resp.StatusCode = http.StatusNotFound
		resp.Status = fmt.Sprintf("%d %s", http.StatusNotFound, http.StatusText(http.StatusNotFound))
	}
	return nil
}

func (h *Handler) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	rt, _ := r.Context().Value(routedContextKey).(routed)
	cls := rt.decision.Classification
	requestID, _ := RequestIDFromContext(r.Context())

	h.logger.Warn("upstream request failed",
		"request_id", requestID,
		"host", rt.request.Host,
		"path", r.URL.Path,
		"rule", rt.decision.Rule,
		"error", err,
	)
	h.metrics.RecordUpstreamError(cls)
	telemetry.RecordUpstreamError(r.Context(), cls)

	h.security.Apply(w.Header(), cls.Environment)
	writeError(w, r, http.StatusBadGateway, CodeUpstreamUnreachable, domain.ErrUpstreamUnreachable.Error())
}
