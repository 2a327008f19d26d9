package edge

import (
	"fmt"
	"net/url"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// Explanation describes how a URL would be routed.
type Explanation struct {
	URL            string                `json:"url"`
	Session        bool                  `json:"session"`
	DemoSession    bool                  `json:"demo_session"`
	Classification domain.Classification `json:"classification"`
	Decision       domain.Decision       `json:"decision"`
	Warning        string                `json:"warning,omitempty"`
}

// Explain routes rawURL as if it had been requested with the given cookie
// presence. Cookie values are placeholders; verification is not applied.
func Explain(d Decider, rawURL string, session, demo bool) (Explanation, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Explanation{}, &domain.DomainError{
			Err:     fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err),
			Code:    CodeBadRequest,
			Message: fmt.Sprintf("cannot parse %q", rawURL),
		}
	}
	if u.Scheme == "" || u.Host == "" {
		return Explanation{}, &domain.DomainError{
			Err:     domain.ErrInvalidRequest,
			Code:    CodeBadRequest,
			Message: fmt.Sprintf("%q is not an absolute URL", rawURL),
			Details: map[string]any{"url": rawURL},
		}
	}

	rc := domain.RequestContext{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     u.Path,
		RawQuery: u.RawQuery,
	}
	if session {
		rc.SessionCookie = "explain"
	}
	if demo {
		rc.DemoCookie = "explain"
	}

	decision := d.Route(rc)
	exp := Explanation{
		URL:            rc.URL(),
		Session:        session,
		DemoSession:    demo,
		Classification: decision.Classification,
		Decision:       decision,
	}
	if !decision.Classification.Recognized() {
		exp.Warning = fmt.Sprintf("%v: %s", domain.ErrUnknownHost, u.Hostname())
	}
	return exp, nil
}
