package routing

import (
	"net"
	"strings"

	"golang.org/x/net/idna"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// Classifier maps hostnames to an (environment, subdomain) pair.
//
// Precedence, first match wins:
//  1. explicit hosts, production first, then testing, then development;
//  2. hosts under the production domain;
//  3. hosts under the preview platform suffix (testing);
//  4. hosts under the development domain;
//  5. anything else is development/none.
type Classifier struct {
	exact       map[string]domain.Classification
	production  string
	testing     string
	development string
}

// NewClassifier indexes the host tables of the settings.
func NewClassifier(s Settings) *Classifier {
	c := &Classifier{exact: make(map[string]domain.Classification)}

	for _, env := range domain.Environments {
		table, ok := s.Environments[env]
		if !ok {
			continue
		}
		for _, sub := range []domain.Subdomain{domain.SubdomainRoot, domain.SubdomainApp, domain.SubdomainDemo, domain.SubdomainPreview} {
			for _, h := range table.Hosts[sub] {
				key := NormalizeHost(h)
				if _, taken := c.exact[key]; taken {
					continue
				}
				c.exact[key] = domain.Classification{Environment: env, Subdomain: sub}
			}
		}
	}

	c.production = NormalizeHost(s.Environments[domain.EnvProduction].Domain)
	c.testing = NormalizeHost(s.Environments[domain.EnvTesting].Domain)
	c.development = NormalizeHost(s.Environments[domain.EnvDevelopment].Domain)

	return c
}

// Classify returns the classification of a raw host value. It accepts Host
// header values (with or without port) and X-Forwarded-Host lists.
func (c *Classifier) Classify(host string) domain.Classification {
	h := NormalizeHost(host)
	if h == "" {
		return domain.Classification{Environment: domain.EnvDevelopment, Subdomain: domain.SubdomainNone}
	}

	if cls, ok := c.exact[h]; ok {
		return cls
	}

	if under(h, c.production) {
		return domain.Classification{Environment: domain.EnvProduction, Subdomain: labelSubdomain(h, c.production)}
	}
	if under(h, c.testing) {
		return domain.Classification{Environment: domain.EnvTesting, Subdomain: domain.SubdomainPreview}
	}
	if under(h, c.development) {
		return domain.Classification{Environment: domain.EnvDevelopment, Subdomain: labelSubdomain(h, c.development)}
	}

	return domain.Classification{Environment: domain.EnvDevelopment, Subdomain: domain.SubdomainNone}
}

// NormalizeHost lower-cases a host, strips the port and any trailing dot and
// converts internationalized names to their ASCII form. Only the first entry
// of a comma separated forwarded list is kept.
func NormalizeHost(host string) string {
	h := strings.TrimSpace(host)
	if i := strings.IndexByte(h, ','); i >= 0 {
		h = strings.TrimSpace(h[:i])
	}
	if hostname, _, err := net.SplitHostPort(h); err == nil {
		h = hostname
	}
	h = strings.Trim(h, "[]")
	h = strings.TrimRight(strings.ToLower(h), ".")
	if h == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(h); err == nil {
		h = ascii
	}
	return h
}

func under(host, base string) bool {
	if base == "" {
		return false
	}
	return host == base || strings.HasSuffix(host, "."+base)
}

// labelSubdomain selects the subdomain from the single label in front of
// base. Deeper names are not recognized.
func labelSubdomain(host, base string) domain.Subdomain {
	if host == base {
		return domain.SubdomainRoot
	}
	label := strings.TrimSuffix(host, "."+base)
	if strings.Contains(label, ".") {
		return domain.SubdomainNone
	}
	switch label {
	case "www":
		return domain.SubdomainRoot
	case "app":
		return domain.SubdomainApp
	case "demo":
		return domain.SubdomainDemo
	default:
		return domain.SubdomainNone
	}
}
