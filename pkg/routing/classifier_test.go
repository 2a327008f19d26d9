package routing

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/calendis/calendis-edge/pkg/domain"
)

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(DefaultSettings())

	tests := []struct {
		host string
		env  domain.Environment
		sub  domain.Subdomain
	}{
		{"www.calendis.fr", domain.EnvProduction, domain.SubdomainRoot},
		{"calendis.fr", domain.EnvProduction, domain.SubdomainRoot},
		{"APP.Calendis.FR:443", domain.EnvProduction, domain.SubdomainApp},
		{"app.calendis.fr.", domain.EnvProduction, domain.SubdomainApp},
		{"demo.calendis.fr", domain.EnvProduction, domain.SubdomainDemo},
		{"shop.calendis.fr", domain.EnvProduction, domain.SubdomainNone},
		{"a.app.calendis.fr", domain.EnvProduction, domain.SubdomainNone},
		{"app.calendis.fr, proxy.internal", domain.EnvProduction, domain.SubdomainApp},
		{"calendis-web.vercel.app", domain.EnvTesting, domain.SubdomainPreview},
		{"calendis-web-git-main-team.vercel.app", domain.EnvTesting, domain.SubdomainPreview},
		{"app.localhost:3000", domain.EnvDevelopment, domain.SubdomainApp},
		{"demo.localhost", domain.EnvDevelopment, domain.SubdomainDemo},
		{"localhost:3000", domain.EnvDevelopment, domain.SubdomainRoot},
		{"127.0.0.1:3000", domain.EnvDevelopment, domain.SubdomainNone},
		{"[::1]:3000", domain.EnvDevelopment, domain.SubdomainNone},
		{"example.com", domain.EnvDevelopment, domain.SubdomainNone},
		{"", domain.EnvDevelopment, domain.SubdomainNone},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got := c.Classify(tt.host)
			assert.Equal(t, domain.Classification{Environment: tt.env, Subdomain: tt.sub}, got)
		})
	}
}

func TestClassifier_ExplicitHostsWin(t *testing.T) {
	s := DefaultSettings()
	prod := s.Environments[domain.EnvProduction]
	prod.Hosts[domain.SubdomainDemo] = append(prod.Hosts[domain.SubdomainDemo], "sandbox.calendis.fr")
	s.Environments[domain.EnvProduction] = prod

	c := NewClassifier(s)
	assert.Equal(t, domain.SubdomainDemo, c.Classify("sandbox.calendis.fr").Subdomain)
}

func TestClassifier_ProductionPrecedesDevelopment(t *testing.T) {
	s := DefaultSettings()
	dev := s.Environments[domain.EnvDevelopment]
	dev.Hosts[domain.SubdomainApp] = append(dev.Hosts[domain.SubdomainApp], "app.calendis.fr")
	s.Environments[domain.EnvDevelopment] = dev

	c := NewClassifier(s)
	assert.Equal(t, domain.EnvProduction, c.Classify("app.calendis.fr").Environment)
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "app.calendis.fr", NormalizeHost(" App.Calendis.fr:8443 "))
	assert.Equal(t, "::1", NormalizeHost("[::1]:80"))
	assert.Equal(t, "xn--dmo-bma.calendis.fr", NormalizeHost("démo.calendis.fr"))
	assert.Equal(t, "", NormalizeHost(" , other"))
}

func TestProperty_ClassifyIsStable(t *testing.T) {
	c := NewClassifier(DefaultSettings())

	rapid.Check(t, func(t *rapid.T) {
		host := rapid.String().Draw(t, "host")
		if c.Classify(host) != c.Classify(host) {
			t.Fatalf("classification of %q is not stable", host)
		}
	})
}

func TestProperty_ClassifyIgnoresCaseAndPort(t *testing.T) {
	c := NewClassifier(DefaultSettings())

	rapid.Check(t, func(t *rapid.T) {
		label := rapid.SampledFrom([]string{"www", "app", "demo", "shop", "api"}).Draw(t, "label")
		base := rapid.SampledFrom([]string{"calendis.fr", "localhost", "vercel.app"}).Draw(t, "base")
		host := label + "." + base
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		upper := rapid.Bool().Draw(t, "upper")

		variant := host
		if upper {
			variant = strings.ToUpper(variant)
		}
		variant = variant + ":" + strconv.Itoa(port)

		if c.Classify(host) != c.Classify(variant) {
			t.Fatalf("%q and %q classified differently", host, variant)
		}
		if c.Classify(host) != c.Classify(NormalizeHost(variant)) {
			t.Fatalf("normalizing %q changed its classification", variant)
		}
	})
}
