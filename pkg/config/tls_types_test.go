package config

import (
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendis/calendis-edge/pkg/domain"
)

func TestParseTLSVersion(t *testing.T) {
	v, err := ParseTLSVersion("")
	require.NoError(t, err)
	assert.Equal(t, TLSVersion12, v)

	v, err = ParseTLSVersion(" 1.3 ")
	require.NoError(t, err)
	assert.Equal(t, TLSVersion13, v)

	_, err = ParseTLSVersion("1.0")
	assert.Error(t, err)
}

func TestTLSConfig_Validate(t *testing.T) {
	disabled := &TLSConfig{}
	assert.NoError(t, disabled.Validate())

	missingKey := &TLSConfig{Enabled: true, CertFile: "cert.pem"}
	err := missingKey.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfigInvalid))

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "key_file", cfgErr.Field)
	assert.NotEmpty(t, cfgErr.Suggestions)

	badVersion := &TLSConfig{Enabled: true, CertFile: "c", KeyFile: "k", MinVersion: "1.1"}
	require.ErrorAs(t, badVersion.Validate(), &cfgErr)
	assert.Equal(t, "min_version", cfgErr.Field)
}

func TestTLSConfig_ServerTLSDisabled(t *testing.T) {
	var c *TLSConfig
	out, err := c.ServerTLS()
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestTLSConfig_ServerTLSMissingFiles(t *testing.T) {
	c := &TLSConfig{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	_, err := c.ServerTLS()
	assert.ErrorContains(t, err, "load certificate pair")
}

func TestUpstreamTLSConfig(t *testing.T) {
	c := &UpstreamTLSConfig{ServerName: "frontend.internal", MinVersion: "1.3"}
	require.NoError(t, c.Validate())

	out, err := c.ClientTLS()
	require.NoError(t, err)
	assert.Equal(t, "frontend.internal", out.ServerName)
	assert.Equal(t, uint16(tls.VersionTLS13), out.MinVersion)

	conflict := &UpstreamTLSConfig{InsecureSkipVerify: true, CAFile: "ca.pem"}
	assert.ErrorIs(t, conflict.Validate(), domain.ErrConfigInvalid)
}

func TestUpstreamTLSConfig_EmptyCABundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	c := &UpstreamTLSConfig{CAFile: path}
	_, err := c.ClientTLS()
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}
