package backend

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// PublicPrefix is prepended to every public variable name.
const PublicPrefix = "NEXT_PUBLIC_"

// PublicConfig is the browser-safe backend configuration, read from
// NEXT_PUBLIC_* variables.
type PublicConfig struct {
	Environment       string `env:"ENVIRONMENT" envDefault:"development" json:"environment"`
	APIKey            string `env:"FIREBASE_API_KEY,required,notEmpty" json:"apiKey"`
	AuthDomain        string `env:"FIREBASE_AUTH_DOMAIN,required,notEmpty" json:"authDomain"`
	ProjectID         string `env:"FIREBASE_PROJECT_ID,required,notEmpty" json:"projectId"`
	StorageBucket     string `env:"FIREBASE_STORAGE_BUCKET" json:"storageBucket,omitempty"`
	MessagingSenderID string `env:"FIREBASE_MESSAGING_SENDER_ID" json:"messagingSenderId,omitempty"`
	AppID             string `env:"FIREBASE_APP_ID,required,notEmpty" json:"appId"`
	MeasurementID     string `env:"FIREBASE_MEASUREMENT_ID" json:"measurementId,omitempty"`
	FunctionURL       string `env:"FIREBASE_FUNCTION_URL" json:"functionUrl,omitempty"`
}

// Credentials are the privileged service account values. They are never
// available in client mode.
type Credentials struct {
	ProjectID     string `env:"FIREBASE_PROJECT_ID,required,notEmpty"`
	ClientEmail   string `env:"FIREBASE_CLIENT_EMAIL,required,notEmpty"`
	PrivateKey    string `env:"FIREBASE_PRIVATE_KEY,required,notEmpty"`
	StorageBucket string `env:"FIREBASE_STORAGE_BUCKET"`
}

// LoadPublicConfig reads the public configuration from the environment.
func LoadPublicConfig() (PublicConfig, error) {
	var cfg PublicConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: PublicPrefix}); err != nil {
		return PublicConfig{}, fmt.Errorf("%w: %w", domain.ErrMissingEnv, err)
	}
	return cfg, nil
}

// LoadCredentials reads the service account from the environment. Private
// keys stored with escaped newlines are unescaped.
func LoadCredentials(mode Mode) (Credentials, error) {
	if !mode.Privileged() {
		return Credentials{}, fmt.Errorf("%w: private credentials are not available in %s mode", domain.ErrUnsupportedMode, mode)
	}

	creds, err := env.ParseAs[Credentials]()
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", domain.ErrMissingEnv, err)
	}
	creds.PrivateKey = strings.ReplaceAll(creds.PrivateKey, `\n`, "\n")
	return creds, nil
}
