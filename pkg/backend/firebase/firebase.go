// Package firebase implements backend.Provider on the Firebase Admin SDK.
package firebase

import (
	"context"
	"errors"
	"fmt"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/goccy/go-json"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/calendis/calendis-edge/pkg/backend"
	"github.com/calendis/calendis-edge/pkg/domain"
)

const tokenURI = "https://oauth2.googleapis.com/token"

type serviceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// Provider creates Firebase clients for one app.
type Provider struct {
	app *fb.App
}

var _ backend.Provider = (*Provider)(nil)

// NewProvider builds a Firebase app from service account credentials.
func NewProvider(ctx context.Context, creds backend.Credentials) (backend.Provider, error) {
	raw, err := credentialsJSON(creds)
	if err != nil {
		return nil, err
	}

	app, err := fb.NewApp(ctx, &fb.Config{
		ProjectID:     creds.ProjectID,
		StorageBucket: creds.StorageBucket,
	}, option.WithCredentialsJSON(raw))
	if err != nil {
		return nil, fmt.Errorf("firebase: new app: %w", err)
	}
	return &Provider{app: app}, nil
}

func credentialsJSON(creds backend.Credentials) ([]byte, error) {
	raw, err := json.Marshal(serviceAccount{
		Type:        "service_account",
		ProjectID:   creds.ProjectID,
		ClientEmail: creds.ClientEmail,
		PrivateKey:  creds.PrivateKey,
		TokenURI:    tokenURI,
	})
	if err != nil {
		return nil, fmt.Errorf("firebase: encode credentials: %w", err)
	}
	return raw, nil
}

// Auth returns the session verifier.
func (p *Provider) Auth(ctx context.Context) (backend.Auth, error) {
	client, err := p.app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: auth client: %w", err)
	}
	return &authClient{client: client}, nil
}

// Documents returns the Firestore client.
func (p *Provider) Documents(ctx context.Context) (backend.Documents, error) {
	client, err := p.app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: firestore client: %w", err)
	}
	return &documents{
		ping: func(ctx context.Context) error {
			_, err := client.Collections(ctx).Next()
			if err != nil && !errors.Is(err, iterator.Done) {
				return err
			}
			return nil
		},
		close: client.Close,
	}, nil
}

// Storage returns a handle on the default bucket.
func (p *Provider) Storage(ctx context.Context) (backend.Storage, error) {
	client, err := p.app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: storage client: %w", err)
	}
	bucket, err := client.DefaultBucket()
	if err != nil {
		return nil, fmt.Errorf("firebase: default bucket: %w", err)
	}
	return &storage{
		ping: func(ctx context.Context) error {
			_, err := bucket.Attrs(ctx)
			return err
		},
	}, nil
}

// cookieVerifier is the part of *auth.Client the edge uses.
type cookieVerifier interface {
	VerifySessionCookie(ctx context.Context, cookie string) (*auth.Token, error)
}

type authClient struct {
	client cookieVerifier
}

func (a *authClient) VerifySessionCookie(ctx context.Context, cookie string) (domain.Session, error) {
	token, err := a.client.VerifySessionCookie(ctx, cookie)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrSessionInvalid, err)
	}
	return domain.Session{UID: token.UID, Claims: token.Claims}, nil
}

type documents struct {
	ping  func(context.Context) error
	close func() error
}

func (d *documents) Ping(ctx context.Context) error { return d.ping(ctx) }
func (d *documents) Close() error                   { return d.close() }

type storage struct {
	ping func(context.Context) error
}

func (s *storage) Ping(ctx context.Context) error { return s.ping(ctx) }
