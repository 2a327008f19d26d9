package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// Auth verifies session cookies.
type Auth interface {
	VerifySessionCookie(ctx context.Context, cookie string) (domain.Session, error)
}

// Documents is the document database client.
type Documents interface {
	Ping(ctx context.Context) error
	Close() error
}

// Storage is the file storage client.
type Storage interface {
	Ping(ctx context.Context) error
}

// Provider creates backend clients. Each method is called at most once per
// Service.
type Provider interface {
	Auth(ctx context.Context) (Auth, error)
	Documents(ctx context.Context) (Documents, error)
	Storage(ctx context.Context) (Storage, error)
}

// ProviderFactory builds a Provider from privileged credentials.
type ProviderFactory func(ctx context.Context, creds Credentials) (Provider, error)

// Service is the backend handle passed to the components that need it.
type Service struct {
	mode     Mode
	public   PublicConfig
	provider Provider
	logger   *slog.Logger

	authOnce sync.Once
	auth     Auth
	authErr  error

	docsOnce sync.Once
	docsMu   sync.Mutex // guards docs for Close
	docs     Documents
	docsErr  error

	storageOnce sync.Once
	storage     Storage
	storageErr  error
}

// New loads the environment required by mode and constructs the Service.
// Missing variables fail immediately with domain.ErrMissingEnv.
func New(ctx context.Context, mode Mode, factory ProviderFactory, logger *slog.Logger) (*Service, error) {
	public, err := LoadPublicConfig()
	if err != nil {
		return nil, err
	}

	if !mode.Privileged() {
		return NewService(mode, public, nil, logger)
	}

	creds, err := LoadCredentials(mode)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("backend: no provider factory for %s mode", mode)
	}
	provider, err := factory(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("backend: initialise provider: %w", err)
	}
	return NewService(mode, public, provider, logger)
}

// NewService wires a Service around an existing provider. Privileged modes
// require a provider.
func NewService(mode Mode, public PublicConfig, provider Provider, logger *slog.Logger) (*Service, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode.Privileged() && provider == nil {
		return nil, fmt.Errorf("%w: %s mode requires a backend provider", domain.ErrConfigInvalid, mode)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		mode:     mode,
		public:   public,
		provider: provider,
		logger:   logger.With("component", "backend", "mode", string(mode)),
	}, nil
}

// Mode returns the mode the service was built for.
func (s *Service) Mode() Mode {
	return s.mode
}

// PublicConfig returns the browser-safe configuration.
func (s *Service) PublicConfig() PublicConfig {
	return s.public
}

// Auth returns the authentication client.
func (s *Service) Auth(ctx context.Context) (Auth, error) {
	if !s.mode.Privileged() {
		return nil, fmt.Errorf("%w: auth requires server credentials", domain.ErrUnsupportedMode)
	}
	s.authOnce.Do(func() {
		s.auth, s.authErr = s.provider.Auth(ctx)
		s.logInit("auth", s.authErr)
	})
	return s.auth, s.authErr
}

// Documents returns the document database client.
func (s *Service) Documents(ctx context.Context) (Documents, error) {
	switch s.mode {
	case ModeClient:
		return nil, fmt.Errorf("%w: documents require server credentials", domain.ErrUnsupportedMode)
	case ModeDemo:
		return nil, fmt.Errorf("%w: documents", domain.ErrDisabledInDemo)
	}
	s.docsOnce.Do(func() {
		docs, err := s.provider.Documents(ctx)
		s.docsMu.Lock()
		s.docs, s.docsErr = docs, err
		s.docsMu.Unlock()
		s.logInit("documents", err)
	})
	return s.docs, s.docsErr
}

// Storage returns the file storage client.
func (s *Service) Storage(ctx context.Context) (Storage, error) {
	switch s.mode {
	case ModeClient:
		return nil, fmt.Errorf("%w: storage requires server credentials", domain.ErrUnsupportedMode)
	case ModeDemo:
		return nil, fmt.Errorf("%w: storage", domain.ErrDisabledInDemo)
	}
	s.storageOnce.Do(func() {
		s.storage, s.storageErr = s.provider.Storage(ctx)
		s.logInit("storage", s.storageErr)
	})
	return s.storage, s.storageErr
}

// VerifySession resolves a session cookie to its identity. Blank cookies and
// rejected cookies return domain.ErrSessionInvalid.
func (s *Service) VerifySession(ctx context.Context, cookie string) (domain.Session, error) {
	if strings.TrimSpace(cookie) == "" {
		return domain.Session{}, fmt.Errorf("%w: empty cookie", domain.ErrSessionInvalid)
	}
	auth, err := s.Auth(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	session, err := auth.VerifySessionCookie(ctx, cookie)
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			return domain.Session{}, err
		}
		return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrSessionInvalid, err)
	}
	return session, nil
}

// Ready checks that every accessor available in the current mode can reach
// its service.
func (s *Service) Ready(ctx context.Context) error {
	if !s.mode.Privileged() {
		return nil
	}
	if _, err := s.Auth(ctx); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if s.mode == ModeDemo {
		return nil
	}
	docs, err := s.Documents(ctx)
	if err != nil {
		return fmt.Errorf("documents: %w", err)
	}
	if err := docs.Ping(ctx); err != nil {
		return fmt.Errorf("documents: %w", err)
	}
	store, err := s.Storage(ctx)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

// Close releases clients that were initialised. It is safe to call while
// another goroutine initialises them.
func (s *Service) Close() error {
	s.docsMu.Lock()
	docs := s.docs
	s.docsMu.Unlock()
	if docs != nil {
		return docs.Close()
	}
	return nil
}

func (s *Service) logInit(what string, err error) {
	if err != nil {
		s.logger.Error("backend client initialisation failed", "client", what, "error", err)
		return
	}
	s.logger.Debug("backend client initialised", "client", what)
}
