// Package auth acquires Microsoft Graph access tokens for drive uploads and
// mailbox reads.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
	"golang.org/x/sync/singleflight"

	exporterrors "github.com/hussain-magshield/magshield-data-pipeline/internal/errors"
)

// Mode selects the OAuth2 grant.
type Mode string

const (
	// ModeRefreshToken redeems a stored refresh token as a public client.
	ModeRefreshToken Mode = "refresh_token"
	// ModeClientCredentials authenticates as the application itself.
	ModeClientCredentials Mode = "client_credentials"
)

// DefaultDelegatedScopes are requested in refresh-token mode.
var DefaultDelegatedScopes = []string{"Files.ReadWrite.All", "Mail.Read", "User.Read"}

// DefaultAppScopes are requested in client-credentials mode.
var DefaultAppScopes = []string{"https://graph.microsoft.com/.default"}

// Config holds the Graph credentials.
type Config struct {
	Mode         Mode     `json:"mode" yaml:"mode"`
	TenantID     string   `json:"tenant_id" yaml:"tenant_id"`
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret" yaml:"client_secret"`
	RefreshToken string   `json:"refresh_token" yaml:"refresh_token"`
	Scopes       []string `json:"scopes" yaml:"scopes"`

	// TokenURL overrides the tenant token endpoint.
	TokenURL string `json:"token_url" yaml:"token_url"`
}

// Validate reports missing credentials for the selected mode.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return exporterrors.NewAuthError(exporterrors.CodeMissingCredentials, "client_id is required", nil)
	}
	if c.TenantID == "" && c.TokenURL == "" {
		return exporterrors.NewAuthError(exporterrors.CodeMissingCredentials, "tenant_id is required", nil)
	}
	switch c.Mode {
	case ModeRefreshToken, "":
		if c.RefreshToken == "" {
			return exporterrors.NewAuthError(exporterrors.CodeMissingCredentials, "refresh_token is required in refresh_token mode", nil)
		}
	case ModeClientCredentials:
		if c.ClientSecret == "" {
			return exporterrors.NewAuthError(exporterrors.CodeMissingCredentials, "client_secret is required in client_credentials mode", nil)
		}
	default:
		return exporterrors.NewAuthError(exporterrors.CodeMissingCredentials, "unknown auth mode "+string(c.Mode), nil)
	}
	return nil
}

// Session hands out access tokens. The underlying token source is built
// once, on first use, and refreshes itself when the token expires.
type Session struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	source oauth2.TokenSource
	group  singleflight.Group
}

// NewSession validates cfg and returns a lazy session. httpClient may be nil.
func NewSession(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeRefreshToken
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{cfg: cfg, http: httpClient, logger: logger}, nil
}

// Token returns a valid access token. Concurrent callers share one
// acquisition.
func (s *Session) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	v, err, _ := s.group.Do("token", func() (any, error) {
		tok, err := s.tokenSource().Token()
		if err != nil {
			return nil, err
		}
		return tok.AccessToken, nil
	})
	if err != nil {
		s.logger.Error("token acquisition failed", "mode", s.cfg.Mode, "error", err)
		return "", exporterrors.NewAuthError(exporterrors.CodeTokenAcquisition, "acquiring graph token", err)
	}
	return v.(string), nil
}

func (s *Session) tokenSource() oauth2.TokenSource {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source != nil {
		return s.source
	}

	// the source outlives any single request, so it gets its own context
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, s.http)
	endpoint := s.endpoint()

	switch s.cfg.Mode {
	case ModeClientCredentials:
		cc := &clientcredentials.Config{
			ClientID:     s.cfg.ClientID,
			ClientSecret: s.cfg.ClientSecret,
			TokenURL:     endpoint.TokenURL,
			Scopes:       scopesOr(s.cfg.Scopes, DefaultAppScopes),
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		s.source = cc.TokenSource(ctx)
	default:
		oc := &oauth2.Config{
			ClientID:     s.cfg.ClientID,
			ClientSecret: s.cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopesOr(s.cfg.Scopes, DefaultDelegatedScopes),
		}
		s.source = oc.TokenSource(ctx, &oauth2.Token{RefreshToken: s.cfg.RefreshToken})
	}

	s.logger.Info("graph token source initialized", "mode", s.cfg.Mode)
	return s.source
}

func (s *Session) endpoint() oauth2.Endpoint {
	endpoint := microsoft.AzureADEndpoint(s.cfg.TenantID)
	if s.cfg.TokenURL != "" {
		endpoint.TokenURL = s.cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	return endpoint
}

func scopesOr(scopes, fallback []string) []string {
	if len(scopes) > 0 {
		return scopes
	}
	return fallback
}
