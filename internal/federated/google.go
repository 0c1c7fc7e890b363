package federated

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Google OAuth2 and OpenID endpoints.
const (
	GoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL    = "https://oauth2.googleapis.com/token"
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// GoogleConfig configures a GoogleProvider. Empty URLs select Google's endpoints.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
}

// GoogleProvider implements Provider with Google's OpenID Connect userinfo.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewGoogleProvider returns a provider, or ErrNotConfigured when the client id,
// secret or redirect URL is missing.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, ErrNotConfigured
	}
	authURL, tokenURL, userInfoURL := cfg.AuthURL, cfg.TokenURL, cfg.UserInfoURL
	if authURL == "" {
		authURL = GoogleAuthURL
	}
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	if userInfoURL == "" {
		userInfoURL = GoogleUserInfoURL
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: userInfoURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades code for a token and reads the account's subject, email and name.
// Accounts whose email Google has not verified are rejected.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	if strings.TrimSpace(code) == "" {
		return Identity{}, fmt.Errorf("%w: empty code", ErrExchangeFailed)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: exchange code: %w", ErrExchangeFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return Identity{}, err
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: user info request: %w", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: user info status: %s", ErrExchangeFailed, resp.Status)
	}
	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Identity{}, fmt.Errorf("%w: decode user info: %w", ErrExchangeFailed, err)
	}
	if info.Sub == "" || info.Email == "" {
		return Identity{}, fmt.Errorf("%w: user info lacks subject or email", ErrExchangeFailed)
	}
	if !info.EmailVerified {
		return Identity{}, fmt.Errorf("%w: email not verified", ErrExchangeFailed)
	}
	name := strings.TrimSpace(info.Name)
	if name == "" {
		name, _, _ = strings.Cut(info.Email, "@")
	}
	return Identity{Subject: "google:" + info.Sub, Email: info.Email, DisplayName: name}, nil
}
