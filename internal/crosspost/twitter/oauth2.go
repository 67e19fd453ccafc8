package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

const (
	authorizeURL = "https://twitter.com/i/oauth2/authorize"
	tokenURL     = "https://api.twitter.com/2/oauth2/token"
	meEndpoint   = "https://api.twitter.com/2/users/me"
)

// OAuth2Config builds the PKCE authorization-code configuration for the
// login flow. Twitter's token endpoint authenticates the client with basic
// auth.
func OAuth2Config(cfg AppConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   authorizeURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthCodeURL returns the authorize URL carrying the S256 challenge for the
// given verifier.
func AuthCodeURL(conf *oauth2.Config, state, verifier string) string {
	return conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code (plus the PKCE verifier) for an
// OAuth2Credential with an absolute expiry.
func Exchange(ctx context.Context, conf *oauth2.Config, code, verifier string) (OAuth2Credential, error) {
	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return OAuth2Credential{}, fmt.Errorf("token exchange: %w", err)
	}
	return OAuth2Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// Refresh exchanges the stored refresh token for a new access/refresh pair.
// The returned expiry is absolute, recomputed from the provider's relative
// expires_in; when the provider omits a new refresh token the old one is
// retained.
func Refresh(ctx context.Context, conf *oauth2.Config, cred OAuth2Credential) (OAuth2Credential, error) {
	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return OAuth2Credential{}, fmt.Errorf("refresh token: %w", err)
	}

	next := OAuth2Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	return next, nil
}

// UserInfo fetches the authenticated user's id, username and display name
// from the v2 users/me endpoint.
func UserInfo(ctx context.Context, cred OAuth2Credential) (id, username, name string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meEndpoint, nil)
	if err != nil {
		return "", "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", "", fmt.Errorf("users/me: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", "", "", fmt.Errorf("users/me: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", "", fmt.Errorf("users/me: status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", "", fmt.Errorf("users/me: decode: %w", err)
	}
	return payload.Data.ID, payload.Data.Username, payload.Data.Name, nil
}
