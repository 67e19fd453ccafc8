package misskey

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost"
)

const (
	appName = "SNSMultiPost"

	// note creation plus drive writes for image upload
	miAuthPermissions = "write:notes,write:drive"
)

// AuthSession is one pending MiAuth flow: a random session id bound to the
// instance the user named. It lives in the browser session until the
// callback verifies it.
type AuthSession struct {
	ID       string
	Instance string
}

// NewAuthSession starts a MiAuth flow against the given instance. Scheme
// prefixes and trailing slashes on the instance name are stripped.
func NewAuthSession(instance string) AuthSession {
	instance = strings.TrimPrefix(instance, "https://")
	instance = strings.TrimPrefix(instance, "http://")
	instance = strings.Trim(strings.TrimSpace(instance), "/")
	return AuthSession{
		ID:       uuid.NewString(),
		Instance: instance,
	}
}

// AuthorizeURL is the browser redirect target for user approval.
func (s AuthSession) AuthorizeURL(callback string) string {
	return fmt.Sprintf("https://%s/miauth/%s?name=%s&callback=%s&permission=%s",
		s.Instance, s.ID, appName, url.QueryEscape(callback), url.QueryEscape(miAuthPermissions))
}

// AuthResult is the verified outcome of a MiAuth flow.
type AuthResult struct {
	Credential Credential
	UserID     string
	Username   string
	Name       string
}

// CheckAuth polls the instance's miauth check endpoint once. It succeeds
// only after the user has approved the session on the instance.
func CheckAuth(ctx context.Context, session AuthSession) (AuthResult, error) {
	endpoint := instanceURL(session.Instance) + "/api/miauth/" + session.ID + "/check"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return AuthResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return AuthResult{}, crosspost.AuthError{Network: crosspost.NetworkMisskey, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AuthResult{}, crosspost.AuthError{Network: crosspost.NetworkMisskey, Reason: fmt.Sprintf("miauth check: status %d", resp.StatusCode)}
	}

	var payload struct {
		OK    bool   `json:"ok"`
		Token string `json:"token"`
		User  struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return AuthResult{}, fmt.Errorf("miauth check: decode: %w", err)
	}
	if !payload.OK || payload.Token == "" {
		return AuthResult{}, crosspost.AuthError{Network: crosspost.NetworkMisskey, Reason: "miauth session not approved"}
	}

	name := payload.User.Name
	if name == "" {
		name = payload.User.Username
	}
	return AuthResult{
		Credential: Credential{Instance: session.Instance, Token: payload.Token},
		UserID:     payload.User.ID,
		Username:   payload.User.Username,
		Name:       name,
	}, nil
}
