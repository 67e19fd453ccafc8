package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/tnmt-1/sns-multi-posts/internal/crosspost"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost/bluesky"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost/misskey"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost/twitter"
	"github.com/tnmt-1/sns-multi-posts/internal/logutil"
)

func (s *Server) handleIndex(c echo.Context) error {
	message, kind := popFlash(c)
	data := map[string]any{
		"Accounts": Accounts(c).All(),
	}
	if message != "" {
		// success / warning / error distinguish the styling
		data["Flash"] = message
		data["FlashKind"] = kind
	}
	return c.Render(http.StatusOK, "index.html", data)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(c echo.Context) error {
	switch c.Param("provider") {
	case "twitter":
		pending := twitterPending{
			State:    uuid.NewString(),
			Verifier: oauth2.GenerateVerifier(),
		}
		sessionSet(c, keyTwitterPending, pending)
		conf := twitter.OAuth2Config(twitterAppConfig(s.cfg))
		return c.Redirect(http.StatusSeeOther, twitter.AuthCodeURL(conf, pending.State, pending.Verifier))
	case "twitter1":
		return c.Render(http.StatusOK, "login_twitter1.html", nil)
	case "bluesky":
		return c.Render(http.StatusOK, "login_bluesky.html", nil)
	case "misskey":
		return c.Render(http.StatusOK, "login_misskey.html", nil)
	}
	return echo.NewHTTPError(http.StatusNotFound, "provider not found")
}

func (s *Server) handleBlueskyLogin(c echo.Context) error {
	handle := strings.TrimSpace(c.FormValue("handle"))
	password := c.FormValue("password")

	did, actualHandle, displayName, err := bluesky.Login(c.Request().Context(), bluesky.Config{PDSURL: s.cfg.BlueskyPDSURL}, handle, password)
	if err != nil {
		return c.Render(http.StatusOK, "login_bluesky.html", map[string]any{"Error": err.Error()})
	}

	Accounts(c).Add(crosspost.Account{
		Network:     crosspost.NetworkBluesky,
		ID:          did,
		Username:    actualHandle,
		DisplayName: displayName,
		Credential:  bluesky.Credential{Handle: handle, AppPassword: password},
	})
	return c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleTwitterOAuth1Login(c echo.Context) error {
	cred := twitter.OAuth1Credential{
		AccessToken:  strings.TrimSpace(c.FormValue("access_token")),
		AccessSecret: strings.TrimSpace(c.FormValue("access_secret")),
	}

	id, username, name, err := twitter.VerifyOAuth1(c.Request().Context(), twitterAppConfig(s.cfg), cred)
	if err != nil {
		return c.Render(http.StatusOK, "login_twitter1.html", map[string]any{"Error": err.Error()})
	}

	Accounts(c).Add(crosspost.Account{
		Network:     crosspost.NetworkTwitter,
		ID:          id,
		Username:    username,
		DisplayName: name,
		Credential:  cred,
	})
	return c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleMisskeyLogin(c echo.Context) error {
	instance := c.FormValue("instance")
	if strings.TrimSpace(instance) == "" {
		return c.Render(http.StatusOK, "login_misskey.html", map[string]any{"Error": "instance is required"})
	}

	auth := misskey.NewAuthSession(instance)
	sessionSet(c, keyMisskeyPending, auth)
	return c.Redirect(http.StatusSeeOther, auth.AuthorizeURL(s.cfg.BaseURL+"/auth/callback/misskey"))
}

func (s *Server) handleCallback(c echo.Context) error {
	switch c.Param("provider") {
	case "twitter":
		return s.handleTwitterCallback(c)
	case "misskey":
		return s.handleMisskeyCallback(c)
	}
	return echo.NewHTTPError(http.StatusNotFound, "provider not found")
}

func (s *Server) handleTwitterCallback(c echo.Context) error {
	value, ok := sessionPop(c, keyTwitterPending)
	pending, valid := value.(twitterPending)
	if !ok || !valid {
		return echo.NewHTTPError(http.StatusBadRequest, "no pending Twitter login")
	}
	if c.QueryParam("state") != pending.State {
		return echo.NewHTTPError(http.StatusBadRequest, "state mismatch")
	}
	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "authorization denied")
	}

	ctx := c.Request().Context()
	conf := twitter.OAuth2Config(twitterAppConfig(s.cfg))
	cred, err := twitter.Exchange(ctx, conf, code, pending.Verifier)
	if err != nil {
		logutil.Errorf("twitter code exchange: %v", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Twitter authentication failed")
	}

	id, username, name, err := twitter.UserInfo(ctx, cred)
	if err != nil {
		logutil.Errorf("twitter user lookup: %v", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Twitter authentication failed")
	}

	Accounts(c).Add(crosspost.Account{
		Network:     crosspost.NetworkTwitter,
		ID:          id,
		Username:    username,
		DisplayName: name,
		Credential:  cred,
	})
	return c.Redirect(http.StatusFound, "/")
}

func (s *Server) handleMisskeyCallback(c echo.Context) error {
	value, ok := sessionPop(c, keyMisskeyPending)
	pending, valid := value.(misskey.AuthSession)
	if !ok || !valid {
		return echo.NewHTTPError(http.StatusBadRequest, "no pending Misskey login")
	}

	result, err := misskey.CheckAuth(c.Request().Context(), pending)
	if err != nil {
		logutil.Errorf("miauth check: %v", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Misskey authentication failed")
	}

	Accounts(c).Add(crosspost.Account{
		Network:     crosspost.NetworkMisskey,
		ID:          result.UserID,
		Username:    result.Username,
		DisplayName: result.Name,
		Credential:  result.Credential,
	})
	return c.Redirect(http.StatusFound, "/")
}

func (s *Server) handleLogout(c echo.Context) error {
	Accounts(c).Clear()
	return c.Redirect(http.StatusFound, "/")
}

func (s *Server) handleCreatePost(c echo.Context) error {
	text := c.FormValue("text")
	visibility := c.FormValue("misskey_visibility")
	if visibility == "" {
		visibility = string(crosspost.VisibilityPublic)
	}

	form, err := c.MultipartForm()
	if err != nil && err != http.ErrNotMultipart {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	var images []crosspost.Image
	if form != nil {
		images, err = crosspost.NormalizeImages(form.File["images"])
		if err != nil {
			return s.rejectPost(c, err)
		}
	}

	selected, _ := c.FormParams()
	targets := parseTargets(selected["selected_accounts"])

	limit := crosspost.ResolveLimit(targets)
	if err := crosspost.CheckLength(text, limit); err != nil {
		return s.rejectPost(c, err)
	}

	req := crosspost.Request{
		Text:              text,
		Targets:           targets,
		Images:            images,
		MisskeyVisibility: crosspost.Visibility(visibility),
	}

	outcomes := s.dispatcher.Dispatch(c.Request().Context(), Accounts(c), req)
	message, kind := crosspost.Summarize(outcomes)

	setFlash(c, message, string(kind))
	return c.Redirect(http.StatusSeeOther, "/")
}

// rejectPost surfaces a pre-dispatch validation failure; no network was
// contacted.
func (s *Server) rejectPost(c echo.Context, err error) error {
	if _, ok := err.(crosspost.ValidationError); ok {
		setFlash(c, err.Error(), "error")
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return fmt.Errorf("create post: %w", err)
}

// parseTargets decodes the "provider:id" checkbox values, preserving order
// and duplicates for outcome reporting.
func parseTargets(values []string) []crosspost.Target {
	var targets []crosspost.Target
	for _, value := range values {
		network, id, ok := strings.Cut(value, ":")
		if !ok {
			continue
		}
		targets = append(targets, crosspost.Target{
			Network:   crosspost.Network(network),
			AccountID: id,
		})
	}
	return targets
}
