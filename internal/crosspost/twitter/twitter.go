package twitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
	"github.com/michimani/gotwi/user/userlookup"
	userlookuptypes "github.com/michimani/gotwi/user/userlookup/types"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost"
	"github.com/tnmt-1/sns-multi-posts/internal/logutil"
	"golang.org/x/oauth2"
)

const httpTimeout = 30 * time.Second

// AppConfig holds the application-level Twitter credentials: the OAuth 1.0a
// consumer pair for the media-capable path and the OAuth 2.0 client for the
// PKCE login flow.
type AppConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	ClientID       string
	ClientSecret   string
	RedirectURL    string
}

// OAuth1Credential is the complete-era credential: an access token pair used
// with the consumer pair for user-context requests, including media upload.
type OAuth1Credential struct {
	AccessToken  string
	AccessSecret string
}

func (OAuth1Credential) CredentialNetwork() crosspost.Network { return crosspost.NetworkTwitter }

// OAuth2Credential is a PKCE-issued bearer token. The text-post endpoint
// accepts it directly; media upload does not, so images are dropped on this
// path.
type OAuth2Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

func (OAuth2Credential) CredentialNetwork() crosspost.Network { return crosspost.NetworkTwitter }

// Publisher posts to X for one account.
type Publisher struct {
	cfg     AppConfig
	conf    *oauth2.Config
	account crosspost.Account
	updated *crosspost.Account
}

// NewPublisherFactory returns a factory building Twitter publishers from
// stored accounts.
func NewPublisherFactory(cfg AppConfig) crosspost.PublisherFactory {
	return func(account crosspost.Account) (crosspost.Publisher, error) {
		switch account.Credential.(type) {
		case OAuth1Credential, OAuth2Credential:
			return &Publisher{cfg: cfg, conf: OAuth2Config(cfg), account: account}, nil
		}
		return nil, crosspost.AuthError{Network: crosspost.NetworkTwitter, Reason: "stored credential is not a Twitter credential"}
	}
}

// UpdatedAccount reports the account carrying its rotated credential when a
// token refresh happened during Publish. Twitter consumes the refresh token
// on use, so the new pair must replace the stored one.
func (p *Publisher) UpdatedAccount() (crosspost.Account, bool) {
	if p.updated == nil {
		return crosspost.Account{}, false
	}
	return *p.updated, true
}

// Network identifies the provider.
func (p *Publisher) Network() crosspost.Network { return crosspost.NetworkTwitter }

// Publish posts the request text (and, on the OAuth 1.0a path, its images)
// to X.
func (p *Publisher) Publish(ctx context.Context, req crosspost.Request) error {
	switch cred := p.account.Credential.(type) {
	case OAuth1Credential:
		return p.publishOAuth1(ctx, cred, req)
	case OAuth2Credential:
		return p.publishOAuth2(ctx, cred, req)
	}
	return crosspost.AuthError{Network: crosspost.NetworkTwitter, Reason: "stored credential is not a Twitter credential"}
}

func (p *Publisher) publishOAuth1(ctx context.Context, cred OAuth1Credential, req crosspost.Request) error {
	api, err := newOAuth1Client(p.cfg, cred)
	if err != nil {
		return err
	}

	var mediaIDs []string
	for i, image := range req.Images {
		logutil.Debugf("uploading media %d/%d: type=%s bytes=%d", i+1, len(req.Images), image.ContentType, len(image.Data))
		mediaID, err := uploadMedia(ctx, api, image)
		if err != nil {
			// One broken image aborts the whole tweet; nothing is posted
			// with partial media.
			return err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	input := &managetweettypes.CreateInput{
		Text: gotwi.String(req.Text),
	}
	if len(mediaIDs) > 0 {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: mediaIDs}
	}

	if _, err := managetweet.Create(ctx, api, input); err != nil {
		return classify(err)
	}
	logutil.Debugf("tweet posted: media_count=%d", len(mediaIDs))
	return nil
}

func (p *Publisher) publishOAuth2(ctx context.Context, cred OAuth2Credential, req crosspost.Request) error {
	if len(req.Images) > 0 {
		logutil.Warnf("twitter: dropping %d image(s); media upload needs OAuth 1.0a credentials", len(req.Images))
	}

	cred, err := p.freshCredential(ctx, cred)
	if err != nil {
		return err
	}

	api, err := gotwi.NewClientWithAccessToken(&gotwi.NewClientWithAccessTokenInput{
		HTTPClient:  &http.Client{Timeout: httpTimeout},
		AccessToken: cred.AccessToken,
	})
	if err != nil {
		return fmt.Errorf("create X client: %w", err)
	}

	if _, err := managetweet.Create(ctx, api, &managetweettypes.CreateInput{
		Text: gotwi.String(req.Text),
	}); err != nil {
		return classify(err)
	}
	return nil
}

// freshCredential refreshes an expired bearer token and records the rotated
// pair for write-back to the account store.
func (p *Publisher) freshCredential(ctx context.Context, cred OAuth2Credential) (OAuth2Credential, error) {
	if cred.Expiry.IsZero() || time.Now().Before(cred.Expiry) {
		return cred, nil
	}

	refreshed, err := Refresh(ctx, p.conf, cred)
	if err != nil {
		return OAuth2Credential{}, crosspost.AuthError{Network: crosspost.NetworkTwitter, Reason: fmt.Sprintf("token refresh: %v", err)}
	}

	account := p.account
	account.Credential = refreshed
	p.updated = &account
	return refreshed, nil
}

func newOAuth1Client(cfg AppConfig, cred OAuth1Credential) (*gotwi.Client, error) {
	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           &http.Client{Timeout: httpTimeout},
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           cred.AccessToken,
		OAuthTokenSecret:     cred.AccessSecret,
		APIKey:               cfg.ConsumerKey,
		APIKeySecret:         cfg.ConsumerSecret,
		Debug:                logutil.Verbose(),
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	if !client.IsReady() {
		return nil, crosspost.AuthError{Network: crosspost.NetworkTwitter, Reason: "client not ready"}
	}
	return client, nil
}

// VerifyOAuth1 resolves the authenticated user behind an access token pair.
// Used at login time to build the stored account.
func VerifyOAuth1(ctx context.Context, cfg AppConfig, cred OAuth1Credential) (id, username, name string, err error) {
	api, err := newOAuth1Client(cfg, cred)
	if err != nil {
		return "", "", "", err
	}
	me, err := userlookup.GetMe(ctx, api, &userlookuptypes.GetMeInput{})
	if err != nil {
		return "", "", "", classify(err)
	}
	return gotwi.StringValue(me.Data.ID), gotwi.StringValue(me.Data.Username), gotwi.StringValue(me.Data.Name), nil
}

func uploadMedia(ctx context.Context, api *gotwi.Client, image crosspost.Image) (string, error) {
	mediaType, category, err := resolveMediaType(image)
	if err != nil {
		return "", err
	}

	initRes, err := upload.Initialize(ctx, api, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(image.Data),
		MediaCategory: category,
	})
	if err != nil {
		return "", classify(fmt.Errorf("initialize upload: %w", err))
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}

	mediaID := initRes.Data.MediaID
	appendIn := &uploadtypes.AppendInput{
		MediaID:      mediaID,
		Media:        bytes.NewReader(image.Data),
		SegmentIndex: 0,
	}
	appendIn.GenerateBoundary()

	appendRes, err := upload.Append(ctx, api, appendIn)
	if err != nil {
		return "", classify(fmt.Errorf("append upload: %w", err))
	}
	if err := partialError(appendRes.Errors); err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}

	finalizeRes, err := upload.Finalize(ctx, api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", classify(fmt.Errorf("finalize upload: %w", err))
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	state := finalizeRes.Data.ProcessingInfo.State
	switch state {
	case "", resources.ProcessingInfoStateSucceeded:
		// ready
	case resources.ProcessingInfoStateInProgress, resources.ProcessingInfoStatePending:
		wait := time.Duration(finalizeRes.Data.ProcessingInfo.CheckAfterSecs) * time.Second
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
			// images usually finish within the first check window
		}
	default:
		return "", fmt.Errorf("media processing failed: state=%s", state)
	}

	return mediaID, nil
}

func resolveMediaType(image crosspost.Image) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	contentType := image.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(image.Data)
	}
	switch {
	case strings.Contains(contentType, "jpeg"):
		return uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage, nil
	case strings.Contains(contentType, "png"):
		return uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage, nil
	case strings.Contains(contentType, "gif"):
		return uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF, nil
	case strings.Contains(contentType, "webp"):
		return uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage, nil
	}
	return "", "", crosspost.ValidationError{Reason: fmt.Sprintf("unsupported image type %q", contentType)}
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		case pe.ResourceType != nil:
			msgs = append(msgs, *pe.ResourceType)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// classify maps gotwi errors onto the publish error taxonomy. A 429 becomes
// a RateLimitError with the quota headers logged; anything else keeps the
// status code and a readable summary.
func classify(err error) error {
	var gwErr *gotwi.GotwiError
	if !errors.As(err, &gwErr) || gwErr == nil {
		return err
	}

	if gwErr.StatusCode == http.StatusTooManyRequests {
		rate := crosspost.RateLimitError{Network: crosspost.NetworkTwitter}
		if info := gwErr.RateLimitInfo; info != nil {
			rate.Remaining = fmt.Sprintf("%d", info.Remaining)
			if info.ResetAt != nil {
				rate.Reset = info.ResetAt.Format(time.RFC3339)
			}
		}
		logutil.Warnf("twitter rate limited: remaining=%s reset=%s", rate.Remaining, rate.Reset)
		return rate
	}

	return crosspost.PublishError{
		Network:    crosspost.NetworkTwitter,
		StatusCode: gwErr.StatusCode,
		Body:       summarize(gwErr),
	}
}

func summarize(err *gotwi.GotwiError) string {
	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}
	return strings.Join(parts, "; ")
}
