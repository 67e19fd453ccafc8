package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost"
	"github.com/tnmt-1/sns-multi-posts/internal/logutil"
)

const (
	requestTimeout = 30 * time.Second
	postCollection = "app.bsky.feed.post"

	// Every post carries a fixed language tag.
	postLanguage = "ja"
)

// Credential is a Bluesky handle plus app password. Every publish logs in
// again; no session is reused between posts.
type Credential struct {
	Handle      string
	AppPassword string
}

func (Credential) CredentialNetwork() crosspost.Network { return crosspost.NetworkBluesky }

// Config points the client at a PDS and the link-card metadata service.
type Config struct {
	PDSURL      string
	MetadataURL string
}

func (c Config) withDefaults() Config {
	if c.PDSURL == "" {
		c.PDSURL = "https://bsky.social"
	}
	if c.MetadataURL == "" {
		c.MetadataURL = defaultMetadataURL
	}
	return c
}

// Publisher posts to Bluesky for one account.
type Publisher struct {
	cfg     Config
	account crosspost.Account
}

// NewPublisherFactory returns a factory building Bluesky publishers from
// stored accounts.
func NewPublisherFactory(cfg Config) crosspost.PublisherFactory {
	cfg = cfg.withDefaults()
	return func(account crosspost.Account) (crosspost.Publisher, error) {
		if _, ok := account.Credential.(Credential); !ok {
			return nil, crosspost.AuthError{Network: crosspost.NetworkBluesky, Reason: "stored credential is not a Bluesky credential"}
		}
		return &Publisher{cfg: cfg, account: account}, nil
	}
}

// Network identifies the provider.
func (p *Publisher) Network() crosspost.Network { return crosspost.NetworkBluesky }

// Publish logs in with the stored app password and creates one post with
// link facets and, depending on the request, an image embed or a link card.
// Nothing becomes visible until the final record creation succeeds.
func (p *Publisher) Publish(ctx context.Context, req crosspost.Request) error {
	cred := p.account.Credential.(Credential)

	client, err := login(ctx, p.cfg, cred.Handle, cred.AppPassword)
	if err != nil {
		return err
	}

	links := FindLinks(req.Text)
	post := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      req.Text,
		Langs:     []string{postLanguage},
		Facets:    buildFacets(links),
	}

	switch {
	case len(req.Images) > 0:
		// Images win over link cards.
		embed, err := p.imageEmbed(ctx, client, req.Images)
		if err != nil {
			return err
		}
		post.Embed = &bsky.FeedPost_Embed{EmbedImages: embed}
	case len(links) > 0:
		if external := p.linkCard(ctx, client, links[0].URI); external != nil {
			post.Embed = &bsky.FeedPost_Embed{EmbedExternal: external}
		}
	}

	_, err = atproto.RepoCreateRecord(ctx, client, &atproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       client.Auth.Did,
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return classify(fmt.Errorf("create record: %w", err))
	}
	return nil
}

func (p *Publisher) imageEmbed(ctx context.Context, client *xrpc.Client, images []crosspost.Image) (*bsky.EmbedImages, error) {
	embed := &bsky.EmbedImages{}
	for i, image := range images {
		data := FitBlobCap(image.Data)
		blob, err := uploadBlob(ctx, client, data)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		embed.Images = append(embed.Images, &bsky.EmbedImages_Image{
			Alt:   "Image",
			Image: blob,
		})
	}
	return embed, nil
}

func uploadBlob(ctx context.Context, client *xrpc.Client, data []byte) (*lexutil.LexBlob, error) {
	resp, err := atproto.RepoUploadBlob(ctx, client, bytes.NewReader(data))
	if err != nil {
		return nil, classify(fmt.Errorf("upload blob: %w", err))
	}
	if resp.Blob == nil {
		return nil, fmt.Errorf("upload blob: empty response")
	}
	return resp.Blob, nil
}

func login(ctx context.Context, cfg Config, handle, appPassword string) (*xrpc.Client, error) {
	userAgent := "sns-multi-posts/1"
	client := &xrpc.Client{
		Client:    &http.Client{Timeout: requestTimeout},
		Host:      cfg.PDSURL,
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: handle,
		Password:   appPassword,
	})
	if err != nil {
		return nil, crosspost.AuthError{Network: crosspost.NetworkBluesky, Reason: fmt.Sprintf("login: %v", err)}
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	return client, nil
}

// Login verifies a handle and app password and returns the profile used to
// build the stored account.
func Login(ctx context.Context, cfg Config, handle, appPassword string) (did, actualHandle, displayName string, err error) {
	cfg = cfg.withDefaults()
	client, err := login(ctx, cfg, handle, appPassword)
	if err != nil {
		return "", "", "", err
	}

	displayName = client.Auth.Handle
	if profile, err := bsky.ActorGetProfile(ctx, client, client.Auth.Did); err == nil {
		if profile.DisplayName != nil && *profile.DisplayName != "" {
			displayName = *profile.DisplayName
		}
	} else {
		logutil.Debugf("bluesky profile lookup failed for %s: %v", handle, err)
	}
	return client.Auth.Did, client.Auth.Handle, displayName, nil
}

func classify(err error) error {
	var xe *xrpc.Error
	if !errors.As(err, &xe) || xe == nil {
		return err
	}
	if xe.StatusCode == http.StatusTooManyRequests {
		rate := crosspost.RateLimitError{Network: crosspost.NetworkBluesky}
		if xe.Ratelimit != nil {
			rate.Remaining = fmt.Sprintf("%d", xe.Ratelimit.Remaining)
			rate.Reset = xe.Ratelimit.Reset.Format(time.RFC3339)
		}
		logutil.Warnf("bluesky rate limited: remaining=%s reset=%s", rate.Remaining, rate.Reset)
		return rate
	}
	return crosspost.PublishError{
		Network:    crosspost.NetworkBluesky,
		StatusCode: xe.StatusCode,
		Body:       xe.Error(),
	}
}
