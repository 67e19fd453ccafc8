package bluesky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/tnmt-1/sns-multi-posts/internal/logutil"
)

// defaultMetadataURL is the public card extraction service used by the
// official clients.
const defaultMetadataURL = "https://cardyb.bsky.app/v1/extract"

type cardMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// linkCard builds an external embed for the first URL of a post. Failures
// are swallowed: a post without its card is still a post.
func (p *Publisher) linkCard(ctx context.Context, client *xrpc.Client, target string) *bsky.EmbedExternal {
	meta, err := fetchMetadata(ctx, p.cfg.MetadataURL, target)
	if err != nil {
		logutil.Debugf("bluesky: link card lookup for %s failed: %v", target, err)
		return nil
	}
	if meta.Title == "" {
		return nil
	}

	external := &bsky.EmbedExternal_External{
		Uri:         target,
		Title:       meta.Title,
		Description: meta.Description,
	}

	if meta.Image != "" {
		if data, err := fetchImage(ctx, meta.Image); err != nil {
			logutil.Debugf("bluesky: link card image fetch failed: %v", err)
		} else if blob, err := uploadBlob(ctx, client, FitBlobCap(data)); err != nil {
			logutil.Debugf("bluesky: link card image upload failed: %v", err)
		} else {
			external.Thumb = blob
		}
	}

	return &bsky.EmbedExternal{External: external}
}

func fetchMetadata(ctx context.Context, endpoint, target string) (cardMetadata, error) {
	lookup := fmt.Sprintf("%s?url=%s", endpoint, url.QueryEscape(target))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookup, nil)
	if err != nil {
		return cardMetadata{}, err
	}

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return cardMetadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cardMetadata{}, fmt.Errorf("metadata lookup: status %d", resp.StatusCode)
	}

	var meta cardMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return cardMetadata{}, fmt.Errorf("metadata lookup: decode: %w", err)
	}
	return meta, nil
}

func fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview image: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
