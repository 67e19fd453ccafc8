package misskey

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tnmt-1/sns-multi-posts/internal/crosspost"
	"github.com/tnmt-1/sns-multi-posts/internal/logutil"
)

const (
	requestTimeout = 30 * time.Second
	bodySnippetLen = 200
)

// Credential is the per-account Misskey state: the instance hostname and the
// MiAuth-issued API token. The token travels in the request body (field "i"),
// never as a header.
type Credential struct {
	Instance string
	Token    string
}

func (Credential) CredentialNetwork() crosspost.Network { return crosspost.NetworkMisskey }

// Publisher posts notes to one Misskey account.
type Publisher struct {
	account crosspost.Account
	client  *http.Client
}

// NewPublisherFactory returns a factory building Misskey publishers from
// stored accounts.
func NewPublisherFactory() crosspost.PublisherFactory {
	return func(account crosspost.Account) (crosspost.Publisher, error) {
		if _, ok := account.Credential.(Credential); !ok {
			return nil, crosspost.AuthError{Network: crosspost.NetworkMisskey, Reason: "stored credential is not a Misskey credential"}
		}
		return &Publisher{
			account: account,
			client:  &http.Client{Timeout: requestTimeout},
		}, nil
	}
}

// Network identifies the provider.
func (p *Publisher) Network() crosspost.Network { return crosspost.NetworkMisskey }

// Publish uploads each image to the instance drive and creates one note. A
// single upload failure aborts the whole note; nothing is posted with
// partial media.
func (p *Publisher) Publish(ctx context.Context, req crosspost.Request) error {
	cred := p.account.Credential.(Credential)

	var fileIDs []string
	for i, image := range req.Images {
		fileID, err := p.uploadToDrive(ctx, cred, image)
		if err != nil {
			return fmt.Errorf("image %d: %w", i+1, err)
		}
		logutil.Debugf("misskey drive upload %d/%d: file_id=%s", i+1, len(req.Images), fileID)
		fileIDs = append(fileIDs, fileID)
	}

	visibility := req.MisskeyVisibility
	if visibility == "" {
		visibility = crosspost.VisibilityPublic
	}

	payload := map[string]any{
		"i":          cred.Token,
		"text":       req.Text,
		"visibility": string(visibility),
	}
	if len(fileIDs) > 0 {
		payload["fileIds"] = fileIDs
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode note: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, instanceURL(cred.Instance)+"/api/notes/create", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return crosspost.PublishError{Network: crosspost.NetworkMisskey, Body: err.Error()}
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

func (p *Publisher) uploadToDrive(ctx context.Context, cred Credential, image crosspost.Image) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("i", cred.Token); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", "upload")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image.Data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, instanceURL(cred.Instance)+"/api/drive/files/create", &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", crosspost.PublishError{Network: crosspost.NetworkMisskey, Body: err.Error()}
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return "", fmt.Errorf("drive upload: %w", err)
	}

	var uploaded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("drive upload: decode: %w", err)
	}
	if uploaded.ID == "" {
		return "", fmt.Errorf("drive upload: no file id in response")
	}
	return uploaded.ID, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		rate := crosspost.RateLimitError{
			Network:   crosspost.NetworkMisskey,
			Remaining: resp.Header.Get("X-RateLimit-Remaining"),
			Reset:     resp.Header.Get("X-RateLimit-Reset"),
		}
		logutil.Warnf("misskey rate limited: remaining=%s reset=%s", rate.Remaining, rate.Reset)
		return rate
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetLen))
	return crosspost.PublishError{
		Network:    crosspost.NetworkMisskey,
		StatusCode: resp.StatusCode,
		Body:       string(snippet),
	}
}

// instanceURL accepts a bare hostname and returns its https base URL. A
// value that already carries a scheme is used as-is.
func instanceURL(instance string) string {
	if strings.Contains(instance, "://") {
		return strings.TrimSuffix(instance, "/")
	}
	return "https://" + strings.TrimSuffix(instance, "/")
}
