package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/voxd/internal/calendar"
)

const defaultUploadTimeout = 60 * time.Second

// HTTPUploader pushes spooled payloads to the remote media service.
type HTTPUploader struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// UploaderConfig configures the media uploader.
type UploaderConfig struct {
	BaseURL string
	Timeout time.Duration

	// TokenSource supplies bearer tokens. Required.
	TokenSource oauth2.TokenSource
}

// NewHTTPUploader creates a media uploader backed by the given token
// source.
func NewHTTPUploader(cfg UploaderConfig, logger *zap.Logger) (*HTTPUploader, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("media base URL is required")
	}
	if cfg.TokenSource == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultUploadTimeout
	}

	return &HTTPUploader{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: cfg.TokenSource},
		},
		logger: logger,
	}, nil
}

// Upload sends one payload. The media id doubles as the idempotency
// key so a retried upload lands on the same remote object.
func (u *HTTPUploader) Upload(ctx context.Context, rec *Record, payload []byte) (string, error) {
	q := url.Values{}
	q.Set("session_id", rec.SessionID)
	q.Set("captured_at", rec.CapturedAt.UTC().Format(time.RFC3339))
	q.Set("sha256", rec.SHA256)
	q.Set("idempotency_key", rec.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		u.baseURL+"/api/v1/media?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(payload))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: media service returned %d", calendar.ErrCredentialInvalid, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("media service error (%d): %s", resp.StatusCode, string(data))
	}

	var out struct {
		RemoteID string `json:"remote_id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if out.RemoteID == "" {
		return "", fmt.Errorf("media service returned empty remote id")
	}
	return out.RemoteID, nil
}

var _ Uploader = (*HTTPUploader)(nil)
