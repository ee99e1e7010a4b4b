package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client calls the provider's Graph API media endpoints. Media retrieval is
// a two-phase protocol: resolve a short-lived download URL by media id, then
// fetch the bytes from that URL. Both calls carry the tenant's credential.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a provider media client. baseURL defaults to the Graph
// API; tests point it at a local server.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://graph.facebook.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     log.With(slog.String("adapter", "whatsapp")),
	}
}

type mediaInfoResponse struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

// MediaURL resolves the short-lived download URL for a media id.
func (c *Client) MediaURL(ctx context.Context, mediaID, accessToken, apiVersion string) (string, error) {
	if strings.TrimSpace(accessToken) == "" {
		return "", fmt.Errorf("access token is required")
	}
	if strings.TrimSpace(apiVersion) == "" {
		apiVersion = "v23.0"
	}
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, apiVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build media info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("media info request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("media info request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info mediaInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode media info: %w", err)
	}
	if info.URL == "" {
		return "", fmt.Errorf("media info has no url")
	}
	c.logger.Debug("resolved media url", slog.String("media_id", mediaID))
	return info.URL, nil
}

// Download streams the bytes behind a resolved media URL. The caller owns
// closing the returned reader.
func (c *Client) Download(ctx context.Context, rawURL, accessToken string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("download request failed: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
