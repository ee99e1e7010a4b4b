// Package relay fetches provider-hosted media and re-hosts it in durable
// storage. Relay failure is a value, never an error: the pipeline persists
// messages with a degraded descriptor instead of dropping them.
package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/wadeskhq/wadesk/internal/storage"
)

// Provider media ids are plain numeric handles; anything else is rejected
// before any network I/O happens.
var mediaIDPattern = regexp.MustCompile(`^\d+$`)

// MediaFetcher resolves and downloads provider-hosted media.
type MediaFetcher interface {
	MediaURL(ctx context.Context, mediaID, accessToken, apiVersion string) (string, error)
	Download(ctx context.Context, rawURL, accessToken string) (io.ReadCloser, error)
}

// URLSigner mints durable access references for stored objects.
type URLSigner interface {
	SignedURL(key string) (string, error)
}

// Input identifies one media attachment to relay.
type Input struct {
	MediaID     string
	MimeType    string
	OwnerKey    string
	AccessToken string
	APIVersion  string
}

// Outcome reports how a relay attempt ended. Uploaded is true iff URL is
// non-empty; Err carries a human-readable reason on failure.
type Outcome struct {
	URL        string
	Uploaded   bool
	UploadedAt *time.Time
	Err        string
}

// Service copies provider media into durable storage.
type Service struct {
	fetcher MediaFetcher
	store   storage.Provider
	signer  URLSigner
	logger  *slog.Logger
}

// NewService creates a media relay service.
func NewService(log *slog.Logger, fetcher MediaFetcher, store storage.Provider, signer URLSigner) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		fetcher: fetcher,
		store:   store,
		signer:  signer,
		logger:  log.With(slog.String("service", "relay")),
	}
}

// Relay resolves the short-lived provider URL for the media id, streams the
// bytes into storage under a key derived from the owner and media id, and
// returns a signed durable URL. Any failure yields a degraded Outcome.
func (s *Service) Relay(ctx context.Context, input Input) Outcome {
	if !mediaIDPattern.MatchString(input.MediaID) {
		return s.failure(input, fmt.Sprintf("invalid media id format: %s", input.MediaID))
	}
	if strings.TrimSpace(input.AccessToken) == "" {
		return s.failure(input, "tenant access token not configured")
	}

	providerURL, err := s.fetcher.MediaURL(ctx, input.MediaID, input.AccessToken, input.APIVersion)
	if err != nil {
		return s.failure(input, fmt.Sprintf("resolve media url: %v", err))
	}

	body, err := s.fetcher.Download(ctx, providerURL, input.AccessToken)
	if err != nil {
		return s.failure(input, fmt.Sprintf("download media: %v", err))
	}
	defer func() {
		_ = body.Close()
	}()

	key := path.Join(input.OwnerKey, input.MediaID+extensionFromMime(input.MimeType))
	if err := s.store.Put(ctx, key, body); err != nil {
		return s.failure(input, fmt.Sprintf("store media: %v", err))
	}

	signed, err := s.signer.SignedURL(key)
	if err != nil {
		return s.failure(input, fmt.Sprintf("sign media url: %v", err))
	}

	now := time.Now().UTC()
	s.logger.Info("media relayed",
		slog.String("media_id", input.MediaID),
		slog.String("storage_key", key),
	)
	return Outcome{URL: signed, Uploaded: true, UploadedAt: &now}
}

func (s *Service) failure(input Input, reason string) Outcome {
	s.logger.Warn("media relay failed",
		slog.String("media_id", input.MediaID),
		slog.String("owner", input.OwnerKey),
		slog.String("reason", reason),
	)
	return Outcome{Err: reason}
}

func extensionFromMime(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg", "audio/ogg; codecs=opus":
		return ".ogg"
	case "audio/wav":
		return ".wav"
	case "audio/amr":
		return ".amr"
	case "video/mp4":
		return ".mp4"
	case "video/3gpp":
		return ".3gp"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
