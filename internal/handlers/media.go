package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/wadeskhq/wadesk/internal/message"
	"github.com/wadeskhq/wadesk/internal/relay"
	"github.com/wadeskhq/wadesk/internal/storage"
	"github.com/wadeskhq/wadesk/internal/tenant"
)

type mediaTokenVerifier interface {
	Verify(token string) (string, error)
}

type mediaMessageStore interface {
	Get(ctx context.Context, id string) (message.Message, error)
	UpdateMedia(ctx context.Context, id string, media *message.MediaDescriptor) error
}

type mediaTenantStore interface {
	GetByID(ctx context.Context, id string) (tenant.Tenant, error)
}

// MediaHandler streams stored media objects behind signed tokens and retries
// failed relays on demand.
type MediaHandler struct {
	verifier          mediaTokenVerifier
	store             storage.Provider
	messages          mediaMessageStore
	tenants           mediaTenantStore
	relayer           mediaRelayer
	defaultAPIVersion string
	logger            *slog.Logger
}

// NewMediaHandler creates the media endpoints handler.
func NewMediaHandler(log *slog.Logger, verifier mediaTokenVerifier, store storage.Provider, messages mediaMessageStore, tenants mediaTenantStore, relayer mediaRelayer, defaultAPIVersion string) *MediaHandler {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(defaultAPIVersion) == "" {
		defaultAPIVersion = "v23.0"
	}
	return &MediaHandler{
		verifier:          verifier,
		store:             store,
		messages:          messages,
		tenants:           tenants,
		relayer:           relayer,
		defaultAPIVersion: defaultAPIVersion,
		logger:            log.With(slog.String("handler", "media")),
	}
}

func (h *MediaHandler) Register(e *echo.Echo) {
	e.GET("/media", h.Serve)
	e.POST("/api/media/refresh", h.Refresh)
}

// Serve streams the object a signed media token grants access to. The token
// is the only credential; the route is public.
func (h *MediaHandler) Serve(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "media token required")
	}

	key, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Warn("media token rejected", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid media token")
	}

	reader, err := h.store.Open(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return echo.NewHTTPError(http.StatusNotFound, "media not found")
		}
		h.logger.Error("open media failed", slog.String("storage_key", key), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read media")
	}
	defer func() {
		_ = reader.Close()
	}()

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Stream(http.StatusOK, contentType, reader)
}

type refreshRequest struct {
	MessageID string `json:"message_id" validate:"required"`
}

type refreshResponse struct {
	MessageID string                   `json:"message_id"`
	Media     *message.MediaDescriptor `json:"media_data"`
}

// Refresh retries the relay for a message whose media never made it into
// storage. A success replaces the degraded descriptor; another failure just
// updates the recorded error.
func (h *MediaHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	msg, err := h.messages.Get(ctx, req.MessageID)
	if err != nil {
		if errors.Is(err, message.ErrMessageNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "message not found")
		}
		h.logger.Error("load message failed", slog.String("message_id", req.MessageID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load message")
	}
	if msg.Media == nil || msg.Media.ID == "" {
		return echo.NewHTTPError(http.StatusConflict, "message has no relayable media")
	}
	if msg.Media.Uploaded {
		return c.JSON(http.StatusOK, refreshResponse{MessageID: msg.ID, Media: msg.Media})
	}

	t, err := h.tenants.GetByID(ctx, msg.ReceiverID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusConflict, "message tenant no longer exists")
		}
		h.logger.Error("load tenant failed", slog.String("tenant_id", msg.ReceiverID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load tenant")
	}

	apiVersion := t.APIVersion
	if apiVersion == "" {
		apiVersion = h.defaultAPIVersion
	}
	outcome := h.relayer.Relay(ctx, relay.Input{
		MediaID:     msg.Media.ID,
		MimeType:    msg.Media.MimeType,
		OwnerKey:    msg.SenderID,
		AccessToken: t.AccessToken,
		APIVersion:  apiVersion,
	})
	applyRelayOutcome(msg.Media, outcome)

	if err := h.messages.UpdateMedia(ctx, msg.ID, msg.Media); err != nil {
		h.logger.Error("update media descriptor failed", slog.String("message_id", msg.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update message")
	}

	h.logger.Info("media refresh finished",
		slog.String("message_id", msg.ID),
		slog.Bool("uploaded", msg.Media.Uploaded),
	)
	return c.JSON(http.StatusOK, refreshResponse{MessageID: msg.ID, Media: msg.Media})
}
