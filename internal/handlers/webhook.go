package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wadeskhq/wadesk/internal/message"
	"github.com/wadeskhq/wadesk/internal/relay"
	"github.com/wadeskhq/wadesk/internal/tenant"
	"github.com/wadeskhq/wadesk/internal/whatsapp"
)

type webhookTenantStore interface {
	GetByChannelID(ctx context.Context, channelID string) (tenant.Tenant, error)
	GetByVerifyToken(ctx context.Context, token string) (tenant.Tenant, error)
	MarkVerified(ctx context.Context, id string) error
}

type webhookContactStore interface {
	Upsert(ctx context.Context, phone, displayName string, lastActive time.Time) error
}

type webhookMessageStore interface {
	Persist(ctx context.Context, msg message.Message) (bool, error)
}

type mediaRelayer interface {
	Relay(ctx context.Context, input relay.Input) relay.Outcome
}

// WebhookHandler receives WhatsApp Business Cloud API callbacks: the
// verification handshake on GET and message delivery batches on POST.
//
// The delivery contract with the provider is deliberately lopsided: any
// non-success response triggers whole-batch redelivery, so every internal
// failure past body parsing is logged, swallowed, and answered with 200.
type WebhookHandler struct {
	tenants           webhookTenantStore
	contacts          webhookContactStore
	messages          webhookMessageStore
	relayer           mediaRelayer
	defaultAPIVersion string
	logger            *slog.Logger
}

// NewWebhookHandler creates the webhook endpoint handler.
func NewWebhookHandler(log *slog.Logger, tenants webhookTenantStore, contacts webhookContactStore, messages webhookMessageStore, relayer mediaRelayer, defaultAPIVersion string) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(defaultAPIVersion) == "" {
		defaultAPIVersion = "v23.0"
	}
	return &WebhookHandler{
		tenants:           tenants,
		contacts:          contacts,
		messages:          messages,
		relayer:           relayer,
		defaultAPIVersion: defaultAPIVersion,
		logger:            log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.HandleVerify)
	e.POST("/webhook", h.HandleDelivery)
}

// HandleVerify implements the provider's challenge/response handshake. The
// verify token doubles as the tenant lookup key; a match flips that tenant's
// verification flag and echoes the challenge verbatim. Rejections carry no
// detail about which check failed.
func (h *WebhookHandler) HandleVerify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode != "subscribe" || token == "" || challenge == "" {
		return c.String(http.StatusForbidden, "Forbidden")
	}

	ctx := c.Request().Context()
	t, err := h.tenants.GetByVerifyToken(ctx, token)
	if err != nil {
		if !errors.Is(err, tenant.ErrTenantNotFound) {
			h.logger.Error("verify token lookup failed", slog.Any("error", err))
		}
		return c.String(http.StatusForbidden, "Forbidden")
	}

	if err := h.tenants.MarkVerified(ctx, t.ID); err != nil {
		// The handshake already matched; failing it here would only make
		// the provider retry against the same transient fault.
		h.logger.Error("mark verified failed", slog.String("tenant_id", t.ID), slog.Any("error", err))
	}

	h.logger.Info("webhook verified", slog.String("tenant_id", t.ID))
	return c.String(http.StatusOK, challenge)
}

// HandleDelivery ingests a delivery batch. Only an unparseable body is a
// client-visible error; everything else acknowledges with 200 so the
// provider does not redeliver the batch.
func (h *WebhookHandler) HandleDelivery(c echo.Context) error {
	var payload whatsapp.WebhookPayload
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		h.logger.Warn("unparseable webhook payload", slog.Any("error", err))
		return c.String(http.StatusBadRequest, "Bad Request")
	}

	ctx := c.Request().Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			h.processBatch(ctx, change.Value)
		}
	}

	return c.String(http.StatusOK, "OK")
}

// processBatch attributes one envelope to its tenant and ingests its
// messages sequentially, preserving per-sender order.
func (h *WebhookHandler) processBatch(ctx context.Context, value whatsapp.ChangeValue) {
	channelID := strings.TrimSpace(value.Metadata.PhoneNumberID)
	if channelID == "" {
		h.logger.Warn("delivery batch has no phone_number_id")
		return
	}

	t, err := h.tenants.GetByChannelID(ctx, channelID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			// Silent drop: acknowledging an unattributable batch beats a
			// provider retry storm.
			h.logger.Warn("no tenant for channel", slog.String("channel_id", channelID))
		} else {
			h.logger.Error("tenant lookup failed", slog.String("channel_id", channelID), slog.Any("error", err))
		}
		return
	}

	for _, msg := range value.Messages {
		h.processMessage(ctx, t, value, msg)
	}
}

func (h *WebhookHandler) processMessage(ctx context.Context, t tenant.Tenant, value whatsapp.ChangeValue, msg whatsapp.Message) {
	if strings.TrimSpace(msg.ID) == "" || strings.TrimSpace(msg.From) == "" {
		h.logger.Warn("skipping malformed message",
			slog.String("message_id", msg.ID),
			slog.String("from", msg.From),
		)
		return
	}

	sentAt := parseEpochSeconds(msg.Timestamp)
	classified := whatsapp.Classify(msg)
	if classified.Media == nil && classified.MessageType != whatsapp.TypeText {
		h.logger.Warn("unsupported message type", slog.String("type", msg.Type), slog.String("message_id", msg.ID))
	}

	var media *message.MediaDescriptor
	if classified.Media != nil {
		media = h.relayMedia(ctx, t, msg.From, classified.Media)
	}

	displayName := value.ContactName(msg.From)
	if err := h.contacts.Upsert(ctx, msg.From, displayName, sentAt); err != nil {
		// A missing contact row does not block message persistence.
		h.logger.Error("contact upsert failed", slog.String("phone", msg.From), slog.Any("error", err))
	}

	inserted, err := h.messages.Persist(ctx, message.Message{
		ID:          msg.ID,
		SenderID:    msg.From,
		ReceiverID:  t.ID,
		Content:     classified.Content,
		Timestamp:   sentAt,
		IsSentByMe:  false,
		IsRead:      false,
		MessageType: classified.MessageType,
		Media:       media,
	})
	if err != nil {
		h.logger.Error("message persist failed", slog.String("message_id", msg.ID), slog.Any("error", err))
		return
	}
	if !inserted {
		h.logger.Info("duplicate delivery ignored", slog.String("message_id", msg.ID))
		return
	}
	h.logger.Info("message stored",
		slog.String("message_id", msg.ID),
		slog.String("type", classified.MessageType),
		slog.String("from", msg.From),
		slog.String("tenant_id", t.ID),
	)
}

// relayMedia runs the media relay and merges its outcome into the persisted
// descriptor. Relay failure degrades the descriptor, never the message.
func (h *WebhookHandler) relayMedia(ctx context.Context, t tenant.Tenant, ownerKey string, seed *whatsapp.MediaSeed) *message.MediaDescriptor {
	desc := &message.MediaDescriptor{
		Type:     seed.Type,
		ID:       seed.ID,
		MimeType: seed.MimeType,
		SHA256:   seed.SHA256,
		Filename: seed.Filename,
		Caption:  seed.Caption,
		Voice:    seed.Voice,
	}
	if seed.ID == "" {
		return desc
	}

	apiVersion := t.APIVersion
	if apiVersion == "" {
		apiVersion = h.defaultAPIVersion
	}
	outcome := h.relayer.Relay(ctx, relay.Input{
		MediaID:     seed.ID,
		MimeType:    seed.MimeType,
		OwnerKey:    ownerKey,
		AccessToken: t.AccessToken,
		APIVersion:  apiVersion,
	})
	applyRelayOutcome(desc, outcome)
	return desc
}

// applyRelayOutcome merges a relay result into the persisted descriptor,
// keeping the invariant s3_uploaded == (media_url != null). The refresh
// path reuses the same merge rules.
func applyRelayOutcome(desc *message.MediaDescriptor, outcome relay.Outcome) {
	desc.Uploaded = outcome.Uploaded
	desc.UploadTimestamp = outcome.UploadedAt
	desc.MediaURL = nil
	desc.UploadError = nil
	if outcome.URL != "" {
		url := outcome.URL
		desc.MediaURL = &url
	}
	if outcome.Err != "" {
		reason := outcome.Err
		desc.UploadError = &reason
	}
}

func parseEpochSeconds(raw string) time.Time {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || seconds <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(seconds, 0).UTC()
}
