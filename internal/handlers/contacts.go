package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wadeskhq/wadesk/internal/auth"
	"github.com/wadeskhq/wadesk/internal/contact"
	"github.com/wadeskhq/wadesk/internal/message"
)

type contactStore interface {
	List(ctx context.Context) ([]contact.Contact, error)
	Get(ctx context.Context, phone string) (contact.Contact, error)
	Rename(ctx context.Context, phone, displayName string) error
}

type conversationStore interface {
	ListConversation(ctx context.Context, tenantID, phone string) ([]message.Message, error)
	MarkRead(ctx context.Context, tenantID, phone string) error
}

// ContactsHandler serves the dashboard's contact list and per-contact
// conversation views. All routes sit behind JWT auth; the token subject is
// the tenant id the conversation is scoped to.
type ContactsHandler struct {
	contacts contactStore
	messages conversationStore
	logger   *slog.Logger
}

// NewContactsHandler creates the contacts API handler.
func NewContactsHandler(log *slog.Logger, contacts contactStore, messages conversationStore) *ContactsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ContactsHandler{
		contacts: contacts,
		messages: messages,
		logger:   log.With(slog.String("handler", "contacts")),
	}
}

func (h *ContactsHandler) Register(e *echo.Echo) {
	e.GET("/api/contacts", h.List)
	e.GET("/api/contacts/:phone", h.Get)
	e.PUT("/api/contacts/:phone/name", h.Rename)
	e.GET("/api/contacts/:phone/messages", h.Conversation)
	e.POST("/api/contacts/:phone/read", h.MarkRead)
}

func (h *ContactsHandler) List(c echo.Context) error {
	contacts, err := h.contacts.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list contacts failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list contacts")
	}
	if contacts == nil {
		contacts = []contact.Contact{}
	}
	return c.JSON(http.StatusOK, contacts)
}

func (h *ContactsHandler) Get(c echo.Context) error {
	found, err := h.contacts.Get(c.Request().Context(), c.Param("phone"))
	if err != nil {
		if errors.Is(err, contact.ErrContactNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "contact not found")
		}
		h.logger.Error("get contact failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get contact")
	}
	return c.JSON(http.StatusOK, found)
}

type renameRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=1,max=128"`
}

func (h *ContactsHandler) Rename(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	phone := c.Param("phone")
	if err := h.contacts.Rename(c.Request().Context(), phone, req.DisplayName); err != nil {
		if errors.Is(err, contact.ErrContactNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "contact not found")
		}
		h.logger.Error("rename contact failed", slog.String("phone", phone), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to rename contact")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ContactsHandler) Conversation(c echo.Context) error {
	tenantID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}

	phone := c.Param("phone")
	messages, err := h.messages.ListConversation(c.Request().Context(), tenantID, phone)
	if err != nil {
		h.logger.Error("list conversation failed", slog.String("phone", phone), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversation")
	}
	if messages == nil {
		messages = []message.Message{}
	}
	return c.JSON(http.StatusOK, messages)
}

func (h *ContactsHandler) MarkRead(c echo.Context) error {
	tenantID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}

	phone := c.Param("phone")
	if err := h.messages.MarkRead(c.Request().Context(), tenantID, phone); err != nil {
		h.logger.Error("mark read failed", slog.String("phone", phone), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark conversation read")
	}
	return c.NoContent(http.StatusNoContent)
}
