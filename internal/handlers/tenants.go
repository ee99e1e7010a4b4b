package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wadeskhq/wadesk/internal/auth"
	"github.com/wadeskhq/wadesk/internal/tenant"
)

type tenantStore interface {
	Create(ctx context.Context, input tenant.CreateInput) (tenant.Tenant, error)
	List(ctx context.Context) ([]tenant.Tenant, error)
	GetByID(ctx context.Context, id string) (tenant.Tenant, error)
}

// TenantsHandler provisions tenant accounts and issues their dashboard
// tokens.
type TenantsHandler struct {
	tenants      tenantStore
	jwtSecret    string
	jwtExpiresIn time.Duration
	logger       *slog.Logger
}

// NewTenantsHandler creates the tenants API handler.
func NewTenantsHandler(log *slog.Logger, tenants tenantStore, jwtSecret string, jwtExpiresIn time.Duration) *TenantsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TenantsHandler{
		tenants:      tenants,
		jwtSecret:    jwtSecret,
		jwtExpiresIn: jwtExpiresIn,
		logger:       log.With(slog.String("handler", "tenants")),
	}
}

func (h *TenantsHandler) Register(e *echo.Echo) {
	e.POST("/api/tenants", h.Create)
	e.GET("/api/tenants", h.List)
	e.GET("/api/tenants/:id", h.Get)
	e.POST("/api/tenants/:id/token", h.IssueToken)
}

type createTenantRequest struct {
	ChannelID   string `json:"channel_id" validate:"required"`
	AccessToken string `json:"access_token" validate:"required"`
	APIVersion  string `json:"api_version"`
	VerifyToken string `json:"verify_token" validate:"required,min=8"`
}

func (h *TenantsHandler) Create(c echo.Context) error {
	var req createTenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	created, err := h.tenants.Create(c.Request().Context(), tenant.CreateInput{
		ChannelID:   req.ChannelID,
		AccessToken: req.AccessToken,
		APIVersion:  req.APIVersion,
		VerifyToken: req.VerifyToken,
	})
	if err != nil {
		if errors.Is(err, tenant.ErrDuplicateTenant) {
			return echo.NewHTTPError(http.StatusConflict, "channel id or verify token already registered")
		}
		h.logger.Error("create tenant failed", slog.String("channel_id", req.ChannelID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create tenant")
	}

	h.logger.Info("tenant created",
		slog.String("tenant_id", created.ID),
		slog.String("channel_id", created.ChannelID),
	)
	return c.JSON(http.StatusCreated, created)
}

func (h *TenantsHandler) List(c echo.Context) error {
	tenants, err := h.tenants.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list tenants failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list tenants")
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	return c.JSON(http.StatusOK, tenants)
}

func (h *TenantsHandler) Get(c echo.Context) error {
	found, err := h.tenants.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		h.logger.Error("get tenant failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get tenant")
	}
	return c.JSON(http.StatusOK, found)
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken mints a dashboard JWT scoped to one tenant.
func (h *TenantsHandler) IssueToken(c echo.Context) error {
	found, err := h.tenants.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		h.logger.Error("get tenant failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get tenant")
	}

	signed, expiresAt, err := auth.GenerateToken(found.ID, h.jwtSecret, h.jwtExpiresIn)
	if err != nil {
		h.logger.Error("issue token failed", slog.String("tenant_id", found.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: signed, ExpiresAt: expiresAt})
}
