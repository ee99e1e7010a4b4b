package tenant

import (
	"context"
	"errors"
	"time"
)

// ErrTenantNotFound indicates no tenant matched the lookup key.
var ErrTenantNotFound = errors.New("tenant not found")

// ErrDuplicateTenant indicates a channel id or verify token is already taken.
var ErrDuplicateTenant = errors.New("channel id or verify token already registered")

// Tenant is a business account owning one WhatsApp channel. All inbound
// traffic on that channel is attributed to it.
type Tenant struct {
	ID              string    `json:"id"`
	ChannelID       string    `json:"channel_id"`
	AccessToken     string    `json:"-"`
	APIVersion      string    `json:"api_version"`
	VerifyToken     string    `json:"-"`
	WebhookVerified bool      `json:"webhook_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateInput carries the fields needed to provision a tenant.
type CreateInput struct {
	ChannelID   string
	AccessToken string
	APIVersion  string
	VerifyToken string
}

// Resolver is the read surface the webhook pipeline needs.
type Resolver interface {
	GetByChannelID(ctx context.Context, channelID string) (Tenant, error)
	GetByVerifyToken(ctx context.Context, token string) (Tenant, error)
	MarkVerified(ctx context.Context, id string) error
}
