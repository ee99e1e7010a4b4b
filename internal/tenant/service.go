package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tenantColumns = `id, channel_id, access_token, api_version, verify_token, webhook_verified, created_at, updated_at`

// DBService reads and writes tenant accounts.
type DBService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a tenant service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *DBService {
	if log == nil {
		log = slog.Default()
	}
	return &DBService{
		pool:   pool,
		logger: log.With(slog.String("service", "tenant")),
	}
}

// Create provisions a tenant account.
func (s *DBService) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	if strings.TrimSpace(input.ChannelID) == "" {
		return Tenant{}, fmt.Errorf("channel id is required")
	}
	if strings.TrimSpace(input.VerifyToken) == "" {
		return Tenant{}, fmt.Errorf("verify token is required")
	}
	apiVersion := strings.TrimSpace(input.APIVersion)
	if apiVersion == "" {
		apiVersion = "v23.0"
	}
	now := time.Now().UTC()
	t := Tenant{
		ID:          uuid.NewString(),
		ChannelID:   strings.TrimSpace(input.ChannelID),
		AccessToken: input.AccessToken,
		APIVersion:  apiVersion,
		VerifyToken: input.VerifyToken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	query := `
		INSERT INTO tenants (id, channel_id, access_token, api_version, verify_token, webhook_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.ChannelID, t.AccessToken, t.APIVersion, t.VerifyToken, t.WebhookVerified, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Tenant{}, ErrDuplicateTenant
		}
		return Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	return t, nil
}

// GetByChannelID resolves the tenant owning a provider channel id.
func (s *DBService) GetByChannelID(ctx context.Context, channelID string) (Tenant, error) {
	return s.getByColumn(ctx, "channel_id", channelID)
}

// GetByVerifyToken resolves the tenant whose verification secret matches.
func (s *DBService) GetByVerifyToken(ctx context.Context, token string) (Tenant, error) {
	return s.getByColumn(ctx, "verify_token", token)
}

// GetByID resolves a tenant by its internal id.
func (s *DBService) GetByID(ctx context.Context, id string) (Tenant, error) {
	return s.getByColumn(ctx, "id", id)
}

// MarkVerified flips the webhook verification flag for a tenant.
func (s *DBService) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE tenants SET webhook_verified = TRUE, updated_at = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// List returns all tenants.
func (s *DBService) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *DBService) getByColumn(ctx context.Context, column, value string) (Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE ` + column + ` = $1`
	row := s.pool.QueryRow(ctx, query, value)
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, fmt.Errorf("get tenant by %s: %w", column, err)
	}
	return t, nil
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID, &t.ChannelID, &t.AccessToken, &t.APIVersion, &t.VerifyToken,
		&t.WebhookVerified, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}
