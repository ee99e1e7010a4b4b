// Package contact tracks counterpart phone numbers seen on inbound traffic.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrContactNotFound indicates no contact row exists for the phone number.
var ErrContactNotFound = errors.New("contact not found")

// Contact is a phone number known to the system.
type Contact struct {
	PhoneNumber string    `json:"phone_number"`
	DisplayName string    `json:"display_name"`
	LastActive  time.Time `json:"last_active"`
}

// Upserter is the write surface the webhook pipeline needs.
type Upserter interface {
	Upsert(ctx context.Context, phone, displayName string, lastActive time.Time) error
}

// DBService reads and writes contact rows.
type DBService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a contact service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *DBService {
	if log == nil {
		log = slog.Default()
	}
	return &DBService{
		pool:   pool,
		logger: log.With(slog.String("service", "contact")),
	}
}

// Upsert creates the contact on first sight and only refreshes last_active
// afterwards. Display names are user-governed once set, so the conflict
// branch never touches display_name. The single statement keeps the
// operation atomic under overlapping webhook deliveries.
func (s *DBService) Upsert(ctx context.Context, phone, displayName string, lastActive time.Time) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = phone
	}
	query := `
		INSERT INTO contacts (phone_number, display_name, last_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone_number) DO UPDATE SET last_active = EXCLUDED.last_active
	`
	if _, err := s.pool.Exec(ctx, query, phone, displayName, lastActive); err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

// Rename sets a contact's display name.
func (s *DBService) Rename(ctx context.Context, phone, displayName string) error {
	if strings.TrimSpace(displayName) == "" {
		return fmt.Errorf("display name is required")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET display_name = $2 WHERE phone_number = $1`,
		strings.TrimSpace(phone), strings.TrimSpace(displayName),
	)
	if err != nil {
		return fmt.Errorf("rename contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

// Get returns one contact by phone number.
func (s *DBService) Get(ctx context.Context, phone string) (Contact, error) {
	var c Contact
	err := s.pool.QueryRow(ctx,
		`SELECT phone_number, display_name, last_active FROM contacts WHERE phone_number = $1`,
		strings.TrimSpace(phone),
	).Scan(&c.PhoneNumber, &c.DisplayName, &c.LastActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrContactNotFound
		}
		return Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// List returns contacts ordered by most recent activity.
func (s *DBService) List(ctx context.Context) ([]Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT phone_number, display_name, last_active FROM contacts ORDER BY last_active DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.PhoneNumber, &c.DisplayName, &c.LastActive); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
