package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `id, sender_id, receiver_id, content, sent_at, is_sent_by_me, is_read, message_type, media_data`

// DBService persists and reads conversation messages.
type DBService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a message service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *DBService {
	if log == nil {
		log = slog.Default()
	}
	return &DBService{
		pool:   pool,
		logger: log.With(slog.String("service", "message")),
	}
}

// Persist writes one message row. Redelivery of an already-stored provider
// message id is a no-op; the bool result reports whether a row was written.
func (s *DBService) Persist(ctx context.Context, msg Message) (bool, error) {
	if strings.TrimSpace(msg.ID) == "" {
		return false, fmt.Errorf("message id is required")
	}
	var mediaBytes []byte
	if msg.Media != nil {
		var err error
		mediaBytes, err = json.Marshal(msg.Media)
		if err != nil {
			return false, fmt.Errorf("marshal media descriptor: %w", err)
		}
	}
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, content, sent_at, is_sent_by_me, is_read, message_type, media_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.Timestamp,
		msg.IsSentByMe, msg.IsRead, msg.MessageType, mediaBytes,
	)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns one message by provider id.
func (s *DBService) Get(ctx context.Context, id string) (Message, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrMessageNotFound
		}
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// ListConversation returns all messages between a tenant and a contact in
// insertion order, which preserves per-sender envelope order.
func (s *DBService) ListConversation(ctx context.Context, tenantID, phone string) ([]Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY seq
	`
	rows, err := s.pool.Query(ctx, query, phone, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkRead marks all inbound messages from a contact as read.
func (s *DBService) MarkRead(ctx context.Context, tenantID, phone string) error {
	query := `
		UPDATE messages SET is_read = TRUE
		WHERE sender_id = $1 AND receiver_id = $2 AND NOT is_read
	`
	if _, err := s.pool.Exec(ctx, query, phone, tenantID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// UpdateMedia replaces the stored media descriptor for a message. Used by
// the relay refresh path after a successful retry.
func (s *DBService) UpdateMedia(ctx context.Context, id string, media *MediaDescriptor) error {
	mediaBytes, err := json.Marshal(media)
	if err != nil {
		return fmt.Errorf("marshal media descriptor: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET media_data = $2 WHERE id = $1`, id, mediaBytes)
	if err != nil {
		return fmt.Errorf("update media descriptor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var msg Message
	var mediaBytes []byte
	err := row.Scan(
		&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Timestamp,
		&msg.IsSentByMe, &msg.IsRead, &msg.MessageType, &mediaBytes,
	)
	if err != nil {
		return Message{}, err
	}
	if len(mediaBytes) > 0 {
		var media MediaDescriptor
		if err := json.Unmarshal(mediaBytes, &media); err != nil {
			slog.Warn("decode media descriptor failed", slog.String("message_id", msg.ID), slog.Any("error", err))
		} else {
			msg.Media = &media
		}
	}
	return msg, nil
}
