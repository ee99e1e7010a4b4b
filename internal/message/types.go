package message

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotFound indicates no message row exists for the id.
var ErrMessageNotFound = errors.New("message not found")

// MediaDescriptor is the structured side-channel stored next to a non-text
// message. Field names are part of the persisted wire format and must not
// change; the dashboard parses them by name.
type MediaDescriptor struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Voice    bool   `json:"voice,omitempty"`

	// Relay outcome. Uploaded is true iff MediaURL is set.
	MediaURL        *string    `json:"media_url"`
	Uploaded        bool       `json:"s3_uploaded"`
	UploadTimestamp *time.Time `json:"upload_timestamp"`
	UploadError     *string    `json:"upload_error"`
}

// Message is one persisted conversation entry. ID carries the provider's
// message id, which makes redelivered batches naturally idempotent.
type Message struct {
	ID          string           `json:"id"`
	SenderID    string           `json:"sender_id"`
	ReceiverID  string           `json:"receiver_id"`
	Content     string           `json:"content"`
	Timestamp   time.Time        `json:"timestamp"`
	IsSentByMe  bool             `json:"is_sent_by_me"`
	IsRead      bool             `json:"is_read"`
	MessageType string           `json:"message_type"`
	Media       *MediaDescriptor `json:"media_data,omitempty"`
}

// Writer is the persistence surface the webhook pipeline needs.
type Writer interface {
	Persist(ctx context.Context, msg Message) (bool, error)
}
