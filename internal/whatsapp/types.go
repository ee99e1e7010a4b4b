// Package whatsapp models the WhatsApp Business Cloud API webhook payloads
// and wraps the provider's media endpoints.
package whatsapp

// WebhookPayload is the top-level webhook delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents one business account entry.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps a single change notification.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue holds one delivery batch: the receiving channel metadata plus
// the messages and contact profiles it carries.
type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
}

// Metadata identifies the business phone number that received the batch.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact pairs a sender phone number with its profile name.
type Contact struct {
	WaID    string         `json:"wa_id"`
	Profile ContactProfile `json:"profile"`
}

// ContactProfile has the display name.
type ContactProfile struct {
	Name string `json:"name"`
}

// Message is one inbound message as delivered by the provider. Exactly one
// of the type-specific payload fields is set, matching Type.
type Message struct {
	ID        string       `json:"id"`
	From      string       `json:"from"`
	Timestamp string       `json:"timestamp"`
	Type      string       `json:"type"`
	Text      *TextContent `json:"text,omitempty"`
	Image     *MediaInfo   `json:"image,omitempty"`
	Document  *MediaInfo   `json:"document,omitempty"`
	Audio     *MediaInfo   `json:"audio,omitempty"`
	Video     *MediaInfo   `json:"video,omitempty"`
	Sticker   *MediaInfo   `json:"sticker,omitempty"`
}

// TextContent holds a text message body.
type TextContent struct {
	Body string `json:"body"`
}

// MediaInfo describes a provider-hosted media attachment.
type MediaInfo struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

// ContactName returns the profile name registered for a sender phone number,
// falling back to the number itself.
func (v ChangeValue) ContactName(phone string) string {
	for _, c := range v.Contacts {
		if c.WaID == phone && c.Profile.Name != "" {
			return c.Profile.Name
		}
	}
	return phone
}
