package whatsapp

import "fmt"

// Message type values delivered by the provider.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeDocument = "document"
	TypeAudio    = "audio"
	TypeVideo    = "video"
	TypeSticker  = "sticker"
)

// MediaSeed is the pre-relay media descriptor extracted from a message.
type MediaSeed struct {
	Type     string
	ID       string
	MimeType string
	SHA256   string
	Filename string
	Caption  string
	Voice    bool
}

// Classified is the normalized form of one inbound message.
type Classified struct {
	Content     string
	MessageType string
	Media       *MediaSeed
}

// Classify maps a raw message to display content, its type, and an optional
// media seed. It is total: unknown types degrade to a placeholder and never
// produce media; missing nested payloads default to empty fields.
func Classify(msg Message) Classified {
	switch msg.Type {
	case TypeText:
		var body string
		if msg.Text != nil {
			body = msg.Text.Body
		}
		return Classified{Content: body, MessageType: TypeText}

	case TypeImage:
		seed := seedFromInfo(TypeImage, msg.Image)
		content := "[Image]"
		if seed.Caption != "" {
			content = seed.Caption
		}
		return Classified{Content: content, MessageType: TypeImage, Media: seed}

	case TypeDocument:
		seed := seedFromInfo(TypeDocument, msg.Document)
		filename := seed.Filename
		if filename == "" {
			filename = "Unknown"
		}
		return Classified{
			Content:     fmt.Sprintf("[Document: %s]", filename),
			MessageType: TypeDocument,
			Media:       seed,
		}

	case TypeAudio:
		seed := seedFromInfo(TypeAudio, msg.Audio)
		content := "[Audio]"
		if seed.Voice {
			content = "[Voice Message]"
		}
		return Classified{Content: content, MessageType: TypeAudio, Media: seed}

	case TypeVideo:
		seed := seedFromInfo(TypeVideo, msg.Video)
		content := "[Video]"
		if seed.Caption != "" {
			content = seed.Caption
		}
		return Classified{Content: content, MessageType: TypeVideo, Media: seed}

	case TypeSticker:
		seed := seedFromInfo(TypeSticker, msg.Sticker)
		seed.Caption = ""
		seed.Filename = ""
		return Classified{Content: "[Sticker]", MessageType: TypeSticker, Media: seed}

	default:
		return Classified{
			Content:     fmt.Sprintf("[Unsupported message type: %s]", msg.Type),
			MessageType: msg.Type,
		}
	}
}

func seedFromInfo(mediaType string, info *MediaInfo) *MediaSeed {
	seed := &MediaSeed{Type: mediaType}
	if info == nil {
		return seed
	}
	seed.ID = info.ID
	seed.MimeType = info.MimeType
	seed.SHA256 = info.SHA256
	seed.Filename = info.Filename
	seed.Caption = info.Caption
	seed.Voice = info.Voice
	return seed
}
