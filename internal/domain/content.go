package domain

import (
	"encoding/json"
	"fmt"
)

// ContentKind tags the serialized payload carried in a message's content
// field. Text-like kinds carry the text itself; structured kinds carry a
// compact JSON payload.
type ContentKind string

const (
	KindText           ContentKind = "text"
	KindAttributedText ContentKind = "attributed_text"
	KindPhoto          ContentKind = "photo"
	KindVideo          ContentKind = "video"
	KindLocation       ContentKind = "location"
	KindEmoji          ContentKind = "emoji"
	KindAudio          ContentKind = "audio"
	KindContact        ContentKind = "contact"
	KindLinkPreview    ContentKind = "link_preview"
	KindCustom         ContentKind = "custom"
)

// Valid reports whether k is a known content kind.
func (k ContentKind) Valid() bool {
	switch k {
	case KindText, KindAttributedText, KindPhoto, KindVideo, KindLocation,
		KindEmoji, KindAudio, KindContact, KindLinkPreview, KindCustom:
		return true
	}
	return false
}

// IsText reports whether the content field holds plain text rather than a
// JSON payload.
func (k ContentKind) IsText() bool {
	return k == KindText || k == KindAttributedText || k == KindEmoji
}

// MediaPayload is the content of photo, video and audio messages.
type MediaPayload struct {
	URL            string `json:"url"`
	PlaceholderURL string `json:"placeholder_url,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	DurationMS     int64  `json:"duration_ms,omitempty"`
}

// LocationPayload is the content of location messages.
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ContactPayload is the content of contact-card messages.
type ContactPayload struct {
	DisplayName string   `json:"display_name"`
	Phones      []string `json:"phones,omitempty"`
	Emails      []string `json:"emails,omitempty"`
}

// LinkPreviewPayload is the content of link-preview messages.
type LinkPreviewPayload struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// EncodeContent serializes a structured payload into a message content
// string. Text-like kinds should be stored directly without encoding.
func EncodeContent(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return string(b), nil
}

func decodeContent(kind ContentKind, content string, v any) error {
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("decode %s content: %w", kind, ErrParse)
	}
	return nil
}

// DecodeMedia parses the content of a photo, video or audio message.
func DecodeMedia(m *Message) (MediaPayload, error) {
	var p MediaPayload
	if m.Kind != KindPhoto && m.Kind != KindVideo && m.Kind != KindAudio {
		return p, fmt.Errorf("message kind %s is not media: %w", m.Kind, ErrInvalidInput)
	}
	err := decodeContent(m.Kind, m.Content, &p)
	return p, err
}

// DecodeLocation parses the content of a location message.
func DecodeLocation(m *Message) (LocationPayload, error) {
	var p LocationPayload
	if m.Kind != KindLocation {
		return p, fmt.Errorf("message kind %s is not location: %w", m.Kind, ErrInvalidInput)
	}
	err := decodeContent(m.Kind, m.Content, &p)
	return p, err
}

// DecodeContact parses the content of a contact message.
func DecodeContact(m *Message) (ContactPayload, error) {
	var p ContactPayload
	if m.Kind != KindContact {
		return p, fmt.Errorf("message kind %s is not contact: %w", m.Kind, ErrInvalidInput)
	}
	err := decodeContent(m.Kind, m.Content, &p)
	return p, err
}

// DecodeLinkPreview parses the content of a link-preview message.
func DecodeLinkPreview(m *Message) (LinkPreviewPayload, error) {
	var p LinkPreviewPayload
	if m.Kind != KindLinkPreview {
		return p, fmt.Errorf("message kind %s is not link preview: %w", m.Kind, ErrInvalidInput)
	}
	err := decodeContent(m.Kind, m.Content, &p)
	return p, err
}

// PreviewText renders the human-readable latest-message preview for a
// message. Text-like kinds show the text itself; structured kinds show a
// short label.
func PreviewText(m *Message) string {
	switch m.Kind {
	case KindText, KindAttributedText, KindEmoji:
		return m.Content
	case KindPhoto:
		return "Photo"
	case KindVideo:
		return "Video"
	case KindAudio:
		return "Audio"
	case KindLocation:
		return "Location"
	case KindContact:
		return "Contact"
	case KindLinkPreview:
		var p LinkPreviewPayload
		if err := decodeContent(m.Kind, m.Content, &p); err == nil {
			if p.Title != "" {
				return p.Title
			}
			return p.URL
		}
		return "Link"
	default:
		return "Attachment"
	}
}
