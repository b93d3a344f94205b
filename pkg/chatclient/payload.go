package chatclient

import (
	"encoding/json"
	"errors"
	"strings"

	"chatcore/internal/domain"
)

type PayloadKind string

const (
	KindText  PayloadKind = "text"
	KindFile  PayloadKind = "file"
	KindAlbum PayloadKind = "album"
)

var ErrInvalidPayload = errors.New("chatclient: invalid payload")

// FileRef points at an attachment stored outside the relay. The attachment
// itself is encrypted by the uploader; KeyB64 travels only inside the
// encrypted message body.
type FileRef struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	KeyB64   string `json:"keyB64,omitempty"`
}

// Payload is the plaintext carried inside an encrypted message.
type Payload struct {
	Kind    PayloadKind `json:"k"`
	Text    string      `json:"text,omitempty"`
	File    *FileRef    `json:"file,omitempty"`
	Items   []FileRef   `json:"items,omitempty"`
	Caption string      `json:"caption,omitempty"`
}

func TextPayload(text string) Payload { return Payload{Kind: KindText, Text: text} }

func FilePayload(f FileRef, caption string) Payload {
	return Payload{Kind: KindFile, File: &f, Caption: caption}
}

func AlbumPayload(items []FileRef, caption string) Payload {
	return Payload{Kind: KindAlbum, Items: items, Caption: caption}
}

// MessageType is the cleartext tag stored next to the ciphertext.
func (p Payload) MessageType() domain.MessageType {
	switch p.Kind {
	case KindAlbum:
		return domain.MessageImage
	case KindFile:
		if p.File != nil && strings.HasPrefix(p.File.MimeType, "image/") {
			return domain.MessageImage
		}
	}
	return domain.MessageText
}

// Preview is a short cleartext rendering for lists and terminals.
func (p Payload) Preview() string {
	switch p.Kind {
	case KindFile:
		if p.File != nil && p.File.Name != "" {
			return "[file] " + p.File.Name
		}
		return "[file]"
	case KindAlbum:
		return "[album]"
	default:
		return p.Text
	}
}

func EncodePayload(p Payload) ([]byte, error) {
	switch p.Kind {
	case KindText:
	case KindFile:
		if p.File == nil || p.File.URL == "" {
			return nil, errors.Join(ErrInvalidPayload, errors.New("file payload needs a url"))
		}
	case KindAlbum:
		if len(p.Items) == 0 {
			return nil, errors.Join(ErrInvalidPayload, errors.New("album payload needs items"))
		}
	default:
		return nil, errors.Join(ErrInvalidPayload, errors.New("unknown payload kind"))
	}
	return json.Marshal(p)
}

// DecodePayload never fails: bytes that are not a known tagged payload are
// rendered as plain text.
func DecodePayload(raw []byte) Payload {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return TextPayload(string(raw))
	}
	switch p.Kind {
	case KindText:
		return p
	case KindFile:
		if p.File != nil {
			return p
		}
	case KindAlbum:
		if len(p.Items) > 0 {
			return p
		}
	}
	return TextPayload(string(raw))
}
