package chatclient

import (
	"testing"

	"chatcore/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadEncodeDecode(t *testing.T) {
	file := FilePayload(FileRef{URL: "https://files.example/a.pdf", Name: "a.pdf", MimeType: "application/pdf", Size: 12}, "report")
	for _, p := range []Payload{
		TextPayload("hello"),
		file,
		AlbumPayload([]FileRef{{URL: "https://files.example/1.png", MimeType: "image/png"}}, ""),
	} {
		raw, err := EncodePayload(p)
		require.NoError(t, err)
		assert.Equal(t, p, DecodePayload(raw))
	}
	assert.Equal(t, domain.MessageText, file.MessageType())
	assert.Equal(t, "[file] a.pdf", file.Preview())
}

func TestPayloadMessageType(t *testing.T) {
	img := FilePayload(FileRef{URL: "u", MimeType: "image/jpeg"}, "")
	assert.Equal(t, domain.MessageImage, img.MessageType())
	assert.Equal(t, domain.MessageImage, AlbumPayload([]FileRef{{URL: "u"}}, "").MessageType())
	assert.Equal(t, domain.MessageText, TextPayload("x").MessageType())
}

func TestEncodePayloadRejectsIncomplete(t *testing.T) {
	for _, p := range []Payload{
		{Kind: KindFile},
		{Kind: KindFile, File: &FileRef{}},
		{Kind: KindAlbum},
		{Kind: "sticker"},
	} {
		_, err := EncodePayload(p)
		assert.ErrorIs(t, err, ErrInvalidPayload, "kind %q", p.Kind)
	}
}

func TestDecodePayloadFallsBackToText(t *testing.T) {
	for _, raw := range []string{
		"plain words",
		`{"k":"file"}`,
		`{"k":"album","items":[]}`,
		`{"k":"unknown","text":"x"}`,
		`[1,2,3]`,
	} {
		got := DecodePayload([]byte(raw))
		assert.Equal(t, KindText, got.Kind, raw)
		assert.Equal(t, raw, got.Text)
	}
}
