package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01")
	webpBytes = []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00")
	gifBytes  = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00")
)

func TestNewImage(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		wantMIME string
		wantErr  error
	}{
		{name: "png sniffed", data: pngBytes, wantMIME: "image/png"},
		{name: "jpeg sniffed", data: jpegBytes, wantMIME: "image/jpeg"},
		{name: "webp sniffed", data: webpBytes, wantMIME: "image/webp"},
		{name: "declared jpg alias", data: jpegBytes, declared: "image/jpg", wantMIME: "image/jpeg"},
		{name: "declared accepted type wins", data: pngBytes, declared: "image/webp", wantMIME: "image/webp"},
		{name: "declared foreign type ignored", data: pngBytes, declared: "application/octet-stream", wantMIME: "image/png"},
		{name: "gif rejected", data: gifBytes, declared: "image/gif", wantErr: ErrUnsupportedType},
		{name: "text rejected", data: []byte("hello there"), wantErr: ErrUnsupportedType},
		{name: "empty rejected", data: nil, wantErr: ErrEmptyImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := NewImage(tt.data, tt.declared)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, img)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMIME, img.MIME)
			assert.Equal(t, tt.data, img.Data)
		})
	}
}

func TestDecodeBase64(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString(pngBytes)

	img, err := DecodeBase64(raw, "image/png")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img.Data)

	img, err = DecodeBase64("data:image/webp;base64,"+base64.StdEncoding.EncodeToString(webpBytes), "")
	require.NoError(t, err)
	assert.Equal(t, "image/webp", img.MIME)

	_, err = DecodeBase64("data:image/png;base64", "")
	assert.Error(t, err)

	_, err = DecodeBase64("***", "image/png")
	assert.Error(t, err)

	_, err = DecodeBase64("  ", "image/png")
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestReadUploadLimit(t *testing.T) {
	_, err := ReadUpload(bytes.NewReader(pngBytes), "image/png", int64(len(pngBytes)-1))
	assert.ErrorIs(t, err, ErrTooLarge)

	img, err := ReadUpload(bytes.NewReader(pngBytes), "image/png", int64(len(pngBytes)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIME)
}

func TestDataURI(t *testing.T) {
	img := &Image{Data: []byte("abc"), MIME: "image/png"}

	assert.Equal(t, "data:image/png;base64,YWJj", img.DataURI())
	assert.Equal(t, "data:image/jpeg;base64,YWJj", img.DataURIAs(VisionLabel))
}
