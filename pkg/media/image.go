// Package media holds the single optional image a user attaches to a turn.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/h2non/filetype"
)

// VisionLabel is the MIME type declared to the vision endpoint regardless of
// what was uploaded. Callers opt out with DataURI.
const VisionLabel = "image/jpeg"

var (
	ErrEmptyImage      = errors.New("media: empty image")
	ErrUnsupportedType = errors.New("media: unsupported image type")
	ErrTooLarge        = errors.New("media: image exceeds upload limit")
)

// accepted maps sniffed extensions to the MIME type reported for them.
var accepted = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"webp": "image/webp",
}

// AcceptAttr is the uploader's type filter in <input accept> form.
const AcceptAttr = ".png,.jpg,.jpeg,.webp,image/png,image/jpeg,image/webp"

type Image struct {
	Data []byte
	MIME string
}

// NewImage sniffs data and rejects anything that is not png, jpeg or webp.
// The declared MIME type wins when it names an accepted type.
func NewImage(data []byte, declared string) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	sniffed, ok := accepted[kind.Extension]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, describeKind(kind.MIME.Value))
	}

	mime := sniffed
	if d := normalizeMIME(declared); isAcceptedMIME(d) {
		mime = d
	}
	return &Image{Data: data, MIME: mime}, nil
}

// DecodeBase64 accepts either bare base64 or a data URI as produced by a
// browser FileReader.
func DecodeBase64(payload, declared string) (*Image, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmptyImage
	}
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return nil, fmt.Errorf("media: malformed data URI")
		}
		if declared == "" {
			declared, _, _ = strings.Cut(header, ";")
		}
		payload = body
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("media: decoding base64: %w", err)
	}
	return NewImage(data, declared)
}

// ReadUpload reads at most max bytes from r.
func ReadUpload(r io.Reader, declared string, max int64) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("media: reading upload: %w", err)
	}
	if int64(len(data)) > max {
		return nil, ErrTooLarge
	}
	return NewImage(data, declared)
}

func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI encodes the image under its own MIME type.
func (i *Image) DataURI() string {
	return i.DataURIAs(i.MIME)
}

func (i *Image) DataURIAs(mime string) string {
	return "data:" + mime + ";base64," + i.Base64()
}

func normalizeMIME(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "image/jpg" {
		return "image/jpeg"
	}
	return m
}

func isAcceptedMIME(m string) bool {
	for _, v := range accepted {
		if v == m {
			return true
		}
	}
	return false
}

func describeKind(mime string) string {
	if mime == "" {
		return "unknown"
	}
	return mime
}
