package image

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmpty             = errors.New("image: empty payload")
	ErrTooLarge          = errors.New("image: payload too large")
	ErrUnsupportedFormat = errors.New("image: unsupported format")
	ErrUndecodable       = errors.New("image: payload is not a decodable image")
	ErrSuspicious        = errors.New("image: suspicious content")
	ErrMalformedDataURI  = errors.New("image: malformed data uri")
)

// Payload is an encoded still image ready to be sent for analysis.
// Values produced by a Pipeline are never empty and always decodable.
type Payload struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Empty reports whether the payload carries no bytes.
func (p *Payload) Empty() bool {
	return p == nil || len(p.Data) == 0
}

// Size returns the encoded size in bytes.
func (p *Payload) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Data)
}

// Base64 returns the standard base64 encoding of the image bytes.
func (p *Payload) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// DataURI renders the payload as data:<mime>;base64,<data>.
func (p *Payload) DataURI() string {
	return "data:" + p.MIMEType + ";base64," + p.Base64()
}

// ParseDataURI decodes a base64 data URI. Only the MIME type and bytes are
// filled; run the bytes through a Pipeline to validate them.
func ParseDataURI(uri string) (*Payload, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrMalformedDataURI)
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing comma", ErrMalformedDataURI)
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("%w: only base64 data uris are supported", ErrMalformedDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataURI, err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return &Payload{Data: data, MIMEType: mime}, nil
}

// MIMEType maps a decoder format name to its MIME type.
func MIMEType(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// FormatFromMIME is the inverse of MIMEType; unknown types yield "".
func FormatFromMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return ""
	}
}
