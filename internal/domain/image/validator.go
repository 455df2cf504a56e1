package image

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"fro-server/internal/platform/logging"
)

// Limits bounds what the validator accepts.
type Limits struct {
	MaxFileSize    int64
	MaxPixels      int64
	MaxWidth       int
	MaxHeight      int
	AllowedFormats []string
	EnableDeepScan bool
}

// CheckDimensions rejects a width or height over the caps, and a pixel count
// over MaxPixels. Zero caps are unlimited.
func (l Limits) CheckDimensions(width, height int) error {
	if (l.MaxWidth > 0 && width > l.MaxWidth) || (l.MaxHeight > 0 && height > l.MaxHeight) {
		return fmt.Errorf("%w: %dx%d (max %dx%d)", ErrTooLarge, width, height, l.MaxWidth, l.MaxHeight)
	}
	if l.MaxPixels <= 0 {
		return nil
	}
	if int64(width) > l.MaxPixels || int64(height) > l.MaxPixels {
		return fmt.Errorf("%w: %dx%d (max %d pixels)", ErrTooLarge, width, height, l.MaxPixels)
	}
	if pixels := int64(width) * int64(height); pixels > l.MaxPixels {
		return fmt.Errorf("%w: %d pixels (max %d)", ErrTooLarge, pixels, l.MaxPixels)
	}
	return nil
}

// DefaultLimits mirrors the default image configuration.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:    10 * 1024 * 1024,
		MaxPixels:      40_000_000,
		MaxWidth:       8192,
		MaxHeight:      8192,
		AllowedFormats: []string{"jpeg", "png", "gif", "webp"},
		EnableDeepScan: true,
	}
}

// ValidationResult captures the outcome of validation.
type ValidationResult struct {
	Format       string
	Width        int
	Height       int
	FileSize     int64
	SecurityRisk string
}

// SecurityValidator checks that bytes are a decodable, bounded image.
type SecurityValidator struct {
	limits Limits
	logger *logging.Logger
}

func NewSecurityValidator(limits Limits, logger *logging.Logger) *SecurityValidator {
	return &SecurityValidator{limits: limits, logger: logger}
}

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46},
}

var suspiciousPrefixes = [][]byte{
	{0x4D, 0x5A},             // PE executable
	{0x25, 0x50, 0x44, 0x46}, // PDF
	{0x50, 0x4B, 0x03, 0x04}, // zip
	{0x1F, 0x8B, 0x08},       // gzip
}

// Validate checks raw against the limits. declaredFormat may be empty.
func (v *SecurityValidator) Validate(raw []byte, declaredFormat string) (ValidationResult, error) {
	result := ValidationResult{FileSize: int64(len(raw))}
	declaredFormat = normalizeFormat(declaredFormat)

	if len(raw) == 0 {
		return result, ErrEmpty
	}
	if v.limits.MaxFileSize > 0 && int64(len(raw)) > v.limits.MaxFileSize {
		result.SecurityRisk = "file too large"
		v.logger.WarnTag("IMAGE", "oversized image rejected: size=%d max=%d", len(raw), v.limits.MaxFileSize)
		return result, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(raw), v.limits.MaxFileSize)
	}
	if declaredFormat != "" && !v.formatAllowed(declaredFormat) {
		result.SecurityRisk = "unapproved format"
		return result, fmt.Errorf("%w: %s", ErrUnsupportedFormat, declaredFormat)
	}
	if v.limits.EnableDeepScan {
		if risk := scanSuspicious(raw); risk != "" {
			result.SecurityRisk = risk
			v.logger.WarnTag("IMAGE", "suspicious image payload rejected: %s", risk)
			return result, fmt.Errorf("%w: %s", ErrSuspicious, risk)
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		result.SecurityRisk = "corrupted image data"
		if declaredFormat != "" && !signatureMatches(raw, declaredFormat) {
			v.logger.WarnTag("IMAGE", "file signature mismatch: declared=%s header=%x", declaredFormat, raw[:min(len(raw), 16)])
		}
		return result, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	result.Format = format
	if !v.formatAllowed(format) {
		result.SecurityRisk = "unapproved format"
		return result, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err := v.limits.CheckDimensions(cfg.Width, cfg.Height); err != nil {
		result.SecurityRisk = "dimensions too large"
		return result, err
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return result, fmt.Errorf("%w: zero dimension", ErrUndecodable)
	}

	result.Width = cfg.Width
	result.Height = cfg.Height
	v.logger.DebugTag("IMAGE", "image accepted: format=%s %dx%d size=%d", format, cfg.Width, cfg.Height, len(raw))
	return result, nil
}

func (v *SecurityValidator) formatAllowed(format string) bool {
	if len(v.limits.AllowedFormats) == 0 {
		return true
	}
	format = normalizeFormat(format)
	for _, allowed := range v.limits.AllowedFormats {
		if normalizeFormat(allowed) == format {
			return true
		}
	}
	return false
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

func signatureMatches(raw []byte, format string) bool {
	signature, ok := imageSignatures[format]
	if !ok {
		return true
	}
	return bytes.HasPrefix(raw, signature)
}

func scanSuspicious(raw []byte) string {
	for _, prefix := range suspiciousPrefixes {
		if bytes.HasPrefix(raw, prefix) {
			return fmt.Sprintf("foreign file signature %x", prefix)
		}
	}
	head := raw[:min(len(raw), 4096)]
	if bytes.Contains(bytes.ToLower(head), []byte("<svg")) {
		return "svg markup"
	}
	return ""
}
