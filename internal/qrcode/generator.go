// Package qrcode renders payment links as scannable PNG images.
package qrcode

import (
	"fmt"
	"net/url"
	"strings"

	goqrcode "github.com/skip2/go-qrcode"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
)

const (
	// Size is the edge length of the rendered PNG in pixels.
	Size = 300
	// MaxURILength keeps codes scannable from a phone screen.
	MaxURILength = 2000
)

// Render encodes a payment URI as a Size x Size PNG with medium error recovery.
func Render(uri string) ([]byte, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("%w: empty payment link", domainErr.ErrEncoding)
	}
	if len(uri) > MaxURILength {
		return nil, fmt.Errorf("%w: payment link is %d characters, limit is %d", domainErr.ErrEncoding, len(uri), MaxURILength)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainErr.ErrEncoding, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", domainErr.ErrEncoding, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: payment link has no host", domainErr.ErrEncoding)
	}

	png, err := goqrcode.Encode(uri, goqrcode.Medium, Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainErr.ErrEncoding, err)
	}
	return png, nil
}
