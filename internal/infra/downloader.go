package infra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/osmigrate/internal/domain"
)

// downloadTimeout bounds a single required-file fetch. Downloads are small
// (a signing key and a repo file) but remote mirrors can be slow.
const downloadTimeout = 5 * time.Minute

// HTTPDownloader implements domain.Downloader over plain HTTP(S).
type HTTPDownloader struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPDownloader creates a downloader.
func NewHTTPDownloader(logger *zap.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{Timeout: downloadTimeout},
		logger: logger,
	}
}

// Fetch retrieves the content at url.
func (d *HTTPDownloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	d.logger.Info("downloading file", zap.String("url", url))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch '%s': %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching '%s' returned status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from '%s': %w", url, err)
	}
	return data, nil
}

// FetchSigningKey retrieves url and validates the content as an armored key
// ring. A corrupt or truncated key download must never be written over the
// host's release key.
func (d *HTTPDownloader) FetchSigningKey(ctx context.Context, url string) ([]byte, error) {
	data, err := d.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := ValidateArmoredKey(data); err != nil {
		return nil, fmt.Errorf("downloaded signing key from '%s' is invalid: %w", url, err)
	}
	return data, nil
}

// ValidateArmoredKey checks that data parses as a non-empty armored key ring.
func ValidateArmoredKey(data []byte) error {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse armored key ring: %w", err)
	}
	if len(entities) == 0 {
		return fmt.Errorf("no keys found in key ring")
	}
	return nil
}

// Ensure HTTPDownloader implements domain.Downloader.
var _ domain.Downloader = (*HTTPDownloader)(nil)
