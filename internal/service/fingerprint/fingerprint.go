// Package fingerprint downloads avatar images and computes their content hash.
// Two images are the same picture iff their hashes are equal.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"profilewatch/internal/profile"
)

// ComputeHash returns the hex SHA-256 digest of b.
func ComputeHash(b []byte) profile.ContentHash {
	sum := sha256.Sum256(b)
	return profile.ContentHash(hex.EncodeToString(sum[:]))
}

// Image is a downloaded picture and its hash.
type Image struct {
	Bytes       []byte
	Hash        profile.ContentHash
	ContentType string
}

// Config configures the fetcher.
type Config struct {
	Timeout   time.Duration // Default: 30s.
	MaxBytes  int64         // Default: 5MB.
	UserAgent string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "profilewatch/1.0"
	}
}

// Fetcher downloads images over HTTP/2 when the server offers it.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	cfg.defaults()
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to configure http2: %w", err)
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config: cfg,
	}, nil
}

// NewWithClient creates a Fetcher around an existing client.
func NewWithClient(client *http.Client, cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{client: client, config: cfg}
}

// FetchAndHash downloads url and hashes the body. An absent URL yields
// ErrNoURL; everything else that goes wrong is a *profile.NetworkError.
func (f *Fetcher) FetchAndHash(ctx context.Context, url profile.Optional[string]) (*Image, error) {
	u, ok := url.Get()
	if !ok || u == "" {
		return nil, &profile.NetworkError{Err: profile.ErrNoURL}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &profile.NetworkError{URL: u, Err: err}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &profile.NetworkError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &profile.NetworkError{
			URL:        u,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	// Read one byte past the cap to tell "exactly at the limit" from "over".
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return nil, &profile.NetworkError{URL: u, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(body)) > f.config.MaxBytes {
		return nil, &profile.NetworkError{URL: u, Err: profile.ErrTooLarge}
	}

	return &Image{
		Bytes:       body,
		Hash:        ComputeHash(body),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
