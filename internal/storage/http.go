package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/httpclient"
)

// HTTPStore is an object store reached with GET and PUT on baseURL/key.
type HTTPStore struct {
	baseURL *url.URL
	token   string
	client  *httpclient.Client
}

// NewHTTP creates the HTTP backend. Failed requests are retried with
// backoff up to cfg.RetryMax times; uploads must be seekable to be retried.
func NewHTTP(cfg config.HTTPStorageConfig, logger *slog.Logger) (*HTTPStore, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("storage.http.base_url must be an absolute URL: %q", cfg.BaseURL)
	}

	hc := httpclient.DefaultConfig()
	hc.Timeout = cfg.Timeout
	hc.RetryMax = cfg.RetryMax
	hc.Logger = logger
	// media is already compressed; ask for identity so sizes stay exact
	hc.EnableDecompression = false

	return &HTTPStore{baseURL: base, token: cfg.Token, client: httpclient.New(hc)}, nil
}

func (h *HTTPStore) objectURL(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	ref := &url.URL{Path: cleaned}
	return h.baseURL.ResolveReference(ref).String(), nil
}

func (h *HTTPStore) authorize(req *retryablehttp.Request) {
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
}

// Download fetches the object at key.
func (h *HTTPStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	u, err := h.objectURL(key)
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	case resp.StatusCode >= 300:
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: store returned status %d", key, resp.StatusCode)
	}
	return resp.Body, nil
}

// Upload PUTs r to key.
func (h *HTTPStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	u, err := h.objectURL(key)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, u, r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if size >= 0 {
		req.ContentLength = size
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("storing %s: store returned status %d", key, resp.StatusCode)
	}
	return nil
}

var _ Client = (*HTTPStore)(nil)
