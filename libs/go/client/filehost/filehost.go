// Package filehost is a thin client for the CDN-fronted object store
// that serves shared-instance override files, per spec §4.8. No
// example repo in the pack ships a client for this kind of host, so
// this is a plain net/http shim (documented as a stdlib exception in
// DESIGN.md) rather than an adopted SDK.
package filehost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
)

type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func New(baseURL, authToken string) *Client {
	return &Client{baseURL: baseURL, authToken: authToken, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// Upload stores an override's bytes under a content-addressed key and
// returns the CDN URL clients download it from.
func (c *Client) Upload(ctx context.Context, sha512 string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/overrides/%s", c.baseURL, sha512), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.Transient, "filehost: upload failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", apperr.New(apperr.Transient, fmt.Sprintf("filehost: upload failed with status %d", resp.StatusCode))
	}
	return fmt.Sprintf("%s/overrides/%s", c.baseURL, sha512), nil
}

// Download fetches override bytes by CDN URL. Used server-side only
// when a sync path needs to verify content rather than hand the URL
// to the client for a direct download.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "filehost: download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apperr.New(apperr.Transient, fmt.Sprintf("filehost: download failed with status %d", resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}
