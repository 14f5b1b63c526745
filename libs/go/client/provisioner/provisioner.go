// Package provisioner is a thin client for the Archon-shaped server
// provisioning adapter of spec §6. Like taxproc, it is a plain
// net/http JSON shim — no ecosystem SDK exists for it.
package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
)

type Client struct {
	baseURL    string
	masterKey  string
	httpClient *http.Client
}

func New(baseURL, masterKey string) *Client {
	return &Client{baseURL: baseURL, masterKey: masterKey, httpClient: &http.Client{Timeout: 15 * time.Second}}
}

type ServerSpecs struct {
	MemoryMB int32 `json:"memory_mb"`
	CPU      int32 `json:"cpu"`
	SwapMB   int32 `json:"swap_mb"`
	StorageMB int32 `json:"storage_mb"`
}

type CreateServerRequest struct {
	UserID int64       `json:"user_id"`
	Name   string      `json:"name"`
	Specs  ServerSpecs `json:"specs"`
	Region string      `json:"region"`
	Source string      `json:"source"`
	Tags   []string    `json:"tags"`
}

type CreateServerResponse struct {
	UUID string `json:"uuid"`
}

// CreateServer is idempotent by modrinth server-id; the caller passes
// a stable server id as part of Tags so a retried call reconciles to
// the same server.
func (c *Client) CreateServer(ctx context.Context, req CreateServerRequest) (CreateServerResponse, error) {
	var out CreateServerResponse
	if err := c.do(ctx, http.MethodPost, "/servers", req, &out); err != nil {
		return CreateServerResponse{}, err
	}
	return out, nil
}

type SuspendReason string

const (
	SuspendCancelled     SuspendReason = "cancelled"
	SuspendPaymentFailed SuspendReason = "paymentfailed"
)

func (c *Client) Suspend(ctx context.Context, serverID string, reason SuspendReason) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/servers/%s/suspend", serverID), map[string]string{"reason": string(reason)}, nil)
}

func (c *Client) Unsuspend(ctx context.Context, serverID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/servers/%s/unsuspend", serverID), nil, nil)
}

type ReallocateRequest struct {
	MemoryMB  int32   `json:"memory_mb"`
	CPU       int32   `json:"cpu"`
	SwapMB    int32   `json:"swap_mb"`
	StorageMB int32   `json:"storage_mb"`
	Region    *string `json:"region,omitempty"`
	ForceMove bool    `json:"force_move,omitempty"`
}

func (c *Client) Reallocate(ctx context.Context, serverID string, req ReallocateRequest) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/servers/%s/reallocate", serverID), req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Master-Key", c.masterKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "provisioner: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apperr.New(apperr.Transient, fmt.Sprintf("provisioner: request failed with status %d", resp.StatusCode))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
