// Package taxproc is a thin client for the Anrok-shaped tax processor
// adapter of spec §6: no ecosystem SDK exists for it in the example
// corpus, so it is a plain net/http JSON shim, the same shape the
// corpus uses for other bespoke internal services.
package taxproc

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
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EphemeralTransactionFields mirrors the fields the tax processor
// needs to price a transaction: address, line amount, currency.
type EphemeralTransactionFields struct {
	CustomerAddress map[string]string `json:"customer_address"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
}

type EphemeralTransactionResult struct {
	TaxAmountToCollect int64  `json:"tax_amount_to_collect"`
	TransactionID      string `json:"transaction_id"`
	TransactionVersion int32  `json:"transaction_version"`
}

func (c *Client) CreateEphemeralTransaction(ctx context.Context, fields EphemeralTransactionFields) (EphemeralTransactionResult, error) {
	var out EphemeralTransactionResult
	if err := c.do(ctx, http.MethodPost, "/v1/transactions/ephemeral", fields, &out); err != nil {
		return EphemeralTransactionResult{}, err
	}
	return out, nil
}

type NegationFields struct {
	ID     string            `json:"id"`
	Amount int64             `json:"amount"`
	Fields map[string]string `json:"fields"`
}

type NegationResult struct {
	TransactionID      string `json:"transaction_id"`
	TransactionVersion int32  `json:"transaction_version"`
}

// NegateOrCreatePartialNegation reverses (fully or partially) a
// previously committed tax transaction. A version mismatch from the
// processor is surfaced as apperr.ManualTaxReconciliationRequired
// verbatim, per spec §6, so the refund flow can return the specific
// manual-reconciliation message.
func (c *Client) NegateOrCreatePartialNegation(ctx context.Context, originalID string, originalVersion int32, originalAmount int64, negation NegationFields) (NegationResult, error) {
	body := map[string]any{
		"original_id":      originalID,
		"original_version": originalVersion,
		"original_amount":  originalAmount,
		"negation":         negation,
	}
	var out NegationResult
	err := c.do(ctx, http.MethodPost, "/v1/transactions/negate", body, &out)
	if err != nil {
		var apiErr *apiError
		if asAPIError(err, &apiErr) && apiErr.Code == "transactionExpectedVersionMismatch" {
			return NegationResult{}, apperr.Wrap(apperr.ManualTaxReconciliationRequired, "Manual intervention is required: "+apiErr.Message, err)
		}
		return NegationResult{}, err
	}
	return out, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func asAPIError(err error, target **apiError) bool {
	wrapped, ok := err.(*requestError)
	if !ok {
		return false
	}
	*target = wrapped.api
	return wrapped.api != nil
}

type requestError struct {
	statusCode int
	api        *apiError
}

func (e *requestError) Error() string {
	if e.api != nil {
		return fmt.Sprintf("taxproc: %s: %s", e.api.Code, e.api.Message)
	}
	return fmt.Sprintf("taxproc: request failed with status %d", e.statusCode)
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
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "taxproc: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &requestError{statusCode: resp.StatusCode, api: &apiErr}
	}
	if resp.StatusCode >= 400 {
		return &requestError{statusCode: resp.StatusCode}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
