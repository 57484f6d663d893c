// Package promo calls the external promo service that validates codes and
// records their use.
package promo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pawmarket/internal/domain"
)

type Validation struct {
	OK            bool  `json:"ok"`
	DiscountCents int64 `json:"discountAmount"`
	NewTotalCents int64 `json:"newTotal"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL. With an empty baseURL every call
// fails with domain.ErrPromoUnavailable.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *Client) Validate(ctx context.Context, code, cartID string) (*Validation, error) {
	var out Validation
	if err := c.post(ctx, "/validatePromo", map[string]any{"code": code, "cartId": cartID}, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, domain.ErrInvalidPromo
	}
	if out.DiscountCents < 0 {
		out.DiscountCents = 0
	}
	return &out, nil
}

func (c *Client) Commit(ctx context.Context, code, cartID, orderID string, discountCents int64) error {
	return c.post(ctx, "/commitPromo", map[string]any{
		"code":           code,
		"cartId":         cartID,
		"orderId":        orderID,
		"discountAmount": discountCents,
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	if c.baseURL == "" {
		return domain.ErrPromoUnavailable
	}
	payload, err := json.Marshal(map[string]any{"data": in})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPromoUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		return domain.ErrInvalidPromo
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: status %d", domain.ErrPromoUnavailable, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decode: %v", domain.ErrPromoUnavailable, err)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%w: decode result: %v", domain.ErrPromoUnavailable, err)
	}
	return nil
}
