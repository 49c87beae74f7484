package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultOrdersURL is the vendor's order-creation endpoint.
const DefaultOrdersURL = "https://api.razorpay.com/v1/orders"

// ErrOrderFailed means the vendor did not issue an order for a checkout.
var ErrOrderFailed = errors.New("payment: order not created")

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID string `json:"id"`
}

// createOrder registers the payment with the vendor so the success
// callback can be signed against an order this server issued.
func (c *ScriptCheckout) createOrder(ctx context.Context, opts Options, receipt string) (string, error) {
	body, err := json.Marshal(orderRequest{
		Amount:   opts.Amount,
		Currency: opts.Currency,
		Receipt:  receipt,
		Notes:    opts.Notes,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOrderFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OrdersURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOrderFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(opts.Key, c.cfg.KeySecret)

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOrderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("%w: status %d", ErrOrderFailed, resp.StatusCode)
	}
	var out orderResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOrderFailed, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: empty order id", ErrOrderFailed)
	}
	return out.ID, nil
}
