package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rgeron/SwapDecksMarketplace/internal/config"
)

// ProcessorClient talks to the payment processor's HTTP API. The embedded
// client timeout guarantees no settlement path ever blocks on the processor.
type ProcessorClient struct {
	baseURL  string
	apiKey   string
	currency string
	client   *http.Client
}

func NewProcessorClient(cfg *config.Config) *ProcessorClient {
	return &ProcessorClient{
		baseURL:  strings.TrimRight(cfg.ProcessorBaseURL, "/"),
		apiKey:   cfg.ProcessorAPIKey,
		currency: cfg.Currency,
		client:   &http.Client{Timeout: cfg.ProcessorTimeout},
	}
}

type sessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type transferResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *ProcessorClient) CreateTopUpSession(ctx context.Context, userID string, amount int64) (*CheckoutSession, error) {
	form := url.Values{
		"amount":              {strconv.FormatInt(amount, 10)},
		"currency":            {c.currency},
		"client_reference_id": {userID},
	}

	var resp sessionResponse
	if err := c.postForm(ctx, "/v1/checkout/sessions", form, &resp); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ExternalSessionID: resp.ID, RedirectURL: resp.URL}, nil
}

func (c *ProcessorClient) CreatePayoutTransfer(ctx context.Context, payoutAccountID string, amount int64) (string, error) {
	form := url.Values{
		"amount":      {strconv.FormatInt(amount, 10)},
		"currency":    {c.currency},
		"destination": {payoutAccountID},
	}

	var resp transferResponse
	if err := c.postForm(ctx, "/v1/transfers", form, &resp); err != nil {
		return "", fmt.Errorf("create payout transfer: %w", err)
	}
	return resp.ID, nil
}

func (c *ProcessorClient) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil {
			if apiErr.Error.Code == "payouts_not_enabled" || apiErr.Error.Code == "account_onboarding_incomplete" {
				return ErrPayoutUnavailable
			}
			return fmt.Errorf("processor error %d: %s (%s)",
				resp.StatusCode, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("processor error %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
