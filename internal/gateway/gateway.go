// Package gateway talks to the hosted checkout provider.
package gateway

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/roadready/theory-backend/internal/config"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Status is the gateway's view of a transaction.
type Status string

const (
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusPending    Status = "pending"
)

// ErrTransactionNotFound is returned by Verify when the gateway has no
// transaction for the reference, typically because checkout was abandoned.
var ErrTransactionNotFound = errors.New("transaction not found")

// Customer identifies the payer.
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// InitiateRequest describes a hosted checkout to open.
type InitiateRequest struct {
	TxRef       string
	Amount      decimal.Decimal
	Currency    string
	Customer    Customer
	RedirectURL string
	Title       string
	Description string
	Meta        map[string]string
}

// InitiateResult carries the link the payer is redirected to.
type InitiateResult struct {
	Link  string
	TxRef string
}

// Verification is the authoritative outcome of a transaction.
type Verification struct {
	TransactionID string
	TxRef         string
	Status        Status
	Amount        decimal.Decimal
	Currency      string
	Method        string
	Reason        string
}

// Client is a Flutterwave-compatible REST client.
type Client struct {
	baseURL     string
	secretKey   string
	webhookHash string
	httpClient  *http.Client
	log         zerolog.Logger
}

// NewClient creates a gateway client from payment configuration.
func NewClient(cfg config.PaymentConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     cfg.GatewayBaseURL,
		secretKey:   cfg.SecretKey,
		webhookHash: cfg.WebhookSecret,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		log:         log.With().Str("component", "payment_gateway").Logger(),
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initiate opens a hosted checkout and returns its link.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	body := map[string]any{
		"tx_ref":       req.TxRef,
		"amount":       json.Number(req.Amount.String()),
		"currency":     req.Currency,
		"redirect_url": req.RedirectURL,
		"customer":     req.Customer,
		"customizations": map[string]string{
			"title":       req.Title,
			"description": req.Description,
		},
	}
	if len(req.Meta) > 0 {
		body["meta"] = req.Meta
	}

	data, err := c.do(ctx, http.MethodPost, "/payments", body)
	if err != nil {
		return nil, fmt.Errorf("initiate %s: %w", req.TxRef, err)
	}

	var out struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode initiate response: %w", err)
	}
	if out.Link == "" {
		return nil, errors.New("gateway returned no payment link")
	}

	c.log.Debug().Str("tx_ref", req.TxRef).Msg("Checkout initiated")
	return &InitiateResult{Link: out.Link, TxRef: req.TxRef}, nil
}

// Verify asks the gateway for the outcome of the transaction with txRef.
func (c *Client) Verify(ctx context.Context, txRef string) (*Verification, error) {
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(txRef)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", txRef, err)
	}

	var out struct {
		ID                json.Number     `json:"id"`
		TxRef             string          `json:"tx_ref"`
		Status            string          `json:"status"`
		Amount            decimal.Decimal `json:"amount"`
		Currency          string          `json:"currency"`
		PaymentType       string          `json:"payment_type"`
		ProcessorResponse string          `json:"processor_response"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}

	v := &Verification{
		TransactionID: out.ID.String(),
		TxRef:         out.TxRef,
		Amount:        out.Amount,
		Currency:      out.Currency,
		Method:        out.PaymentType,
		Reason:        out.ProcessorResponse,
	}
	switch Status(out.Status) {
	case StatusSuccessful, StatusFailed:
		v.Status = Status(out.Status)
	default:
		v.Status = StatusPending
	}
	return v, nil
}

// Refund returns the full amount of a settled transaction to the payer.
func (c *Client) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	if _, err := strconv.ParseInt(transactionID, 10, 64); err != nil {
		return fmt.Errorf("invalid transaction id %q", transactionID)
	}
	body := map[string]any{"amount": json.Number(amount.String())}
	if _, err := c.do(ctx, http.MethodPost, "/transactions/"+transactionID+"/refund", body); err != nil {
		return fmt.Errorf("refund %s: %w", transactionID, err)
	}
	return nil
}

// ValidWebhookSignature reports whether the webhook hash header matches the
// configured secret. An unconfigured secret rejects every webhook.
func (c *Client) ValidWebhookSignature(header string) bool {
	if c.webhookHash == "" || header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(c.webhookHash)) == 1
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("gateway returned %d with undecodable body: %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || env.Status != "success" {
		c.log.Warn().
			Int("status_code", resp.StatusCode).
			Str("path", path).
			Str("message", env.Message).
			Msg("Gateway request rejected")
		return nil, fmt.Errorf("gateway error (%d): %s", resp.StatusCode, env.Message)
	}
	return env.Data, nil
}
