package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"campuspay/internal/metrics"
)

const (
	opInitialize = "initialize"
	opVerify     = "verify"

	maxResponseBytes = 1 << 20
)

// InitializeRequest starts a hosted checkout for one payment.
type InitializeRequest struct {
	Email       string
	AmountMinor int64
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type Customer struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	CustomerCode string `json:"customer_code"`
}

// TransactionDetails is what the gateway reports for a reference.
type TransactionDetails struct {
	ID              int64      `json:"id"`
	Status          string     `json:"status"`
	Reference       string     `json:"reference"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Channel         string     `json:"channel"`
	GatewayResponse string     `json:"gateway_response"`
	PaidAt          *time.Time `json:"paid_at"`
	Customer        Customer   `json:"customer"`
}

func (d *TransactionDetails) Succeeded() bool {
	return d.Status == "success"
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type customField struct {
	DisplayName  string `json:"display_name"`
	VariableName string `json:"variable_name"`
	Value        string `json:"value"`
}

type Options struct {
	BaseURL            string
	SecretKey          string
	WebhookSecret      string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// Client talks to the payment gateway REST API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
	cb         *gobreaker.CircuitBreaker
	verifier   *SignatureVerifier
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := &Client{
		BaseURL:    opts.BaseURL,
		SecretKey:  opts.SecretKey,
		HTTPClient: &http.Client{Timeout: timeout},
		verifier:   NewSignatureVerifier(opts.WebhookSecret, opts.InsecureSkipVerify),
	}

	client.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// A clean rejection from the gateway (bad reference, declined input) is not an outage.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ge *Error
			return errors.As(err, &ge) && !ge.OutcomeUnknown && ge.StatusCode != 0 && ge.StatusCode < 500
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker '%s' changed from %s to %s", name, from, to)
		},
	})

	return client
}

// Initialize creates a checkout session and returns where to send the payer.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*Authorization, error) {
	payload := map[string]any{
		"email":     req.Email,
		"amount":    req.AmountMinor,
		"reference": req.Reference,
	}
	if req.CallbackURL != "" {
		payload["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		meta := map[string]any{}
		fields := make([]customField, 0, len(req.Metadata))
		for k, v := range req.Metadata {
			meta[k] = v
			fields = append(fields, customField{DisplayName: k, VariableName: k, Value: v})
		}
		meta["custom_fields"] = fields
		payload["metadata"] = meta
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Op: opInitialize, Message: "failed to encode request", Err: err}
	}

	data, err := c.call(ctx, opInitialize, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var auth Authorization
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, &Error{Op: opInitialize, Message: "failed to parse response", OutcomeUnknown: true, Err: err}
	}
	if auth.AuthorizationURL == "" {
		return nil, &Error{Op: opInitialize, Message: "response carried no authorization url", OutcomeUnknown: true}
	}
	return &auth, nil
}

// Verify fetches the gateway's view of a transaction.
func (c *Client) Verify(ctx context.Context, reference string) (*TransactionDetails, error) {
	data, err := c.call(ctx, opVerify, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	var details TransactionDetails
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, &Error{Op: opVerify, Message: "failed to parse response", Err: err}
	}
	return &details, nil
}

func (c *Client) VerifySignature(payload []byte, signature string) bool {
	return c.verifier.Verify(payload, signature)
}

func (c *Client) call(ctx context.Context, op, method, path string, body []byte) (json.RawMessage, error) {
	start := time.Now()

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, op, method, path, body)
	})

	metrics.GatewayRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(op, statusLabel(err)).Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{Op: op, Message: "gateway temporarily unavailable", Err: err}
		}
		return nil, err
	}
	metrics.GatewayRequestsTotal.WithLabelValues(op, "success").Inc()

	return result.(json.RawMessage), nil
}

func (c *Client) doRequest(ctx context.Context, op, method, path string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, &Error{Op: op, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Message: "request failed", OutcomeUnknown: mayHaveBeenSent(err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: "failed to read response", OutcomeUnknown: true, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, &Error{
			Op:             op,
			StatusCode:     resp.StatusCode,
			Message:        fmt.Sprintf("unexpected response: %.200s", string(respBody)),
			OutcomeUnknown: resp.StatusCode >= 500,
			Err:            err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		message := env.Message
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: message, OutcomeUnknown: resp.StatusCode >= 500}
	}

	return env.Data, nil
}

// mayHaveBeenSent is false only when the connection was never established.
func mayHaveBeenSent(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return false
	}
	return true
}

func statusLabel(err error) string {
	var ge *Error
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &ge) && ge.OutcomeUnknown:
		return "unknown"
	default:
		return "error"
	}
}
