// Package gateway is a thin adapter around the payment gateway's
// HTTP API: transaction initialize/verify, settlement subaccounts and
// splits, bank account resolution, and webhook signature checks.
//
// When no secret key is configured the client runs in mock mode:
// Initialize redirects straight to the caller's success page,
// subaccount/split creation returns locally minted codes, and Verify
// is unavailable.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"accezzpay/internal/config"
	"accezzpay/internal/logger"
	"accezzpay/internal/utils"
)

const gatewayName = "paystack"

var accountNumberPattern = regexp.MustCompile(`^\d{10,11}$`)

type Client struct {
	secretKey     string
	publicKey     string
	baseURL       string
	webhookSecret string
	client        *http.Client
	log           *logger.Logger
}

func NewClient(cfg config.GatewayConfig, log *logger.Logger) *Client {
	if cfg.SecretKey == "" {
		log.Warn("GATEWAY", "Secret key not set. Payment initialization will run in mock mode.")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		secretKey:     cfg.SecretKey,
		publicKey:     cfg.PublicKey,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		webhookSecret: cfg.WebhookSecret,
		client:        &http.Client{Timeout: timeout},
		log:           log,
	}
}

// Name reports the gateway identifier stored on payment rows.
func (c *Client) Name() string { return gatewayName }

// MockMode reports whether the client bypasses the network.
func (c *Client) MockMode() bool { return c.secretKey == "" }

// PublicKey exposes the configured public key for checkout surfaces.
func (c *Client) PublicKey() string { return c.publicKey }

type InitializeParams struct {
	Email       string
	AmountMinor int64
	Reference   string
	Currency    string
	Metadata    map[string]any
	CallbackURL string
	Subaccount  string
	SplitCode   string
	Bearer      string
}

type InitializeResult struct {
	RedirectURL string
	Reference   string
	AccessCode  string
}

// Initialize opens a gateway checkout session and returns the URL the
// buyer's browser is sent to. In mock mode it skips the network and
// points the redirect at the callback URL with the reference attached.
func (c *Client) Initialize(ctx context.Context, params InitializeParams) (*InitializeResult, error) {
	if c.MockMode() {
		redirect, err := mockRedirectURL(params.CallbackURL, params.Reference)
		if err != nil {
			return nil, err
		}
		c.log.LogGateway("initialize", fmt.Sprintf("Mock session for reference %s", params.Reference))
		return &InitializeResult{RedirectURL: redirect, Reference: params.Reference}, nil
	}

	currency := params.Currency
	if currency == "" {
		currency = "NGN"
	}

	body := map[string]any{
		"email":        params.Email,
		"amount":       params.AmountMinor,
		"reference":    params.Reference,
		"currency":     currency,
		"channels":     []string{"card", "bank", "ussd", "qr", "mobile_money"},
		"metadata":     params.Metadata,
		"callback_url": params.CallbackURL,
	}
	if params.Subaccount != "" {
		body["subaccount"] = params.Subaccount
	}
	if params.SplitCode != "" {
		body["split_code"] = params.SplitCode
	}
	if params.Bearer != "" {
		body["bearer"] = params.Bearer
	}

	var resp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}

	if err := c.post(ctx, "/transaction/initialize", body, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && params.SplitCode != "" && isInvalidSplitBody(apiErr.Body) {
			return nil, &InvalidSplitError{SplitCode: params.SplitCode, Body: apiErr.Body}
		}
		return nil, err
	}

	c.log.LogGateway("initialize", fmt.Sprintf("Session created for reference %s", resp.Data.Reference))
	return &InitializeResult{
		RedirectURL: resp.Data.AuthorizationURL,
		Reference:   resp.Data.Reference,
		AccessCode:  resp.Data.AccessCode,
	}, nil
}

type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type Verification struct {
	Success     bool
	RawStatus   string
	AmountMinor int64
	Currency    string
	Metadata    map[string]any
	Customer    Customer
	Raw         map[string]any
}

// Verify asks the gateway for the final status of a transaction
// reference. Used by the redirect-verification path when the webhook
// has not arrived yet.
func (c *Client) Verify(ctx context.Context, reference string) (*Verification, error) {
	if c.MockMode() {
		return nil, errors.New("transaction verification is unavailable in mock mode")
	}

	var resp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Status   string         `json:"status"`
			Amount   int64          `json:"amount"`
			Currency string         `json:"currency"`
			Metadata map[string]any `json:"metadata"`
			Customer Customer       `json:"customer"`
		} `json:"data"`
	}

	raw, err := c.get(ctx, "/transaction/verify/"+url.PathEscape(reference), &resp)
	if err != nil {
		return nil, err
	}

	return &Verification{
		Success:     resp.Status && resp.Data.Status == "success",
		RawStatus:   resp.Data.Status,
		AmountMinor: resp.Data.Amount,
		Currency:    resp.Data.Currency,
		Metadata:    resp.Data.Metadata,
		Customer:    resp.Data.Customer,
		Raw:         raw,
	}, nil
}

// VerifySignature checks the HMAC-SHA512 of the raw webhook body
// against the signature header. Comparison is constant-time; an empty
// header always fails.
func (c *Client) VerifySignature(rawBody []byte, signatureHeader string) bool {
	if signatureHeader == "" || c.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.webhookSecret))
	mac.Write(rawBody)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(computed), []byte(signatureHeader))
}

type ResolvedAccount struct {
	AccountName   string
	AccountNumber string
	IsMock        bool
}

// ResolveBankAccount validates settlement bank details against the
// gateway's account resolution endpoint.
func (c *Client) ResolveBankAccount(ctx context.Context, bankCode, accountNumber string) (*ResolvedAccount, error) {
	sanitized := strings.Map(func(r rune) rune {
		if r < '0' || r > '9' {
			return -1
		}
		return r
	}, accountNumber)

	if !accountNumberPattern.MatchString(sanitized) {
		return nil, fmt.Errorf("account number must contain 10 or 11 digits")
	}

	if c.MockMode() {
		return &ResolvedAccount{
			AccountName:   fmt.Sprintf("Test Account %s", sanitized[len(sanitized)-4:]),
			AccountNumber: sanitized,
			IsMock:        true,
		}, nil
	}

	var resp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccountNumber string `json:"account_number"`
			AccountName   string `json:"account_name"`
		} `json:"data"`
	}

	query := url.Values{
		"bank_code":      {strings.TrimSpace(bankCode)},
		"account_number": {sanitized},
	}
	if _, err := c.get(ctx, "/bank/resolve?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.AccountName == "" {
		return nil, fmt.Errorf("gateway could not resolve the supplied bank details: %s", resp.Message)
	}

	return &ResolvedAccount{
		AccountName:   strings.TrimSpace(resp.Data.AccountName),
		AccountNumber: resp.Data.AccountNumber,
	}, nil
}

type SubaccountParams struct {
	BusinessName     string
	SettlementBank   string
	AccountNumber    string
	PercentageCharge float64
	AccountName      string
	Email            string
}

// CreateSubaccount provisions a gateway subaccount routing settlement
// to the organizer's bank account. Mock mode mints a local code.
func (c *Client) CreateSubaccount(ctx context.Context, params SubaccountParams) (string, error) {
	if c.MockMode() {
		code := utils.GenerateSubaccountCode()
		c.log.LogGateway("subaccount", fmt.Sprintf("Mock subaccount %s for %s", code, params.BusinessName))
		return code, nil
	}

	body := map[string]any{
		"business_name":     params.BusinessName,
		"settlement_bank":   params.SettlementBank,
		"account_number":    params.AccountNumber,
		"percentage_charge": params.PercentageCharge,
	}
	if params.AccountName != "" {
		body["account_name"] = params.AccountName
	}
	if params.Email != "" {
		body["business_email"] = params.Email
	}

	var resp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			SubaccountCode string `json:"subaccount_code"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/subaccount", body, &resp); err != nil {
		return "", err
	}

	c.log.LogGateway("subaccount", fmt.Sprintf("Created subaccount %s for %s", resp.Data.SubaccountCode, params.BusinessName))
	return resp.Data.SubaccountCode, nil
}

type SplitParams struct {
	Name            string
	SubaccountCode  string
	PercentageShare float64
	Currency        string
}

// CreateSplit provisions a percentage split that routes the
// organizer's share of each charge directly to their subaccount.
func (c *Client) CreateSplit(ctx context.Context, params SplitParams) (string, error) {
	if c.MockMode() {
		code := utils.GenerateSplitCode()
		c.log.LogGateway("split", fmt.Sprintf("Mock split %s for %s", code, params.Name))
		return code, nil
	}

	share := params.PercentageShare
	if share < 0 {
		share = 0
	}
	if share > 100 {
		share = 100
	}
	currency := params.Currency
	if currency == "" {
		currency = "NGN"
	}

	body := map[string]any{
		"name":              params.Name,
		"type":              "percentage",
		"currency":          currency,
		"bearer_type":       "account",
		"bearer_subaccount": params.SubaccountCode,
		"subaccounts": []map[string]any{
			{"subaccount": params.SubaccountCode, "share": share},
		},
	}

	var resp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			SplitCode string `json:"split_code"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/split", body, &resp); err != nil {
		return "", err
	}

	c.log.LogGateway("split", fmt.Sprintf("Created split %s for %s", resp.Data.SplitCode, params.Name))
	return resp.Data.SplitCode, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req, path, out)
	return err
}

func (c *Client) get(ctx context.Context, path string, out any) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(req, path, out)
}

// do executes the request, decodes 2xx bodies into out and also
// returns the raw decoded payload for snapshot storage.
func (c *Client) do(req *http.Request, op string, out any) (map[string]any, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, &TimeoutError{Op: op}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Op: op}
		}
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}

	var rawMap map[string]any
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		rawMap = map[string]any{"body": string(raw)}
	}
	return rawMap, nil
}

func mockRedirectURL(callbackURL, reference string) (string, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return "", fmt.Errorf("invalid callback url: %w", err)
	}
	query := parsed.Query()
	query.Set("reference", reference)
	query.Set("mock", "1")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
