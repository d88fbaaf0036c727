// Package whatsapp is the outbound messaging channel: it normalizes
// Brazilian phone numbers into WhatsApp destinations and delivers text
// bodies through the Twilio Messages API.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "github.com/ConnecteDigital/connect-financeiro/internal/log"
)

const (
	defaultBaseURL = "https://api.twilio.com"
	countryCode    = "55"
)

// ErrNotConfigured is returned by Send when the Twilio credentials or the
// sender number are missing. Delivery code treats it as a per-user failure,
// never a fatal one.
var ErrNotConfigured = errors.New("WhatsApp não configurado. Verifique as variáveis de ambiente.")

// Client sends WhatsApp messages through Twilio.
type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the Twilio API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient builds a Twilio-backed channel. Missing credentials do not fail
// construction; Send reports ErrNotConfigured instead so a misconfigured
// deployment degrades to per-user delivery failures.
func NewClient(accountSID, authToken, fromNumber string, opts ...Option) *Client {
	c := &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       fromNumber,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has everything it needs to send.
func (c *Client) Configured() bool {
	return c.accountSID != "" && c.authToken != "" && c.from != ""
}

// Normalize converts a raw phone number into a WhatsApp destination:
// non-digit characters are stripped and the Brazilian country code is
// prefixed when absent.
func Normalize(number string) string {
	var digits strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	clean := digits.String()
	if !strings.HasPrefix(clean, countryCode) {
		clean = countryCode + clean
	}
	return "whatsapp:+" + clean
}

// twilioError is the relevant slice of Twilio's error response body.
type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send delivers body to the given destination number. The destination is
// normalized here, so callers pass the number as stored on the user.
func (c *Client) Send(ctx context.Context, destination, body string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", Normalize(destination))
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		slog.DebugContext(ctx, "WhatsApp message delivered",
			applog.FieldComponent, applog.ComponentWhatsApp,
			applog.FieldOperation, applog.OpSend,
			applog.FieldDestination, form.Get("To"))
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var te twilioError
	if err := json.Unmarshal(data, &te); err == nil && te.Message != "" {
		return fmt.Errorf("twilio rejected message (status %d, code %d): %s", resp.StatusCode, te.Code, te.Message)
	}
	return fmt.Errorf("twilio rejected message: status %d", resp.StatusCode)
}
