// ABOUTME: Proxy for the external identity registry with multi-strategy auth negotiation
// ABOUTME: Tries fixed secret encodings in order, short-circuiting on non-auth failures

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// userAgent identifies the gateway to the upstream registry.
const userAgent = "dni-gateway/1.0"

// maxDetailBytes bounds how much upstream body is echoed in diagnostics.
const maxDetailBytes = 500

// Strategy is one candidate encoding of the shared secret onto a request.
type Strategy struct {
	Name  string
	Apply func(secret string, header http.Header, query url.Values)
}

// Strategies is the fixed priority order of secret encodings. The upstream's
// expected transport is unknown at deploy time, so each request walks this
// list until one is accepted or a failure rules the rest out.
var Strategies = []Strategy{
	{Name: "bearer", Apply: func(secret string, h http.Header, _ url.Values) {
		h.Set("Authorization", "Bearer "+secret)
	}},
	{Name: "authorization-raw", Apply: func(secret string, h http.Header, _ url.Values) {
		h.Set("Authorization", secret)
	}},
	{Name: "x-api-key", Apply: func(secret string, h http.Header, _ url.Values) {
		h.Set("X-API-Key", secret)
	}},
	// Some upstream stacks match header names case-sensitively.
	{Name: "x-api-key-lower", Apply: func(secret string, h http.Header, _ url.Values) {
		h["x-api-key"] = []string{secret}
	}},
	{Name: "query-apikey", Apply: func(secret string, _ http.Header, q url.Values) {
		q.Set("apikey", secret)
	}},
	{Name: "query-token", Apply: func(secret string, _ http.Header, q url.Values) {
		q.Set("token", secret)
	}},
}

// Client resolves identity numbers against the external registry.
type Client struct {
	endpoint   string
	secret     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a registry client. The timeout bounds each individual strategy
// attempt, not the whole negotiation.
func New(endpoint, secret string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		secret:     secret,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     slog.Default().With("component", "registry"),
	}
}

// Lookup resolves an identity number, negotiating the secret transport.
// The returned body is the upstream's JSON, passed through unmodified.
//
// Failure classification per attempt:
//   - network error: abort the whole operation (NetworkError) — transport
//     trouble says nothing about which auth encoding is right
//   - 2xx with unparseable body: FormatError, no further attempts
//   - 401/403/429, or a body mentioning an API-key problem: auth-shaped
//     rejection, try the next strategy
//   - any other failure: stop, continuing would not plausibly help
//
// Exhaustion returns a RejectedError carrying the last attempt's status and a
// masked secret hint.
func (c *Client) Lookup(ctx context.Context, numero string) (json.RawMessage, error) {
	var lastStatus int
	var lastBody string

	for _, strat := range Strategies {
		status, body, err := c.attempt(ctx, strat, numero)
		if err != nil {
			return nil, err
		}

		if status >= 200 && status < 300 {
			if !json.Valid(body) {
				return nil, &FormatError{Status: status}
			}
			c.logger.Debug("registry accepted strategy", "strategy", strat.Name)
			return json.RawMessage(body), nil
		}

		lastStatus = status
		lastBody = string(body)

		if !authShapedFailure(status, lastBody) {
			c.logger.Debug("registry failure not auth-shaped, stopping", "strategy", strat.Name, "status", status)
			break
		}
		c.logger.Debug("registry rejected strategy", "strategy", strat.Name, "status", status)
	}

	return nil, &RejectedError{
		Status:     lastStatus,
		Detail:     truncate(lastBody, maxDetailBytes),
		SecretHint: MaskSecret(c.secret),
	}
}

// attempt issues one request with the strategy's secret encoding.
// The error return is terminal (network failure); upstream HTTP failures come
// back as a status and body for classification by the caller.
func (c *Client) attempt(ctx context.Context, strat Strategy, numero string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("building registry request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	query := req.URL.Query()
	query.Set("numero", numero)
	strat.Apply(c.secret, req.Header, query)
	req.URL.RawQuery = query.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &NetworkError{Err: err}
	}

	return resp.StatusCode, body, nil
}

// authShapedFailure reports whether an upstream failure looks like an
// auth/rate-limit rejection worth retrying with a different secret encoding.
func authShapedFailure(status int, body string) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "apikey") || strings.Contains(lower, "api key")
}

// MaskSecret hides the middle of a secret for diagnostics: first 4 and last 4
// characters only. Short secrets are masked entirely.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
