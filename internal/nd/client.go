// Package nd is the transport layer for the dashboard management API.
// It authenticates, paces requests and returns raw collections; typed
// interpretation of the payloads is left to callers.
package nd

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/fedsync/internal/secret"
)

// Options configures a Client.
type Options struct {
	Host         string
	Username     string
	Password     secret.Value
	LoginDomain  string
	Timeout      time.Duration
	Insecure     bool
	RateLimitRPS float64
}

// Client performs authenticated requests against the management API.
type Client struct {
	baseURL    string
	username   string
	password   secret.Value
	domain     string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu      sync.Mutex
	session session
}

// NewClient creates a new API client.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateLimitRPS == 0 {
		opts.RateLimitRPS = 10.0
	}
	if opts.LoginDomain == "" {
		opts.LoginDomain = "DefaultAuth"
	}

	burst := int(opts.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	// Dashboards commonly ship with a self-signed certificate
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.Insecure},
	}

	return &Client{
		baseURL:  baseURL(opts.Host),
		username: opts.Username,
		password: opts.Password,
		domain:   opts.LoginDomain,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst),
	}
}

func baseURL(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

// Close closes idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Address returns the base URL of the API.
func (c *Client) Address() string {
	return c.baseURL
}

// ReadCollection lists a collection. A missing collection is reported as an
// error matching ErrNotFound.
func (c *Client) ReadCollection(ctx context.Context, path string) (*Collection, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var coll Collection
	if len(bytes.TrimSpace(body)) == 0 {
		return &coll, nil
	}
	if err := json.Unmarshal(body, &coll); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &coll, nil
}

// Write issues a POST or DELETE and returns the raw response object (which
// may be empty).
func (c *Client) Write(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	if method != http.MethodPost && method != http.MethodDelete {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	body, err := c.send(ctx, method, path, encoded)
	if err != nil && isUnauthorized(err) {
		// Token revoked or expired early; log in again once
		log.Debug().Str("method", method).Str("path", path).Msg("Session rejected, logging in again")
		c.invalidate()
		body, err = c.send(ctx, method, path, encoded)
	}
	return body, err
}

func (c *Client) send(ctx context.Context, method, path string, encoded []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if encoded != nil {
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if encoded != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("API request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(method, path, resp.StatusCode, body)
	}
	return body, nil
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{Method: method, Path: path, StatusCode: status}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		switch {
		case eb.Message != "":
			apiErr.Message = eb.Message
		case len(eb.Messages) > 0:
			apiErr.Message = strings.Join(eb.Messages, "; ")
		}
	}
	return apiErr
}
