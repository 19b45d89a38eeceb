package nd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	// defaultSessionTTL is assumed when the token carries no readable expiry.
	defaultSessionTTL = 20 * time.Minute

	// refreshSkew renews the session this long before it expires.
	refreshSkew = 30 * time.Second
)

type session struct {
	token     string
	expiresAt time.Time
}

func (s session) valid(now time.Time) bool {
	return s.token != "" && now.Add(refreshSkew).Before(s.expiresAt)
}

// token returns a usable bearer token, logging in when needed.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.valid(time.Now()) {
		return c.session.token, nil
	}

	s, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.session = s
	return s.token, nil
}

// invalidate drops the cached session.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.session = session{}
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) (session, error) {
	payload, err := json.Marshal(loginRequest{
		UserName:   c.username,
		UserPasswd: c.password.Reveal(),
		Domain:     c.domain,
	})
	if err != nil {
		return session{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+LoginPath, bytes.NewReader(payload))
	if err != nil {
		return session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session{}, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return session{}, fmt.Errorf("login: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return session{}, newAPIError(http.MethodPost, LoginPath, resp.StatusCode, body)
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return session{}, fmt.Errorf("login: decode response: %w", err)
	}
	token := lr.Token
	if token == "" {
		token = lr.JWTToken
	}
	if token == "" {
		return session{}, errors.New("login: response carried no token")
	}

	expiresAt := tokenExpiry(token, time.Now())
	log.Debug().
		Str("user", c.username).
		Str("domain", c.domain).
		Time("expires_at", expiresAt).
		Msg("Logged in")

	return session{token: token, expiresAt: expiresAt}, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// token is only ever sent back to the server that issued it.
func tokenExpiry(token string, now time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return now.Add(defaultSessionTTL)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return now.Add(defaultSessionTTL)
	}
	return exp.Time
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
