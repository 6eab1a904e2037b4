// Package shortener wraps download links in the verification provider's short links.
package shortener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// VerificationLinkError describes why a short link could not be produced.
type VerificationLinkError struct {
	URL string
	Err error
}

func (e *VerificationLinkError) Error() string {
	return fmt.Sprintf("failed to shorten %s: %v", e.URL, e.Err)
}

func (e *VerificationLinkError) Unwrap() error { return e.Err }

// Client talks to an Adtival-compatible API:
// GET <api>?api=<token>&url=<long>&format=json -> {"status","shortenedUrl","message"}.
type Client struct {
	apiURL string
	token  string
	http   *http.Client
	log    *slog.Logger
}

// New creates a client. httpClient may be nil.
func New(apiURL, token string, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		apiURL: apiURL,
		token:  token,
		http:   httpClient,
		log:    log.With(slog.String("component", "shortener")),
	}
}

type apiResponse struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
	Message      string `json:"message"`
}

// Shorten returns the verification link for longURL, or longURL itself when
// the provider fails in any way.
func (c *Client) Shorten(ctx context.Context, longURL string) string {
	short, err := c.shorten(ctx, longURL)
	if err != nil {
		c.log.Error("falling back to the original link", slog.Any("error", err))
		return longURL
	}
	return short
}

func (c *Client) shorten(ctx context.Context, longURL string) (string, error) {
	fail := func(err error) (string, error) {
		return "", &VerificationLinkError{URL: longURL, Err: err}
	}

	u, err := url.Parse(c.apiURL)
	if err != nil {
		return fail(err)
	}
	q := u.Query()
	q.Set("api", c.token)
	q.Set("url", longURL)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fail(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}
	if body.Status != "success" || body.ShortenedURL == "" {
		return fail(fmt.Errorf("provider error: %s", body.Message))
	}
	return body.ShortenedURL, nil
}
