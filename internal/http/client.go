package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client wraps HTTP operations with platform-specific configuration.
//
// Client provides:
//   - Configured User-Agent and Referer headers (the image CDN rejects
//     requests without a manga.bilibili.com referer)
//   - Timeout handling
//   - GET/POST helpers for the JSON API
//   - Image downloads into memory
//
// Example usage:
//
//	client := NewClient()
//
//	// Fetch an API response with the user's cookie
//	body, err := client.Get(ctx, apiURL, WithCookie(cookie))
//
//	// Download an image
//	data, err := client.DownloadBytes(ctx, imageURL)
type Client struct {
	httpClient *http.Client
	userAgent  string
	referer    string
}

// NewClient creates a new HTTP client configured for the manga platform.
//
// The client is configured with:
//   - 30 second timeout (a stalled image fetch surfaces as an image-level
//     error instead of hanging its worker)
//   - A desktop browser User-Agent
//   - The manga platform Referer
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		referer:   "https://manga.bilibili.com",
	}
}

// RequestOption mutates an outgoing request before it is sent.
type RequestOption func(*http.Request)

// WithCookie attaches a raw Cookie header to the request.
func WithCookie(cookie string) RequestOption {
	return func(req *http.Request) {
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}
}

// Get performs a GET request and returns the response body as bytes.
//
// The request includes the configured User-Agent and Referer headers.
//
// Returns an error if:
//   - The request fails
//   - The response status is not 200 OK
//   - Reading the body fails
func (c *Client) Get(ctx context.Context, rawURL string, opts ...RequestOption) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, opts)
}

// PostForm performs a form-encoded POST request and returns the response
// body as bytes. The platform's write endpoints (QR confirm, token
// issuance) are form-encoded rather than JSON.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, opts ...RequestOption) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, opts)
}

// PostJSON performs a POST request with a JSON body and returns the
// response body as bytes.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body []byte, opts ...RequestOption) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, opts)
}

// DownloadBytes downloads a file and returns the bytes in memory.
//
// Comic page images are at most a few megabytes, so buffering them is fine
// and lets the caller decrypt before anything touches disk.
func (c *Client) DownloadBytes(ctx context.Context, rawURL string, opts ...RequestOption) ([]byte, error) {
	return c.Get(ctx, rawURL, opts...)
}

func (c *Client) do(req *http.Request, opts []RequestOption) ([]byte, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.referer)
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(resp.Body)
}
