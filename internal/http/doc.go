// Package http provides an HTTP client configured for the bilibili manga
// platform.
//
// The Client in this package handles:
//   - User-Agent and Referer headers the image CDN expects
//   - Cookie and form-encoded POST requests for the API endpoints
//   - Byte downloads for images (images are small enough to buffer)
//   - Timeout handling
//
// # Basic Usage
//
//	client := http.NewClient()
//
//	// Fetch an API response
//	body, err := client.Get(ctx, apiURL, http.WithCookie(cookie))
//
//	// Download an image
//	data, err := client.DownloadBytes(ctx, imageURL)
package http
