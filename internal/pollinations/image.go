// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

package pollinations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// =============================================================================
// IMAGE GENERATION
// =============================================================================

// ImageParams holds the URL parameters for one image generation request.
type ImageParams struct {
	Model   string
	Width   int
	Height  int
	Seed    int64
	Enhance bool
}

// BuildImageURL constructs the generation URL for a prompt. The URL
// carries no credentials and is safe to persist or display; FetchImage
// stamps the token and referrer at request time.
func (c *Client) BuildImageURL(prompt string, p ImageParams) string {
	q := url.Values{}
	if p.Model != "" {
		q.Set("model", p.Model)
	}
	q.Set("nologo", "true")
	q.Set("private", "true")
	q.Set("nofeed", "true")
	q.Set("seed", strconv.FormatInt(p.Seed, 10))
	if p.Width > 0 {
		q.Set("width", strconv.Itoa(p.Width))
	}
	if p.Height > 0 {
		q.Set("height", strconv.Itoa(p.Height))
	}
	if p.Enhance {
		q.Set("enhance", "true")
	}

	return c.imageURL + "/prompt/" + url.PathEscape(prompt) + "?" + q.Encode()
}

// FetchImage retrieves a generated image, adding credentials to the
// request URL. The returned bytes are the raw image payload.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.stampImageURL(imageURL), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, body)
	}

	return readBody(resp)
}

// stampImageURL appends the client credentials to a generation URL.
// Unparseable URLs pass through and fail in the request constructor.
func (c *Client) stampImageURL(raw string) string {
	if c.token == "" && c.referrer == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if c.token != "" {
		q.Set("token", c.token)
	}
	if c.referrer != "" {
		q.Set("referrer", c.referrer)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
