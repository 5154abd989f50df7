// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pollinations implements the HTTP transport for the Pollinations
// text and image endpoints.
package pollinations

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the Pollinations API.
const (
	// DefaultTextURL is the base URL for the text endpoint.
	DefaultTextURL = "https://text.pollinations.ai"

	// DefaultImageURL is the base URL for the image endpoint.
	DefaultImageURL = "https://image.pollinations.ai"

	// DefaultTimeout is the timeout for buffered (non-streaming) requests.
	DefaultTimeout = 60 * time.Second

	// HealthTimeout bounds the health probe.
	HealthTimeout = 3 * time.Second

	// MaxResponseSize caps buffered response bodies.
	MaxResponseSize = 10 * 1024 * 1024
)

var (
	// Shared pooled client for buffered requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// Shared pooled client for streaming requests. No client timeout;
	// lifetime is controlled by the request context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// ContentPart is one element of a multipart message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef wraps an image URL (typically a data URI).
type ImageRef struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageRef{URL: url}}
}

// ChatMessage is a single wire-format message. Content is either a plain
// string or a []ContentPart for multipart (image-bearing) turns.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// NewTextMessage creates a plain-text wire message.
func NewTextMessage(role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content}
}

// NewMultipartMessage creates a multipart wire message.
func NewMultipartMessage(role string, parts []ContentPart) ChatMessage {
	return ChatMessage{Role: role, Content: parts}
}

// ChatRequest is the payload for the chat completions endpoint.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Seed        int           `json:"seed"`
	Stream      bool          `json:"stream"`
	Private     bool          `json:"private"`
	NoFeed      bool          `json:"nofeed"`
	Token       string        `json:"token,omitempty"`
	Referrer    string        `json:"referrer,omitempty"`
}

// NewChatRequest creates a request with the fixed sampling defaults the
// service expects.
func NewChatRequest(model string, messages []ChatMessage) ChatRequest {
	return ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 1.0,
		TopP:        1.0,
		Seed:        -1,
		Private:     true,
		NoFeed:      true,
	}
}

// ChatResponse is a buffered (non-streaming) completion response.
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GetContent returns the content of the first choice, or empty string.
func (r *ChatResponse) GetContent() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the Pollinations text and image endpoints.
type Client struct {
	textURL  string
	imageURL string
	token    string
	referrer string
	limiter  *rate.Limiter
}

// NewClient creates a client with the given credentials.
func NewClient(token, referrer string) *Client {
	return &Client{
		textURL:  DefaultTextURL,
		imageURL: DefaultImageURL,
		token:    token,
		referrer: referrer,
		// Client-side pacing keeps bursts from tripping the service's
		// rate limit in the first place.
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// WithTextURL overrides the text endpoint base URL.
func (c *Client) WithTextURL(url string) *Client {
	c.textURL = trimSlash(url)
	return c
}

// WithImageURL overrides the image endpoint base URL.
func (c *Client) WithImageURL(url string) *Client {
	c.imageURL = trimSlash(url)
	return c
}

// WithRateLimit overrides the client-side pacing limiter.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// Credentials returns the token and referrer the client was built with.
func (c *Client) Credentials() (token, referrer string) {
	return c.token, c.referrer
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// stamp fills the credential fields on an outgoing request.
func (c *Client) stamp(req *ChatRequest) {
	req.Token = c.token
	req.Referrer = c.referrer
}

// =============================================================================
// CHAT COMPLETIONS
// =============================================================================

// Complete performs a buffered chat completion and returns the full
// response text.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	req.Stream = false
	c.stamp(&req)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.textURL+"/openai", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := sharedHTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	log.Printf("chat completion: %s %d (%v)", req.Model, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	respBody, err := readBody(resp)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, respBody)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	content := chatResp.GetContent()
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// OpenStream performs a streaming chat completion and returns the response
// body for the stream consumer. The caller owns the body and must close it.
func (c *Client) OpenStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	req.Stream = true
	c.stamp(&req)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.textURL+"/openai", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		resp.Body.Close()
		return nil, statusError(resp.StatusCode, respBody)
	}

	log.Printf("chat stream opened: %s", req.Model)
	return resp.Body, nil
}

// =============================================================================
// HEALTH PROBE
// =============================================================================

// Health probes the service health endpoint. Failure is informational,
// never fatal to the pipeline.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.textURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// readBody reads a response body with a size cap.
func readBody(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}
