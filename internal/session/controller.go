// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives one response turn end to end: request assembly,
// transport, stream consumption, render events, and the final store write.
package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/jbeaumont/floret/internal/model"
	"github.com/jbeaumont/floret/internal/pollinations"
	"github.com/jbeaumont/floret/internal/registry"
	"github.com/jbeaumont/floret/internal/request"
	"github.com/jbeaumont/floret/internal/store"
	"github.com/jbeaumont/floret/internal/stream"
)

// Transport is the slice of the HTTP client the controller needs.
// *pollinations.Client satisfies it.
type Transport interface {
	Complete(ctx context.Context, req pollinations.ChatRequest) (string, error)
	OpenStream(ctx context.Context, req pollinations.ChatRequest) (io.ReadCloser, error)
}

// Config holds controller tuning.
type Config struct {
	// MaxRetries is how many times a rate-limited request is retried
	// after the initial attempt.
	MaxRetries int

	// BackoffBase scales the linear retry delay: attempt * BackoffBase.
	BackoffBase time.Duration
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  2,
		BackoffBase: time.Second,
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the single active response session.
//
// Starting a new session while one is in flight cancels the prior session
// and waits for it to release before proceeding.
type Controller struct {
	store     *store.Store
	transport Transport
	builder   *request.Builder
	registry  *registry.Registry
	cfg       Config

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a controller.
func NewController(st *store.Store, transport Transport, builder *request.Builder, reg *registry.Registry, cfg Config) *Controller {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &Controller{
		store:     st,
		transport: transport,
		builder:   builder,
		registry:  reg,
		cfg:       cfg,
		state:     StateIdle,
	}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancel signals the active session, if any, to stop. It does not wait.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// begin cancels any in-flight session, waits for its release, and claims
// the controller for a new one.
func (c *Controller) begin(ctx context.Context) (context.Context, func()) {
	for {
		c.mu.Lock()
		if c.done == nil {
			break
		}
		cancel, done := c.cancel, c.done
		c.mu.Unlock()
		cancel()
		<-done
	}

	sessCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.state = StateBuilding
	c.mu.Unlock()

	release := func() {
		cancel()
		c.mu.Lock()
		c.state = StateIdle
		c.cancel = nil
		c.done = nil
		c.mu.Unlock()
		close(done)
	}
	return sessCtx, release
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// =============================================================================
// SEND OPERATIONS
// =============================================================================

// Send runs one full response turn on a conversation: the prompt (and
// optional attachment) is sent to the conversation's model, render events
// flow to sink, and the completed exchange is appended to the store.
//
// Send blocks until the turn reaches a terminal state. Cancellation (via
// ctx or Cancel) is a successful terminal state: the sink receives
// Cancelled and nothing is persisted.
func (c *Controller) Send(ctx context.Context, sink Sink, convID, prompt string, att *model.Attachment) error {
	return c.run(ctx, sink, convID, prompt, prompt, att, false)
}

// SendSearch augments the prompt with live search results before the main
// model call. The derived search call sees no conversation history, and
// only the original prompt is persisted.
func (c *Controller) SendSearch(ctx context.Context, sink Sink, convID, prompt string) error {
	sessCtx, release := c.begin(ctx)
	defer release()

	conv, err := c.store.Get(convID)
	if err != nil {
		sink.Failed(KindBadRequest, "Unknown conversation.", err)
		return err
	}

	searchReq, err := c.builder.Build(sessCtx, conv, registry.SearchModelID, prompt, nil, request.Options{SkipHistory: true})
	if err != nil {
		sink.Failed(Classify(err), pollinations.FriendlyMessage(err), err)
		return err
	}
	searchReq.Stream = false

	c.setState(StateSending)
	results, err := c.transport.Complete(sessCtx, searchReq)
	if err != nil {
		if isCancel(err) || sessCtx.Err() != nil {
			c.setState(StateCancelled)
			sink.Cancelled("")
			return nil
		}
		// Search failure is recoverable: fall back to the plain prompt.
		log.Printf("search augmentation failed, sending plain prompt: %v", err)
		results = ""
	}

	wirePrompt := prompt
	if results != "" {
		wirePrompt = "Here is up-to-date information relevant to the question:\n\n" +
			results + "\n\nUsing the information above where helpful, answer:\n" + prompt
	}

	return c.turn(sessCtx, sink, conv, wirePrompt, prompt, nil, false)
}

// Regenerate re-runs the last turn of a conversation: the stored user
// message (content and attachment, as persisted) is resent, and on success
// the previous assistant message is replaced in place.
func (c *Controller) Regenerate(ctx context.Context, sink Sink, convID string) error {
	return c.run(ctx, sink, convID, "", "", nil, true)
}

// run claims the controller and executes a turn.
func (c *Controller) run(ctx context.Context, sink Sink, convID, wirePrompt, storedPrompt string, att *model.Attachment, regenerate bool) error {
	sessCtx, release := c.begin(ctx)
	defer release()

	conv, err := c.store.Get(convID)
	if err != nil {
		sink.Failed(KindBadRequest, "Unknown conversation.", err)
		return err
	}

	if regenerate {
		last := conv.LastUserMessage()
		if last == nil {
			err := fmt.Errorf("nothing to regenerate")
			sink.Failed(KindBadRequest, "There is no turn to regenerate.", err)
			return err
		}
		// The stored content and attachment are reused verbatim; the
		// media type recorded at upload time is never re-inferred.
		wirePrompt = last.Content
		storedPrompt = last.Content
		att = last.Attachment
		trimLastTurn(conv)
	}

	return c.turn(sessCtx, sink, conv, wirePrompt, storedPrompt, att, regenerate)
}

// turn executes the send/stream/finalize pipeline on an already-claimed
// session. conv is a detached copy used for request assembly.
func (c *Controller) turn(sessCtx context.Context, sink Sink, conv *model.Conversation, wirePrompt, storedPrompt string, att *model.Attachment, regenerate bool) error {
	req, err := c.builder.Build(sessCtx, conv, conv.Model, wirePrompt, att, request.Options{})
	if err != nil {
		sink.Failed(Classify(err), pollinations.FriendlyMessage(err), err)
		return err
	}

	// The captioning call inside Build is detached from cancellation;
	// if the session was cancelled while it ran, stop here and discard.
	if sessCtx.Err() != nil {
		c.setState(StateCancelled)
		sink.Cancelled("")
		return nil
	}

	full, err := c.execute(sessCtx, sink, req)
	if err != nil {
		if isCancel(err) || sessCtx.Err() != nil {
			c.setState(StateCancelled)
			sink.Cancelled(full)
			return nil
		}
		sink.Failed(Classify(err), pollinations.FriendlyMessage(err), err)
		return err
	}

	// Finalize: terminal render event first, store write after. A store
	// failure is reported but the sink has already seen the completion.
	c.setState(StateFinalizing)
	sink.Complete(full)

	if regenerate {
		err = c.store.ReplaceLastAssistant(conv.ID, full)
	} else {
		err = c.store.AppendTurn(conv.ID,
			model.NewUserMessageWithAttachment(storedPrompt, att),
			model.NewAssistantMessage(full))
	}
	if err != nil {
		log.Printf("failed to persist completed turn: %v", err)
		return err
	}
	return nil
}

// execute performs the transport call with bounded linear-backoff retry
// on rate limiting. Returns the full response text, and any partial text
// alongside a cancellation error.
func (c *Controller) execute(ctx context.Context, sink Sink, req pollinations.ChatRequest) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.setState(StateRetrying)
			delay := time.Duration(attempt) * c.cfg.BackoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		c.setState(StateSending)

		if !req.Stream {
			full, err := c.transport.Complete(ctx, req)
			if err != nil {
				if isCancel(err) || ctx.Err() != nil {
					return "", context.Canceled
				}
				if isRetryable(err) {
					lastErr = err
					continue
				}
				return "", err
			}
			// Buffered mode: no deltas, one completion.
			return full, nil
		}

		body, err := c.transport.OpenStream(ctx, req)
		if err != nil {
			if isCancel(err) || ctx.Err() != nil {
				return "", context.Canceled
			}
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return "", err
		}

		c.setState(StateStreaming)
		full, err := stream.Consume(ctx, body, sink.Delta)
		body.Close()
		if err != nil {
			// Once deltas have flowed, a mid-stream failure is not
			// retried: the transcript on screen would fork.
			return full, err
		}
		return full, nil
	}

	return "", fmt.Errorf("retries exhausted: %w", lastErr)
}

// isRetryable reports whether a transport error warrants another attempt.
func isRetryable(err error) bool {
	return Classify(err) == KindRateLimited
}

// trimLastTurn removes the trailing assistant message and the user message
// before it, so regeneration's history replay excludes the turn being
// redone.
func trimLastTurn(conv *model.Conversation) {
	msgs := conv.Messages
	if n := len(msgs); n > 0 && msgs[n-1].Role == model.RoleAssistant {
		msgs = msgs[:n-1]
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == model.RoleUser {
		msgs = msgs[:n-1]
	}
	conv.Messages = msgs
}
