// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package imagegen implements the image generation branch of the pipeline.
//
// Generation is sequential and index-ordered: image k is fetched only
// after image k-1 resolved, and the resulting set preserves request order
// regardless of timing.
package imagegen

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"github.com/jbeaumont/floret/internal/model"
	"github.com/jbeaumont/floret/internal/pollinations"
	"github.com/jbeaumont/floret/internal/store"
)

// DefaultCount is the number of images generated when unspecified.
const DefaultCount = 1

// MaxCount bounds one generation request.
const MaxCount = 8

// Options control one generation run.
type Options struct {
	Model   string
	Count   int
	Width   int
	Height  int
	Enhance bool

	// Seed for the first image; subsequent images use Seed+index.
	// Zero means a random seed per run.
	Seed int64
}

// Fetcher is the slice of the transport client the generator needs.
type Fetcher interface {
	BuildImageURL(prompt string, p pollinations.ImageParams) string
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Generator produces image sets and records them in the conversation.
type Generator struct {
	client Fetcher
	store  *store.Store
}

// New creates a generator.
func New(client Fetcher, st *store.Store) *Generator {
	return &Generator{client: client, store: st}
}

// Generate creates opts.Count images for prompt, appends the exchange to
// the conversation, and returns the generated set attachment.
//
// Cancellation between images stops the run; nothing is persisted for a
// cancelled run.
func (g *Generator) Generate(ctx context.Context, convID, prompt string, opts Options) (*model.Attachment, error) {
	count := opts.Count
	if count <= 0 {
		count = DefaultCount
	}
	if count > MaxCount {
		count = MaxCount
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Int63n(1_000_000)
	}

	images := make([]model.GeneratedImage, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		params := pollinations.ImageParams{
			Model:   opts.Model,
			Width:   opts.Width,
			Height:  opts.Height,
			Seed:    seed + int64(i),
			Enhance: opts.Enhance,
		}
		url := g.client.BuildImageURL(prompt, params)

		// Fetch resolves the image before the next one starts; the set
		// completes strictly in index order.
		if _, err := g.client.FetchImage(ctx, url); err != nil {
			return nil, fmt.Errorf("image %d of %d failed: %w", i+1, count, err)
		}

		images = append(images, model.GeneratedImage{
			Index:  i,
			URL:    url,
			Prompt: prompt,
			Seed:   params.Seed,
			Width:  opts.Width,
			Height: opts.Height,
		})
	}

	att := &model.Attachment{
		Kind:   model.AttachmentGeneratedImages,
		Images: images,
	}

	reply := fmt.Sprintf("Generated %d image(s) for: %s", len(images), prompt)
	assistant := model.NewAssistantMessage(reply)
	assistant.Attachment = att

	if err := g.store.AppendTurn(convID, model.NewUserMessage(prompt), assistant); err != nil {
		return nil, err
	}
	log.Printf("image generation complete: %d image(s)", len(images))
	return att, nil
}
