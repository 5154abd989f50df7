// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

package request

import (
	"context"

	"github.com/jbeaumont/floret/internal/model"
	"github.com/jbeaumont/floret/internal/pollinations"
	"github.com/jbeaumont/floret/internal/registry"
)

// captionPrompt asks the vision model for a transcript-friendly description.
const captionPrompt = "Describe this image in detail so it can be discussed in a text-only conversation."

// Captioner produces a text description of an image attachment.
type Captioner interface {
	Caption(ctx context.Context, att *model.Attachment) (string, error)
}

// VisionCaptioner captions images with a one-shot buffered call to the
// vision model.
type VisionCaptioner struct {
	client *pollinations.Client
}

// NewVisionCaptioner creates a captioner over the given transport client.
func NewVisionCaptioner(client *pollinations.Client) *VisionCaptioner {
	return &VisionCaptioner{client: client}
}

// Caption implements Captioner.
//
// The call is deliberately detached from the caller's cancellation: a
// caption in flight runs to completion and the session discards the
// result if the turn was cancelled.
func (v *VisionCaptioner) Caption(_ context.Context, att *model.Attachment) (string, error) {
	req := pollinations.NewChatRequest(registry.VisionModelID, []pollinations.ChatMessage{
		pollinations.NewMultipartMessage("user", []pollinations.ContentPart{
			pollinations.TextPart(captionPrompt),
			pollinations.ImagePart(att.DataURI()),
		}),
	})
	req.Temperature = 0.7

	return v.client.Complete(context.Background(), req)
}
