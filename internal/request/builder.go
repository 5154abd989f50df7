// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package request assembles protocol-correct chat payloads.
//
// The builder turns a conversation transcript plus a new prompt into the
// exact message list a given model can accept: system-role handling,
// history replay, and attachment degradation all happen here, driven by
// the model's capability record.
package request

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jbeaumont/floret/internal/model"
	"github.com/jbeaumont/floret/internal/pollinations"
	"github.com/jbeaumont/floret/internal/registry"
)

// systemWorkaroundAck is the synthetic assistant acknowledgment inserted
// after a downgraded system prompt.
const systemWorkaroundAck = "I understand these instructions and will act as a helpful AI assistant."

// Options control request assembly.
type Options struct {
	// SkipHistory omits the transcript replay. Used for derived calls
	// (search augmentation, captioning) that must not see the chat.
	SkipHistory bool
}

// Builder assembles wire requests from conversation state.
type Builder struct {
	registry  *registry.Registry
	captioner Captioner
}

// NewBuilder creates a builder. captioner may be nil, in which case image
// attachments on non-vision models degrade directly to a generic note.
func NewBuilder(reg *registry.Registry, captioner Captioner) *Builder {
	return &Builder{registry: reg, captioner: captioner}
}

// Build assembles the wire request for sending prompt (with optional
// attachment) on the given conversation.
//
// The capability record is resolved once here; everything downstream
// trusts the assembled request.
func (b *Builder) Build(ctx context.Context, conv *model.Conversation, modelID, prompt string, att *model.Attachment, opts Options) (pollinations.ChatRequest, error) {
	m := b.registry.Lookup(modelID)

	messages := make([]pollinations.ChatMessage, 0, conv.MessageCount()+3)

	// System prompt, downgraded to a user-role preamble when the model
	// rejects role:system.
	if sys := b.systemPrompt(m); sys != "" {
		if m.SupportsSystemRole {
			messages = append(messages, pollinations.NewTextMessage("system", sys))
		} else {
			messages = append(messages,
				pollinations.NewTextMessage("user", "[SYSTEM] "+sys+"\n\nPlease acknowledge these instructions."),
				pollinations.NewTextMessage("assistant", systemWorkaroundAck),
			)
		}
	}

	if !opts.SkipHistory {
		messages = append(messages, b.replayHistory(conv, m)...)
	}

	// Current turn with attachment handling.
	current, err := b.currentTurn(ctx, m, prompt, att)
	if err != nil {
		return pollinations.ChatRequest{}, err
	}
	messages = append(messages, current...)

	// Defensive strip: nothing with role:system may reach a model that
	// rejects it, whatever path added it.
	if !m.SupportsSystemRole {
		messages = stripSystemMessages(messages)
	}

	req := pollinations.NewChatRequest(m.ID, messages)
	req.Stream = m.SupportsStreaming
	return req, nil
}

// systemPrompt returns the effective system prompt for a model. The
// search model gets the current timestamp appended so answers can be
// grounded in time.
func (b *Builder) systemPrompt(m registry.Model) string {
	sys := m.SystemPrompt
	if m.SearchCapable && sys != "" {
		sys += " The current date and time is " + time.Now().Format(time.RFC3339) + "."
	}
	return sys
}

// replayHistory converts the stored transcript to wire messages.
// Image-bearing user turns expand to multipart content when the model
// can see; otherwise the text alone is replayed.
func (b *Builder) replayHistory(conv *model.Conversation, m registry.Model) []pollinations.ChatMessage {
	out := make([]pollinations.ChatMessage, 0, conv.MessageCount())
	for _, msg := range conv.Messages {
		switch msg.Role {
		case model.RoleUser:
			if msg.Attachment.IsImage() && m.SupportsVision {
				out = append(out, pollinations.NewMultipartMessage("user", []pollinations.ContentPart{
					pollinations.TextPart(msg.Content),
					pollinations.ImagePart(msg.Attachment.DataURI()),
				}))
			} else {
				out = append(out, pollinations.NewTextMessage("user", msg.Content))
			}
		case model.RoleAssistant:
			if msg.Content != "" {
				out = append(out, pollinations.NewTextMessage("assistant", msg.Content))
			}
		}
		// Stored system messages are never replayed; the system prompt
		// is rebuilt from the registry on every send.
	}
	return out
}

// currentTurn builds the wire message(s) for the new prompt.
func (b *Builder) currentTurn(ctx context.Context, m registry.Model, prompt string, att *model.Attachment) ([]pollinations.ChatMessage, error) {
	if att == nil {
		return []pollinations.ChatMessage{pollinations.NewTextMessage("user", prompt)}, nil
	}

	switch att.Kind {
	case model.AttachmentImage:
		if m.SupportsVision {
			return []pollinations.ChatMessage{pollinations.NewMultipartMessage("user", []pollinations.ContentPart{
				pollinations.TextPart(prompt),
				pollinations.ImagePart(att.DataURI()),
			})}, nil
		}
		return []pollinations.ChatMessage{pollinations.NewTextMessage("user", b.describeImage(ctx, prompt, att))}, nil

	case model.AttachmentFile:
		return []pollinations.ChatMessage{pollinations.NewTextMessage("user", inlineFile(prompt, att))}, nil

	default:
		// Generated image sets and unknown kinds are context, not input.
		return []pollinations.ChatMessage{pollinations.NewTextMessage("user", prompt)}, nil
	}
}

// describeImage degrades an image attachment for a text-only model:
// caption via the vision model when a captioner is available, otherwise a
// generic note. Caption failures are recoverable and also degrade to the
// note.
func (b *Builder) describeImage(ctx context.Context, prompt string, att *model.Attachment) string {
	note := attachmentNote(att)
	if b.captioner == nil {
		return note + "\n\n" + prompt
	}
	caption, err := b.captioner.Caption(ctx, att)
	if err != nil || caption == "" {
		return note + "\n\n" + prompt
	}
	return "[Image description: " + caption + "]\n\n" + prompt
}

// inlineFile renders a file attachment into the prompt. Text-like files
// are decoded and inlined in a code fence; everything else becomes a note.
func inlineFile(prompt string, att *model.Attachment) string {
	if isTextLike(att.MediaType) {
		decoded, err := base64.StdEncoding.DecodeString(att.Data)
		if err == nil {
			return fmt.Sprintf("Attached file %q:\n```\n%s\n```\n\n%s", att.Name, string(decoded), prompt)
		}
	}
	return attachmentNote(att) + "\n\n" + prompt
}

// attachmentNote is the last rung of the degradation chain.
func attachmentNote(att *model.Attachment) string {
	name := att.Name
	if name == "" {
		name = "attachment"
	}
	if att.MediaType != "" {
		return fmt.Sprintf("[Attached file: %s (%s)]", name, att.MediaType)
	}
	return fmt.Sprintf("[Attached file: %s]", name)
}

// isTextLike reports whether a media type can be inlined as text.
func isTextLike(mediaType string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/javascript",
		"application/x-yaml", "application/toml":
		return true
	}
	return false
}

// stripSystemMessages removes any role:system entries.
func stripSystemMessages(messages []pollinations.ChatMessage) []pollinations.ChatMessage {
	out := messages[:0]
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}
		out = append(out, msg)
	}
	return out
}
