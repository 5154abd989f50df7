// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and attachments.
package model

import (
	"time"
)

// =============================================================================
// ROLES
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// =============================================================================
// ATTACHMENTS
// =============================================================================

// AttachmentKind distinguishes the payload carried by an attachment.
type AttachmentKind string

const (
	// AttachmentImage is a user-supplied image (base64 payload).
	AttachmentImage AttachmentKind = "image"

	// AttachmentFile is a user-supplied file. Text-like media types are
	// inlined into the prompt; others degrade to a note.
	AttachmentFile AttachmentKind = "file"

	// AttachmentGeneratedImages is a set of images produced by the image
	// generation flow, kept in index order.
	AttachmentGeneratedImages AttachmentKind = "generated-image-set"
)

// Attachment is an auxiliary payload carried by a message.
//
// MediaType is always explicit. It is recorded when the attachment is
// created and reused verbatim on regeneration, never inferred later.
type Attachment struct {
	Kind      AttachmentKind `json:"kind"`
	Name      string         `json:"name,omitempty"`
	MediaType string         `json:"media_type,omitempty"`

	// Data holds the base64-encoded payload for image and file kinds.
	Data string `json:"data,omitempty"`

	// Images holds the generated set for AttachmentGeneratedImages.
	Images []GeneratedImage `json:"images,omitempty"`
}

// GeneratedImage is a single result from the image generation flow.
type GeneratedImage struct {
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
	Seed   int64  `json:"seed"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// IsImage reports whether the attachment carries an image payload.
func (a *Attachment) IsImage() bool {
	return a != nil && a.Kind == AttachmentImage
}

// DataURI renders an image attachment as a data URI for wire transmission.
func (a *Attachment) DataURI() string {
	if a == nil || a.Data == "" {
		return ""
	}
	return "data:" + a.MediaType + ";base64," + a.Data
}

// =============================================================================
// MESSAGES
// =============================================================================

// Message is a single turn entry in a conversation.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(content string) *Message {
	return &Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessageWithAttachment creates a user message carrying an attachment.
func NewUserMessageWithAttachment(content string, att *Attachment) *Message {
	msg := NewUserMessage(content)
	msg.Attachment = att
	return msg
}

// NewAssistantMessage creates an assistant message stamped with the current time.
func NewAssistantMessage(content string) *Message {
	return &Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
}
