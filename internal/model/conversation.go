// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jbeaumont/floret/internal/util"
)

// TitleMaxLen is the number of runes kept when deriving a conversation
// title from its first user message.
const TitleMaxLen = 30

// DefaultTitle is used for conversations with no user message yet.
const DefaultTitle = "New Chat"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat transcript with its metadata.
//
// Messages is append-only during normal operation; the only in-place
// mutation is replacing the final assistant message on regeneration.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.New().String(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// NewConversationWithModel creates a conversation pinned to a model.
func NewConversationWithModel(modelID string) *Conversation {
	c := NewConversation()
	c.Model = modelID
	return c
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and refreshes metadata.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTitle()
}

// AddTurn appends a completed user/assistant exchange.
func (c *Conversation) AddTurn(user, assistant *Message) {
	c.AddMessage(user)
	c.AddMessage(assistant)
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastUserMessage returns the most recent user message, or nil.
func (c *Conversation) LastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i]
		}
	}
	return nil
}

// ReplaceLastAssistant overwrites the content of the most recent assistant
// message. Returns false if no assistant message exists.
func (c *Conversation) ReplaceLastAssistant(content string) bool {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			c.Messages[i].Content = content
			c.Messages[i].Timestamp = time.Now()
			c.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle derives the title from the first user message. Set once;
// later messages never change it.
func (c *Conversation) updateTitle() {
	if c.Title != "" && c.Title != DefaultTitle {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			c.Title = util.TruncateRunes(util.OneLine(msg.Content), TitleMaxLen)
			return
		}
	}
}

// =============================================================================
// METADATA
// =============================================================================

// Meta holds lightweight conversation metadata for listing.
type Meta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model,omitempty"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GetMeta returns listing metadata for the conversation.
func (c *Conversation) GetMeta() Meta {
	return Meta{
		ID:           c.ID,
		Title:        c.Title,
		Model:        c.Model,
		MessageCount: len(c.Messages),
		UpdatedAt:    c.UpdatedAt,
	}
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		Model:     c.Model,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		msgCopy := *msg
		if msg.Attachment != nil {
			attCopy := *msg.Attachment
			if msg.Attachment.Images != nil {
				attCopy.Images = append([]GeneratedImage(nil), msg.Attachment.Images...)
			}
			msgCopy.Attachment = &attCopy
		}
		clone.Messages[i] = &msgCopy
	}
	return clone
}

// Normalize repairs a conversation loaded from persistence: a missing ID is
// replaced with the supplied key, a nil message slice becomes empty, and
// nil message entries are dropped.
func (c *Conversation) Normalize(key string) {
	if c.ID == "" {
		c.ID = key
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.Messages == nil {
		c.Messages = make([]*Message, 0)
		return
	}
	kept := c.Messages[:0]
	for _, msg := range c.Messages {
		if msg != nil {
			kept = append(kept, msg)
		}
	}
	c.Messages = kept
}
