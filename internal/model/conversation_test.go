// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

func TestNewConversation(t *testing.T) {
	c := NewConversation()

	if c.ID == "" {
		t.Error("expected generated ID")
	}
	if c.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", c.Title, DefaultTitle)
	}
	if !c.IsEmpty() {
		t.Error("new conversation should be empty")
	}

	c2 := NewConversation()
	if c.ID == c2.ID {
		t.Error("two conversations got the same ID")
	}
}

func TestTitleFromFirstUserMessage(t *testing.T) {
	c := NewConversation()
	c.AddMessage(NewUserMessage("What is the capital of France and why is it Paris?"))

	want := "What is the capital of France "
	if c.Title != want {
		t.Errorf("Title = %q, want %q", c.Title, want)
	}
	if len([]rune(c.Title)) != TitleMaxLen {
		t.Errorf("title length = %d, want %d", len([]rune(c.Title)), TitleMaxLen)
	}

	// Later messages never change the title.
	c.AddMessage(NewAssistantMessage("Paris."))
	c.AddMessage(NewUserMessage("A completely different question"))
	if c.Title != want {
		t.Errorf("title changed on later message: %q", c.Title)
	}
}

func TestTitleShortMessage(t *testing.T) {
	c := NewConversation()
	c.AddMessage(NewUserMessage("hi"))
	if c.Title != "hi" {
		t.Errorf("Title = %q, want %q", c.Title, "hi")
	}
}

func TestAddTurn(t *testing.T) {
	c := NewConversation()
	for i := 0; i < 3; i++ {
		c.AddTurn(NewUserMessage("q"), NewAssistantMessage("a"))
	}
	if c.MessageCount() != 6 {
		t.Errorf("MessageCount = %d, want 6", c.MessageCount())
	}
	// Roles strictly alternate user/assistant.
	for i, msg := range c.Messages {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if msg.Role != want {
			t.Errorf("message %d role = %s, want %s", i, msg.Role, want)
		}
	}
}

func TestReplaceLastAssistant(t *testing.T) {
	c := NewConversation()
	if c.ReplaceLastAssistant("x") {
		t.Error("ReplaceLastAssistant on empty conversation should return false")
	}

	c.AddTurn(NewUserMessage("q1"), NewAssistantMessage("a1"))
	c.AddTurn(NewUserMessage("q2"), NewAssistantMessage("a2"))

	if !c.ReplaceLastAssistant("a2-regenerated") {
		t.Fatal("ReplaceLastAssistant returned false")
	}
	if got := c.Messages[3].Content; got != "a2-regenerated" {
		t.Errorf("last assistant = %q", got)
	}
	if got := c.Messages[1].Content; got != "a1" {
		t.Errorf("earlier assistant modified: %q", got)
	}
}

func TestLastUserMessage(t *testing.T) {
	c := NewConversation()
	c.AddTurn(NewUserMessage("first"), NewAssistantMessage("a"))
	c.AddTurn(NewUserMessageWithAttachment("second", &Attachment{
		Kind:      AttachmentImage,
		MediaType: "image/png",
		Data:      "aGk=",
	}), NewAssistantMessage("b"))

	last := c.LastUserMessage()
	if last == nil || last.Content != "second" {
		t.Fatalf("LastUserMessage = %+v", last)
	}
	if last.Attachment == nil || last.Attachment.MediaType != "image/png" {
		t.Error("attachment media type not preserved")
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := NewConversation()
	c.AddMessage(NewUserMessageWithAttachment("q", &Attachment{
		Kind: AttachmentGeneratedImages,
		Images: []GeneratedImage{
			{Index: 0, URL: "http://example/0"},
		},
	}))

	clone := c.Clone()
	clone.Messages[0].Content = "changed"
	clone.Messages[0].Attachment.Images[0].URL = "http://example/other"

	if c.Messages[0].Content != "q" {
		t.Error("clone shares message with original")
	}
	if c.Messages[0].Attachment.Images[0].URL != "http://example/0" {
		t.Error("clone shares attachment images with original")
	}
}

func TestNormalize(t *testing.T) {
	c := &Conversation{}
	c.Normalize("abc-123")

	if c.ID != "abc-123" {
		t.Errorf("ID = %q, want abc-123", c.ID)
	}
	if c.Title != DefaultTitle {
		t.Errorf("Title = %q", c.Title)
	}
	if c.Messages == nil || len(c.Messages) != 0 {
		t.Error("Messages should be an empty slice")
	}

	c2 := &Conversation{
		ID:       "keep",
		Messages: []*Message{nil, NewUserMessage("hello"), nil},
	}
	c2.Normalize("other")
	if c2.ID != "keep" {
		t.Errorf("ID = %q, want keep", c2.ID)
	}
	if len(c2.Messages) != 1 || c2.Messages[0].Content != "hello" {
		t.Errorf("nil messages not dropped: %d", len(c2.Messages))
	}
}

func TestDataURI(t *testing.T) {
	att := &Attachment{Kind: AttachmentImage, MediaType: "image/jpeg", Data: "YWJj"}
	want := "data:image/jpeg;base64,YWJj"
	if got := att.DataURI(); got != want {
		t.Errorf("DataURI = %q, want %q", got, want)
	}

	var nilAtt *Attachment
	if nilAtt.DataURI() != "" {
		t.Error("nil attachment should render empty data URI")
	}
	if !strings.HasPrefix(att.DataURI(), "data:") {
		t.Error("data URI prefix missing")
	}
}
