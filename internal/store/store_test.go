// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbeaumont/floret/internal/model"
)

func fileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conversations.json")
	s, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	return s, path
}

func TestCreateAndGet(t *testing.T) {
	s, _ := fileStore(t)
	defer s.Close()

	conv, err := s.Create("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", conv.Model)
	assert.Equal(t, conv.ID, s.Current(), "create selects the new conversation")

	got, err := s.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.True(t, got.IsEmpty())
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := fileStore(t)
	defer s.Close()

	conv, err := s.Create("openai")
	require.NoError(t, err)

	got, err := s.Get(conv.ID)
	require.NoError(t, err)
	got.Messages = append(got.Messages, model.NewUserMessage("sneaky"))

	again, err := s.Get(conv.ID)
	require.NoError(t, err)
	assert.True(t, again.IsEmpty(), "mutation of returned copy leaked into store")
}

func TestAppendTurnRoundTrip(t *testing.T) {
	s, path := fileStore(t)

	conv, err := s.Create("claude")
	require.NoError(t, err)

	user := model.NewUserMessage("What's the weather?")
	assistant := model.NewAssistantMessage("I can't check live weather.")
	require.NoError(t, s.AppendTurn(conv.ID, user, assistant))
	require.NoError(t, s.Close())

	// Reopen from disk: full state equality.
	s2, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount())
	assert.Equal(t, "What's the weather?", got.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "claude", got.Model)
	assert.Equal(t, "What's the weather?", got.Title)
	assert.Equal(t, conv.ID, s2.Current())
}

func TestMessagesLengthMatchesCompletedTurns(t *testing.T) {
	s, _ := fileStore(t)
	defer s.Close()

	conv, err := s.Create("openai")
	require.NoError(t, err)

	const turns = 5
	for i := 0; i < turns; i++ {
		require.NoError(t, s.AppendTurn(conv.ID,
			model.NewUserMessage("q"), model.NewAssistantMessage("a")))
	}

	got, err := s.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*turns, got.MessageCount())
}

func TestAttachmentRoundTrip(t *testing.T) {
	s, path := fileStore(t)

	conv, err := s.Create("openai-large")
	require.NoError(t, err)

	att := &model.Attachment{
		Kind:      model.AttachmentImage,
		Name:      "photo.png",
		MediaType: "image/png",
		Data:      "aVZCT1J3MEtHZ28=",
	}
	require.NoError(t, s.AppendTurn(conv.ID,
		model.NewUserMessageWithAttachment("what is this?", att),
		model.NewAssistantMessage("a photo")))
	require.NoError(t, s.Close())

	s2, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(conv.ID)
	require.NoError(t, err)
	loaded := got.Messages[0].Attachment
	require.NotNil(t, loaded)
	assert.Equal(t, "image/png", loaded.MediaType, "media type must survive persistence verbatim")
	assert.Equal(t, att.Data, loaded.Data)
}

func TestTolerantLoadNormalizesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.json")

	// Hand-built snapshot: one entry missing id and messages, one
	// structurally broken entry, one good entry.
	blob := `{
		"current": "good",
		"conversations": {
			"legacy": {"title": "old chat"},
			"broken": [1, 2, 3],
			"good": {"id": "good", "title": "fine", "messages": [{"role":"user","content":"hi"}]}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0644))

	s, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	defer s.Close()

	// Legacy entry normalized: key becomes its ID, messages become empty.
	legacy, err := s.Get("legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy", legacy.ID)
	assert.NotNil(t, legacy.Messages)
	assert.Equal(t, 0, legacy.MessageCount())

	// Broken entry skipped entirely.
	_, err = s.Get("broken")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	good, err := s.Get("good")
	require.NoError(t, err)
	assert.Equal(t, 1, good.MessageCount())
	assert.Equal(t, "good", s.Current())
}

func TestCorruptSnapshotStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{{"), 0644))

	s, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.List())
}

func TestDelete(t *testing.T) {
	s, _ := fileStore(t)
	defer s.Close()

	conv, err := s.Create("openai")
	require.NoError(t, err)

	require.NoError(t, s.Delete(conv.ID))
	assert.Equal(t, "", s.Current(), "deleting current clears selection")

	_, err = s.Get(conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.ErrorIs(t, s.Delete(conv.ID), ErrConversationNotFound)
}

func TestListSortedByRecency(t *testing.T) {
	s, _ := fileStore(t)
	defer s.Close()

	a, err := s.Create("openai")
	require.NoError(t, err)
	b, err := s.Create("claude")
	require.NoError(t, err)

	// Touch a so it becomes most recent.
	require.NoError(t, s.AppendTurn(a.ID,
		model.NewUserMessage("later"), model.NewAssistantMessage("ok")))

	metas := s.List()
	require.Len(t, metas, 2)
	assert.Equal(t, a.ID, metas[0].ID)
	assert.Equal(t, b.ID, metas[1].ID)
	assert.Equal(t, 2, metas[0].MessageCount)
}

func TestReplaceLastAssistant(t *testing.T) {
	s, path := fileStore(t)

	conv, err := s.Create("openai")
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(conv.ID,
		model.NewUserMessage("q"), model.NewAssistantMessage("first answer")))

	require.NoError(t, s.ReplaceLastAssistant(conv.ID, "better answer"))
	require.NoError(t, s.Close())

	s2, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount(), "replacement must not grow the transcript")
	assert.Equal(t, "better answer", got.Messages[1].Content)
}

func TestSetModelAndSetCurrent(t *testing.T) {
	s, _ := fileStore(t)
	defer s.Close()

	a, _ := s.Create("openai")
	b, _ := s.Create("openai")

	require.NoError(t, s.SetModel(a.ID, "mistral"))
	got, _ := s.Get(a.ID)
	assert.Equal(t, "mistral", got.Model)

	require.NoError(t, s.SetCurrent(a.ID))
	assert.Equal(t, a.ID, s.Current())
	assert.ErrorIs(t, s.SetCurrent("nope"), ErrConversationNotFound)
	_ = b
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floret.db")

	backend, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	s, err := Open(backend)
	require.NoError(t, err)

	conv, err := s.Create("openai")
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(conv.ID,
		model.NewUserMessage("persisted?"), model.NewAssistantMessage("yes")))
	require.NoError(t, s.Close())

	backend2, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	s2, err := Open(backend2)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount())
	assert.Equal(t, "persisted?", got.Messages[0].Content)
}

func TestSnapshotIsSingleBlob(t *testing.T) {
	s, path := fileStore(t)

	_, err := s.Create("openai")
	require.NoError(t, err)
	_, err = s.Create("claude")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap struct {
		Conversations map[string]json.RawMessage `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Len(t, snap.Conversations, 2)
}

func TestReloadWithoutMutationIsStable(t *testing.T) {
	s, path := fileStore(t)
	conv, err := s.Create("openai")
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(conv.ID,
		model.NewUserMessage("hello"),
		model.NewAssistantMessage("hi")))
	require.NoError(t, s.Close())

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s1, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	list1 := s1.List()
	current1 := s1.Current()
	require.NoError(t, s1.Close())

	s2, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	list2 := s2.List()
	current2 := s2.Current()
	require.NoError(t, s2.Close())

	assert.Equal(t, list1, list2)
	assert.Equal(t, current1, current2)

	// Loading never rewrites the snapshot.
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
