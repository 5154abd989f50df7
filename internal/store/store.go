// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides snapshot-based conversation persistence.
//
// The entire conversation map is serialized and written through the
// backend on every mutating call, so the persisted state is always a
// complete, consistent snapshot. Loading is tolerant: malformed entries
// are normalized or skipped rather than failing the whole load.
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/jbeaumont/floret/internal/model"
)

// ErrConversationNotFound is returned when a conversation ID is unknown.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &StoreError{Message: "conversation not found"}

// StoreError represents a store-related error.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// SNAPSHOT FORMAT
// =============================================================================

// snapshot is the persisted blob layout.
type snapshot struct {
	Current       string                     `json:"current,omitempty"`
	Conversations map[string]json.RawMessage `json:"conversations"`
}

// =============================================================================
// STORE
// =============================================================================

// Store is a mutex-guarded conversation store backed by a snapshot Backend.
type Store struct {
	mu            sync.Mutex
	backend       Backend
	conversations map[string]*model.Conversation
	current       string
}

// Open creates a store over the given backend and loads any existing
// snapshot.
func Open(backend Backend) (*Store, error) {
	s := &Store{
		backend:       backend,
		conversations: make(map[string]*model.Conversation),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads and normalizes the persisted snapshot.
func (s *Store) load() error {
	data, err := s.backend.Load()
	if err == ErrNoSnapshot {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt snapshot starts fresh rather than blocking the app.
		log.Printf("conversation snapshot unreadable, starting fresh: %v", err)
		return nil
	}

	for key, raw := range snap.Conversations {
		var conv model.Conversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			log.Printf("skipping malformed conversation %s: %v", key, err)
			continue
		}
		conv.Normalize(key)
		s.conversations[conv.ID] = &conv
	}

	if _, ok := s.conversations[snap.Current]; ok {
		s.current = snap.Current
	}
	return nil
}

// persist serializes the full map and writes it through the backend.
// Callers must hold s.mu.
func (s *Store) persist() error {
	snap := snapshot{
		Current:       s.current,
		Conversations: make(map[string]json.RawMessage, len(s.conversations)),
	}
	for id, conv := range s.conversations {
		raw, err := json.Marshal(conv)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation %s: %w", id, err)
		}
		snap.Conversations[id] = raw
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.backend.Save(data); err != nil {
		return fmt.Errorf("failed to save conversations: %w", err)
	}
	return nil
}

// Close persists nothing further and releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// Create makes a new empty conversation, selects it as current, and
// persists the snapshot.
func (s *Store) Create(modelID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := model.NewConversationWithModel(modelID)
	s.conversations[conv.ID] = conv
	s.current = conv.ID

	if err := s.persist(); err != nil {
		delete(s.conversations, conv.ID)
		return nil, err
	}
	return conv.Clone(), nil
}

// Get returns a copy of a conversation by ID.
func (s *Store) Get(id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

// List returns metadata for all conversations, most recently updated first.
func (s *Store) List() []model.Meta {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas := make([]model.Meta, 0, len(s.conversations))
	for _, conv := range s.conversations {
		metas = append(metas, conv.GetMeta())
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas
}

// AppendTurn appends a completed user/assistant exchange and persists.
func (s *Store) AppendTurn(id string, user, assistant *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.AddTurn(user, assistant)
	return s.persist()
}

// ReplaceLastAssistant overwrites the most recent assistant message and
// persists. Used by regeneration.
func (s *Store) ReplaceLastAssistant(id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	if !conv.ReplaceLastAssistant(content) {
		return &StoreError{Message: "no assistant message to replace"}
	}
	return s.persist()
}

// SetModel updates the model a conversation is pinned to and persists.
func (s *Store) SetModel(id, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Model = modelID
	return s.persist()
}

// Delete removes a conversation and persists. Deleting the current
// conversation clears the current selection.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.conversations, id)
	if s.current == id {
		s.current = ""
	}
	return s.persist()
}

// =============================================================================
// CURRENT CONVERSATION
// =============================================================================

// Current returns the ID of the selected conversation, or empty string.
func (s *Store) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrent selects a conversation and persists the selection.
func (s *Store) SetCurrent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrConversationNotFound
	}
	s.current = id
	return s.persist()
}
