// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

// Package store implements the client-side session store: a mapping of
// session id to bounded, ordered message history, persisted locally as one
// whole-document JSON file.
package store

import (
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/util"
)

// MaxHistoryLength is the cap on messages retained per session. After every
// append the history is truncated to the most recent entries; the oldest are
// silently evicted with no archival.
const MaxHistoryLength = 20

// titleLength is the number of characters of the first user message used as
// a session title.
const titleLength = 20

// defaultTitle is shown for sessions with no user message yet.
const defaultTitle = "New Chat"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrSessionNotFound is returned when the referenced session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Message is a single stored chat message. Immutable once stored.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserMessage creates a user message with a fresh id.
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message with a fresh id.
func NewAssistantMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Session is one conversation thread.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// SessionMeta is the listing view of a session.
type SessionMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// document is the on-disk shape: the current-session pointer plus the full
// session mapping. Read and rewritten whole on every mutation.
type document struct {
	Current  string              `json:"current"`
	Sessions map[string]*Session `json:"sessions"`
}

// Store manages sessions against a single JSON document on disk.
// All operations are synchronous; writes go through an atomic
// temp-fsync-rename so a crash never leaves a partial document.
//
// The Store is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Open loads the store from path. A missing or corrupted document is treated
// as an empty mapping; persistence corruption is never surfaced to callers.
func Open(path string) *Store {
	s := &Store{
		path: path,
		doc:  document{Sessions: make(map[string]*Session)},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		// Corrupted document: degrade to empty, never crash the caller.
		return s
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]*Session)
	}
	s.doc = doc
	return s
}

// NewSession returns the id of a fresh session and makes it current. If an
// empty session already exists the most recently created one is reused
// instead of creating another.
func (s *Store) NewSession() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Reuse an existing empty session to avoid session litter.
	var empty *Session
	for _, sess := range s.doc.Sessions {
		if len(sess.Messages) == 0 {
			if empty == nil || sess.CreatedAt.After(empty.CreatedAt) {
				empty = sess
			}
		}
	}
	if empty != nil {
		s.doc.Current = empty.ID
		return empty.ID, s.save()
	}

	id := newSessionID()
	s.doc.Sessions[id] = &Session{
		ID:        id,
		CreatedAt: time.Now(),
	}
	s.doc.Current = id
	return id, s.save()
}

// Append adds msg to the session's history, creating the session if it does
// not exist yet, then trims to the most recent MaxHistoryLength entries and
// persists.
func (s *Store) Append(sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.doc.Sessions[sessionID]
	if !ok {
		sess = &Session{
			ID:        sessionID,
			CreatedAt: time.Now(),
		}
		s.doc.Sessions[sessionID] = sess
	}

	sess.Messages = append(sess.Messages, msg)
	sess.Messages = trim(sess.Messages)
	return s.save()
}

// History returns the session's messages in order, capped to
// MaxHistoryLength. An over-cap stored list (written by an older build with
// a larger cap) is trimmed defensively and persisted back. Unknown sessions
// yield an empty history.
func (s *Store) History(sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.doc.Sessions[sessionID]
	if !ok {
		return nil
	}

	if len(sess.Messages) > MaxHistoryLength {
		sess.Messages = trim(sess.Messages)
		// Best effort: History itself never fails.
		_ = s.save()
	}

	out := make([]Message, len(sess.Messages))
	copy(out, sess.Messages)
	return out
}

// List returns session metadata, most recently created first.
func (s *Store) List() []SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas := make([]SessionMeta, 0, len(s.doc.Sessions))
	for _, sess := range s.doc.Sessions {
		metas = append(metas, SessionMeta{
			ID:           sess.ID,
			Title:        sessionTitle(sess),
			CreatedAt:    sess.CreatedAt,
			MessageCount: len(sess.Messages),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		if metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].ID > metas[j].ID
		}
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas
}

// Switch repoints the current-session marker. Stored messages are not
// touched.
func (s *Store) Switch(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doc.Sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	s.doc.Current = sessionID
	return s.save()
}

// Current returns the current session id, or "" when none is selected.
func (s *Store) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Current
}

// Delete removes a session entirely. Deleting the current session clears the
// current pointer.
func (s *Store) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doc.Sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.doc.Sessions, sessionID)
	if s.doc.Current == sessionID {
		s.doc.Current = ""
	}
	return s.save()
}

// save rewrites the whole document atomically. Caller holds s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.path, data, 0o600)
}

// sessionTitle derives a listing title: the first user message truncated to
// titleLength characters, or a placeholder when none exists.
func sessionTitle(sess *Session) string {
	for _, msg := range sess.Messages {
		if msg.Role == RoleUser {
			return util.TruncateRunes(msg.Content, titleLength)
		}
	}
	return defaultTitle
}

// trim keeps the most recent MaxHistoryLength messages, preserving order.
func trim(messages []Message) []Message {
	if len(messages) <= MaxHistoryLength {
		return messages
	}
	trimmed := make([]Message, MaxHistoryLength)
	copy(trimmed, messages[len(messages)-MaxHistoryLength:])
	return trimmed
}

// newSessionID mints an opaque id: creation time in base-36 plus a random
// base-36 suffix.
func newSessionID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	suffix := strconv.FormatInt(rand.Int63n(1<<40), 36)
	return ts + suffix
}
