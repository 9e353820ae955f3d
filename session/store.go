// Package session is the chat-session collaborator boundary: an in-memory
// message table holding content, per-message segment metadata, and the
// resolved-buffer mirror the speech engine writes back.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dgnsrekt/talkback/speech"
)

type record struct {
	id              string
	content         string
	segmentCount    int
	wordsPerSegment int
	buffers         [][]byte
}

// Store implements speech.SessionStore over an in-memory message table.
type Store struct {
	mu      sync.RWMutex
	msgs    map[string]*record
	order   []string
	current string
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{msgs: make(map[string]*record)}
}

// Append adds a message with the given content and returns its id.
func (s *Store) Append(content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.msgs[id] = &record{id: id, content: content}
	s.order = append(s.order, id)
	s.current = id
	return id
}

// Message returns a copy of the message with the given id.
func (s *Store) Message(id string) (speech.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.msgs[id]
	if !ok {
		return speech.Message{}, false
	}
	return rec.view(), true
}

// Current returns the most recently appended message.
func (s *Store) Current() (speech.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.msgs[s.current]
	if !ok {
		return speech.Message{}, false
	}
	return rec.view(), true
}

// SetSegmentMeta pins the segment count and words-per-segment for a
// message. An already pinned words-per-segment value is kept so segment
// indices stay stable even if the global default changes later.
func (s *Store) SetSegmentMeta(id string, count, wordsPerSegment int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.msgs[id]
	if !ok {
		return fmt.Errorf("unknown message %s", id)
	}
	rec.segmentCount = count
	if rec.wordsPerSegment == 0 {
		rec.wordsPerSegment = wordsPerSegment
	}
	return nil
}

// SetSegmentBuffer updates one slot of the in-memory mirror, growing it as
// needed.
func (s *Store) SetSegmentBuffer(id string, index int, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.msgs[id]
	if !ok {
		return fmt.Errorf("unknown message %s", id)
	}
	if index < 0 {
		return fmt.Errorf("negative segment index %d", index)
	}
	for len(rec.buffers) <= index {
		rec.buffers = append(rec.buffers, nil)
	}
	rec.buffers[index] = buf
	return nil
}

// SetSegmentBuffers replaces the whole mirror as one message-level update.
func (s *Store) SetSegmentBuffers(id string, bufs [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.msgs[id]
	if !ok {
		return fmt.Errorf("unknown message %s", id)
	}
	rec.buffers = make([][]byte, len(bufs))
	copy(rec.buffers, bufs)
	return nil
}

// ClearSegmentData drops the segment metadata and mirror for a message.
func (s *Store) ClearSegmentData(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.msgs[id]
	if !ok {
		return nil
	}
	rec.segmentCount = 0
	rec.wordsPerSegment = 0
	rec.buffers = nil
	return nil
}

// IDs returns the message ids in append order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

func (r *record) view() speech.Message {
	bufs := make([][]byte, len(r.buffers))
	copy(bufs, r.buffers)
	return speech.Message{
		ID:              r.id,
		Content:         r.content,
		SegmentCount:    r.segmentCount,
		WordsPerSegment: r.wordsPerSegment,
		Buffers:         bufs,
	}
}
