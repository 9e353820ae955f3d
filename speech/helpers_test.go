package speech_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/talkback/session"
	"github.com/dgnsrekt/talkback/speech"
)

// memCache is an in-memory speech.SegmentCache with error injection and an
// optional write hook for ordering assertions.
type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
	onSet  func(key string)
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	buf, ok := c.data[key]
	return buf, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, buf []byte) error {
	c.mu.Lock()
	hook := c.onSet
	err := c.setErr
	if err == nil {
		c.data[key] = buf
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(key)
	}
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

func (c *memCache) put(key string, buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = buf
}

// testCreds is a static speech.CredentialProvider.
type testCreds struct {
	key string
}

func (c testCreds) APIKey() (string, bool) { return c.key, c.key != "" }

// scriptSynth answers each text through a script function and counts calls.
type scriptSynth struct {
	mu     sync.Mutex
	calls  []string
	delay  time.Duration
	script func(text string) ([]byte, error)
}

func (s *scriptSynth) Synthesize(ctx context.Context, text string, _ speech.VoiceSettings) ([]byte, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()
	return s.script(text)
}

func (s *scriptSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fixedBuffers returns a script producing a constant-size buffer per call.
func fixedBuffers(size int) func(string) ([]byte, error) {
	return func(text string) ([]byte, error) {
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = byte(len(text) % 251)
		}
		return buf, nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func appendMessage(t *testing.T, sessions *session.Store, content string) string {
	t.Helper()
	return sessions.Append(content)
}
