package synth

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/talkback/speech"
)

// Mock is a deterministic in-process synthesizer for tests and offline use.
// Each call yields a buffer whose bytes and length are derived from the
// input text, so identical text always produces identical audio.
type Mock struct {
	mu    sync.Mutex
	calls []string

	// Delay is waited before returning, cancellable through ctx.
	Delay time.Duration
	// Err, when set, fails every call.
	Err error
	// BytesPerWord scales the buffer size (default 2048).
	BytesPerWord int
}

// NewMock returns a mock synthesizer.
func NewMock() *Mock {
	return &Mock{BytesPerWord: 2048}
}

// Synthesize returns a deterministic buffer for text, honoring ctx.
func (m *Mock) Synthesize(ctx context.Context, text string, _ speech.VoiceSettings) ([]byte, error) {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, text)
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	per := m.BytesPerWord
	if per <= 0 {
		per = 2048
	}
	words := 1
	for _, r := range text {
		if r == ' ' {
			words++
		}
	}
	buf := make([]byte, words*per)
	for i := range buf {
		buf[i] = byte((i + len(text)) % 251)
	}
	return buf, nil
}

// Calls returns the texts synthesized so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]string, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns how many synthesize calls completed the delay.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
