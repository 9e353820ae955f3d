package audio

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// MockOutput implements Output for tests without real audio hardware. Its
// players drain their reader on a fast background loop so playback
// "completes" in milliseconds regardless of buffer duration.
type MockOutput struct {
	mu      sync.Mutex
	ready   bool
	players []*MockPlayer

	// DrainInterval controls how often mock players pull from their reader.
	DrainInterval time.Duration
	// DrainChunk is how many bytes are pulled per interval.
	DrainChunk int

	// Test counters
	PlayersCreated int
	PlayersClosed  int
}

// NewMockOutput returns a ready mock output.
func NewMockOutput() *MockOutput {
	return &MockOutput{
		ready:         true,
		DrainInterval: time.Millisecond,
		DrainChunk:    64 * 1024,
	}
}

// NewPlayer creates a mock player pulling from r.
func (m *MockOutput) NewPlayer(r io.Reader) (Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return nil, fmt.Errorf("%w: mock output not ready", ErrOutputUnavailable)
	}

	p := &MockPlayer{
		out:      m,
		reader:   r,
		interval: m.DrainInterval,
		chunk:    m.DrainChunk,
	}
	m.players = append(m.players, p)
	m.PlayersCreated++
	log.Debug("created mock audio player", "players_created", m.PlayersCreated)
	return p, nil
}

// Suspend marks the output not ready.
func (m *MockOutput) Suspend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	return nil
}

// Resume marks the output ready again.
func (m *MockOutput) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = true
	return nil
}

// IsReady reports readiness.
func (m *MockOutput) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// LivePlayers returns how many created players are playing right now.
func (m *MockOutput) LivePlayers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := 0
	for _, p := range m.players {
		if p.IsPlaying() {
			live++
		}
	}
	return live
}

// MockPlayer simulates an audio source by draining its reader in the
// background while "playing".
type MockPlayer struct {
	out      *MockOutput
	reader   io.Reader
	interval time.Duration
	chunk    int

	playing atomic.Bool
	closed  atomic.Bool
	drained atomic.Bool

	loopMu sync.Mutex // one drain loop at a time
}

// Play starts or resumes draining.
func (p *MockPlayer) Play() {
	if p.closed.Load() || p.drained.Load() {
		return
	}
	if p.playing.CompareAndSwap(false, true) {
		go p.drainLoop()
	}
}

// Pause stops draining without losing position.
func (p *MockPlayer) Pause() {
	p.playing.Store(false)
}

// IsPlaying reports whether the player is draining.
func (p *MockPlayer) IsPlaying() bool {
	return p.playing.Load()
}

// Close stops the player permanently.
func (p *MockPlayer) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.playing.Store(false)
		p.out.mu.Lock()
		p.out.PlayersClosed++
		p.out.mu.Unlock()
	}
	return nil
}

func (p *MockPlayer) drainLoop() {
	p.loopMu.Lock()
	defer p.loopMu.Unlock()

	buf := make([]byte, p.chunk)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for range ticker.C {
		if !p.playing.Load() || p.closed.Load() {
			return
		}
		n, err := p.reader.Read(buf)
		if err == io.EOF && n == 0 {
			p.drained.Store(true)
			p.playing.Store(false)
			return
		}
		if err != nil && err != io.EOF {
			p.playing.Store(false)
			return
		}
	}
}
