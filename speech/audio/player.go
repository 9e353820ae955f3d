package audio

import (
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// progressInterval is the redraw-rate tick for live progress reporting.
const progressInterval = 30 * time.Millisecond

// rateReader feeds PCM to the output device while applying the playback
// rate by nearest-neighbour resampling. The rate can change while a source
// is live; the next Read picks it up.
type rateReader struct {
	mu     sync.Mutex
	data   []byte
	cursor float64 // source position in samples
	eof    bool

	rateBits uint64 // atomic float64
}

func newRateReader(data []byte, offset time.Duration, rate float64) *rateReader {
	r := &rateReader{
		data:   data,
		cursor: float64(sampleIndex(offset, len(data)/BytesPerSample)),
	}
	r.setRate(rate)
	return r
}

func (r *rateReader) setRate(rate float64) {
	if rate <= 0 {
		rate = 1.0
	}
	atomic.StoreUint64(&r.rateBits, math.Float64bits(rate))
}

func (r *rateReader) rate() float64 {
	return math.Float64frombits(atomic.LoadUint64(&r.rateBits))
}

func (r *rateReader) Read(p []byte) (int, error) {
	rate := r.rate()

	r.mu.Lock()
	defer r.mu.Unlock()

	total := len(r.data) / BytesPerSample
	n := 0
	for n+BytesPerSample <= len(p) {
		idx := int(r.cursor)
		if idx >= total {
			break
		}
		copy(p[n:n+BytesPerSample], r.data[idx*BytesPerSample:(idx+1)*BytesPerSample])
		n += BytesPerSample
		r.cursor += rate
	}
	if n == 0 {
		r.eof = true
		return 0, io.EOF
	}
	return n, nil
}

// Position returns the source-time position of the cursor, independent of
// the playback rate.
func (r *rateReader) Position() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.cursor) * time.Second / SampleRate
}

// Drained reports whether the device has pulled the whole buffer.
func (r *rateReader) Drained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eof || int(r.cursor) >= len(r.data)/BytesPerSample
}

// source is one scheduled buffer. A new Play creates a new source, so a
// leftover progress loop recognizes its source is stale by pointer identity.
type source struct {
	key      string
	label    string
	data     []byte
	duration time.Duration
	reader   *rateReader
	player   Player
	paused   bool
}

// Engine schedules decoded PCM buffers on the output device. At most one
// source is live at any time: starting any new playback first stops the
// previous source.
type Engine struct {
	out    Output
	speed  *SpeedController
	logger *log.Logger

	mu  sync.Mutex
	src *source

	onProgress func(key string, position, duration time.Duration)
	onComplete func(key string)
}

// NewEngine returns an engine bound to the given output device.
func NewEngine(out Output, speed *SpeedController, logger *log.Logger) *Engine {
	if speed == nil {
		speed = NewSpeedController()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{out: out, speed: speed, logger: logger.With("component", "engine")}
}

// OnProgress registers the live progress callback. Called roughly every
// progressInterval while a source is audible.
func (e *Engine) OnProgress(fn func(key string, position, duration time.Duration)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onProgress = fn
}

// OnComplete registers the natural-completion callback. It fires once when
// a source plays to its end; it does not fire on stop or interruption.
func (e *Engine) OnComplete(fn func(key string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = fn
}

// Play stops any current source, schedules data from offset at the current
// rate, and begins progress reporting. label is display text for the
// segment; key is its cache identity.
func (e *Engine) Play(data []byte, offset time.Duration, label, key string) error {
	return e.play(data, offset, label, key, false)
}

func (e *Engine) play(data []byte, offset time.Duration, label, key string, startPaused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()

	duration := BufferDuration(len(data))
	if offset < 0 {
		offset = 0
	}
	if offset > duration {
		offset = duration
	}

	reader := newRateReader(data, offset, e.speed.Current())
	player, err := e.out.NewPlayer(reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputUnavailable, err)
	}

	s := &source{
		key:      key,
		label:    label,
		data:     data,
		duration: duration,
		reader:   reader,
		player:   player,
		paused:   startPaused,
	}
	e.src = s

	if !startPaused {
		player.Play()
		go e.progressLoop(s)
	}

	e.logger.Debug("scheduled source", "key", key, "offset", offset, "duration", duration)
	return nil
}

// Pause stops output scheduling but preserves the buffer and offset so
// playback can resume from the same point.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.src == nil || e.src.paused {
		return
	}
	e.src.player.Pause()
	e.src.paused = true
}

// Resume re-schedules the preserved source from its preserved offset. No-op
// when nothing is preserved.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.src
	if s == nil || !s.paused {
		return
	}
	s.paused = false
	s.player.Play()
	go e.progressLoop(s)
}

// SeekTo replays the current buffer at the clamped target offset,
// preserving label and segment identity. Seeking while paused updates the
// stored offset without starting playback.
func (e *Engine) SeekTo(offset time.Duration) error {
	e.mu.Lock()
	s := e.src
	if s == nil {
		e.mu.Unlock()
		return nil
	}
	data, label, key, paused := s.data, s.label, s.key, s.paused
	e.mu.Unlock()

	return e.play(data, offset, label, key, paused)
}

// SeekBy seeks relative to the current position.
func (e *Engine) SeekBy(delta time.Duration) error {
	e.mu.Lock()
	s := e.src
	if s == nil {
		e.mu.Unlock()
		return nil
	}
	target := s.reader.Position() + delta
	e.mu.Unlock()

	return e.SeekTo(target)
}

// Position returns the source-time position of the current source.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return 0
	}
	return e.src.reader.Position()
}

// Duration returns the duration of the current source.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return 0
	}
	return e.src.duration
}

// CurrentKey returns the segment key of the live or paused source, or ""
// when there is none.
func (e *Engine) CurrentKey() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return ""
	}
	return e.src.key
}

// IsPlaying reports whether a source is audible right now.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src != nil && !e.src.paused
}

// Faster moves the rate one ladder step up and applies it to any live
// source immediately.
func (e *Engine) Faster() float64 { return e.applyRate(e.speed.Faster()) }

// Slower moves the rate one ladder step down and applies it to any live
// source immediately.
func (e *Engine) Slower() float64 { return e.applyRate(e.speed.Slower()) }

// Rate returns the current playback rate.
func (e *Engine) Rate() float64 { return e.speed.Current() }

func (e *Engine) applyRate(rate float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src != nil {
		e.src.reader.setRate(rate)
	}
	return rate
}

// StopAndClear fully stops playback, drops the preserved buffer, and
// terminates the progress loop. This is the only operation that empties the
// engine's segment identity.
func (e *Engine) StopAndClear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.src == nil {
		return
	}
	e.src.player.Pause()
	_ = e.src.player.Close()
	e.src = nil
}

// progressLoop reports progress for s until s is stale, paused, or played
// out. It is bound to s by pointer identity: once the engine's current
// source is a different one, the loop exits without reporting anything.
func (e *Engine) progressLoop(s *source) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for range ticker.C {
		e.mu.Lock()
		if e.src != s || s.paused {
			e.mu.Unlock()
			return
		}

		position := s.reader.Position()
		if position > s.duration {
			position = s.duration
		}
		done := s.reader.Drained() && !s.player.IsPlaying()
		if done {
			_ = s.player.Close()
			e.src = nil
		}
		onProgress, onComplete := e.onProgress, e.onComplete
		e.mu.Unlock()

		if onProgress != nil {
			onProgress(s.key, position, s.duration)
		}
		if done {
			e.logger.Debug("source completed", "key", s.key)
			if onComplete != nil {
				onComplete(s.key)
			}
			return
		}
	}
}
