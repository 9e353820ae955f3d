package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/talkback/speech/audio"
)

// Service is the top-level speech facade. It owns the playback engine, the
// fetch orchestrator, the singleton playback Status, and the state machine
// that validates its transitions; it chains segments on natural completion
// and publishes every Status change to registered observers.
type Service struct {
	engine   *audio.Engine
	orch     *Orchestrator
	sessions SessionStore
	cache    SegmentCache
	notify   Notifier
	media    MediaSession
	autoplay *Autoplay
	logger   *log.Logger

	mu        sync.Mutex
	machine   *Machine
	status    Status
	observers []func(Status)
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithMediaSession sets the OS media-session collaborator.
func WithMediaSession(m MediaSession) ServiceOption {
	return func(s *Service) { s.media = m }
}

// WithServiceNotifier sets the notification collaborator.
func WithServiceNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notify = n }
}

// WithAutoplay enables the autoplay trigger with the given debounce.
func WithAutoplay(enabled bool, debounce time.Duration) ServiceOption {
	return func(s *Service) {
		s.autoplay = NewAutoplay(func(messageID string) {
			if err := s.PlayMessage(context.Background(), messageID); err != nil && !IsCancellation(err) {
				s.logger.Error("autoplay failed", "message", messageID, "err", err)
			}
		}, enabled, debounce)
	}
}

// NewService wires the engine, orchestrator, and collaborators together.
func NewService(engine *audio.Engine, orch *Orchestrator, sessions SessionStore, cache SegmentCache, logger *log.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		engine:   engine,
		orch:     orch,
		sessions: sessions,
		cache:    cache,
		notify:   NopNotifier{},
		media:    NopMediaSession{},
		logger:   logger.With("component", "speech"),
		machine:  NewMachine(),
		status:   Status{Rate: engine.Rate()},
	}
	for _, opt := range opts {
		opt(s)
	}
	engine.OnProgress(s.handleProgress)
	engine.OnComplete(s.handleComplete)
	return s
}

// Status returns a copy of the singleton playback record.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe registers an observer notified on every Status change.
// Observers are called outside the service lock.
func (s *Service) Subscribe(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Autoplay returns the autoplay trigger, or nil when not configured.
func (s *Service) Autoplay() *Autoplay {
	return s.autoplay
}

// PlaySegment resolves one segment and plays it from the start. A cached
// segment plays without any network call; an uncached one passes through
// Loading while the fetch is in flight.
func (s *Service) PlaySegment(ctx context.Context, messageID string, index int) error {
	text, err := s.orch.SegmentText(messageID, index)
	if err != nil {
		return err
	}
	key := SegmentKey(messageID, index)
	s.setLoading(text)

	buf, err := s.orch.ResolveOne(ctx, messageID, index)
	if IsCancellation(err) {
		s.toIdle()
		return nil
	}
	if err != nil {
		s.setError(key, err)
		return err
	}
	return s.startPlayback(buf, 0, text, key)
}

// PlayMessage resolves every segment of a message and then plays segment
// zero. When all segments are already cached it starts immediately with no
// network calls.
func (s *Service) PlayMessage(ctx context.Context, messageID string) error {
	key := SegmentKey(messageID, 0)
	text, err := s.orch.SegmentText(messageID, 0)
	if err != nil {
		return err
	}
	s.setLoading(text)

	bufs, _, err := s.orch.ResolveAll(ctx, messageID)
	if IsCancellation(err) {
		s.toIdle()
		return nil
	}
	if err != nil {
		s.setError(key, err)
		return err
	}
	return s.startPlayback(bufs[0], 0, text, key)
}

// TogglePause pauses a playing segment or resumes a paused one.
func (s *Service) TogglePause() {
	s.mu.Lock()
	switch s.machine.Current() {
	case StatePlaying:
		s.engine.Pause()
		s.machine.Transition(StatePaused)
		s.status.State = StatePaused
		s.status.IsPlaying = false
	case StatePaused:
		s.engine.Resume()
		s.machine.Transition(StatePlaying)
		s.status.State = StatePlaying
		s.status.IsPlaying = true
	default:
		s.mu.Unlock()
		return
	}
	status := s.status
	observers := s.observers
	s.mu.Unlock()
	s.publish(status, observers)
}

// SeekBy seeks relative to the current position, clamped to the buffer.
// Seeking while paused updates the stored offset for the next resume.
func (s *Service) SeekBy(delta time.Duration) error {
	return s.engine.SeekBy(delta)
}

// SeekTo seeks to an absolute position, clamped to the buffer.
func (s *Service) SeekTo(offset time.Duration) error {
	return s.engine.SeekTo(offset)
}

// FasterRate moves the playback rate one ladder step up.
func (s *Service) FasterRate() float64 { return s.setRate(s.engine.Faster()) }

// SlowerRate moves the playback rate one ladder step down.
func (s *Service) SlowerRate() float64 { return s.setRate(s.engine.Slower()) }

func (s *Service) setRate(rate float64) float64 {
	s.mu.Lock()
	s.status.Rate = rate
	status := s.status
	observers := s.observers
	s.mu.Unlock()
	s.publish(status, observers)
	return rate
}

// Stop fully stops playback and clears the playback record to idle. This is
// the only path that empties CurrentKey.
func (s *Service) Stop() {
	s.engine.StopAndClear()
	s.toIdle()
}

// CancelFetches aborts any in-flight fetches for a message: the bulk fetch
// and every possible single-segment fetch.
func (s *Service) CancelFetches(messageID string) {
	s.orch.CancelMessage(messageID)
	if count, err := s.orch.SegmentCount(messageID); err == nil {
		for i := 0; i < count; i++ {
			s.orch.CancelSegment(SegmentKey(messageID, i))
		}
	}
}

// ResetMessage stops playback if the live segment belongs to the message,
// aborts its fetches, deletes its cache entries, and clears its session
// metadata. Safe to run concurrently with an in-flight fetch: a completion
// landing afterwards may re-populate the cache (last-writer-wins).
func (s *Service) ResetMessage(ctx context.Context, messageID string) error {
	s.mu.Lock()
	currentKey := s.status.CurrentKey
	s.mu.Unlock()
	if currentKey != "" {
		if id, _, err := ParseSegmentKey(currentKey); err == nil && id == messageID {
			s.Stop()
		}
	}

	s.CancelFetches(messageID)

	count := 0
	if msg, ok := s.sessions.Message(messageID); ok {
		count = msg.SegmentCount
	}
	if count == 0 {
		if n, err := s.orch.SegmentCount(messageID); err == nil {
			count = n
		}
	}
	var firstErr error
	for i := 0; i < count; i++ {
		if err := s.cache.Delete(ctx, SegmentKey(messageID, i)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.sessions.ClearSegmentData(messageID); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.autoplay != nil {
		s.autoplay.Forget(messageID)
	}
	s.logger.Debug("reset message audio", "message", messageID, "segments", count)
	return firstErr
}

// ResetMessages resets several messages, returning the first error.
func (s *Service) ResetMessages(ctx context.Context, messageIDs []string) error {
	var firstErr error
	for _, id := range messageIDs {
		if err := s.ResetMessage(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// startPlayback schedules a buffer and moves the record to Playing.
func (s *Service) startPlayback(buf []byte, offset time.Duration, text, key string) error {
	if err := s.engine.Play(buf, offset, text, key); err != nil {
		if errors.Is(err, audio.ErrOutputUnavailable) {
			s.notify.Error("audio output unavailable")
			s.setError(key, ErrPlaybackUnavailable)
			return ErrPlaybackUnavailable
		}
		s.setError(key, err)
		return err
	}

	s.mu.Lock()
	s.machine.Transition(StatePlaying)
	s.status = Status{
		State:       StatePlaying,
		IsPlaying:   true,
		CurrentKey:  key,
		CurrentText: text,
		CurrentTime: offset,
		Duration:    audio.BufferDuration(len(buf)),
		Rate:        s.status.Rate,
	}
	status := s.status
	observers := s.observers
	s.mu.Unlock()
	s.publish(status, observers)
	return nil
}

// handleComplete chains to the next segment after natural completion, or
// returns to idle after the last one.
func (s *Service) handleComplete(key string) {
	messageID, index, err := ParseSegmentKey(key)
	if err != nil {
		s.logger.Error("completion for unparsable key", "key", key)
		s.toIdle()
		return
	}
	count, err := s.orch.SegmentCount(messageID)
	if err != nil || index+1 >= count {
		s.toIdle()
		return
	}
	if err := s.PlaySegment(context.Background(), messageID, index+1); err != nil {
		s.logger.Error("segment chain failed", "message", messageID, "index", index+1, "err", err)
	}
}

// handleProgress mirrors engine progress into the playback record.
func (s *Service) handleProgress(key string, position, duration time.Duration) {
	s.mu.Lock()
	if s.status.CurrentKey != key {
		s.mu.Unlock()
		return
	}
	s.status.CurrentTime = position
	s.status.Duration = duration
	status := s.status
	observers := s.observers
	s.mu.Unlock()
	s.publish(status, observers)
}

func (s *Service) setLoading(text string) {
	s.mu.Lock()
	s.machine.Transition(StateLoading)
	s.status.State = StateLoading
	s.status.IsLoading = true
	s.status.IsPlaying = false
	s.status.CurrentText = text
	s.status.Err = nil
	status := s.status
	observers := s.observers
	s.mu.Unlock()
	s.publish(status, observers)
}

func (s *Service) setError(key string, err error) {
	s.mu.Lock()
	s.machine.Transition(StateError)
	s.status.State = StateError
	s.status.IsLoading = false
	s.status.IsPlaying = false
	s.status.Err = err
	// A failed Play has already dropped the previous source; the record
	// must not keep claiming a segment the engine no longer holds.
	if s.engine.CurrentKey() == "" {
		s.status.CurrentKey = ""
		s.status.CurrentTime = 0
		s.status.Duration = 0
	}
	status := s.status
	observers := s.observers
	s.mu.Unlock()
	s.publish(status, observers)
	s.logger.Error("playback error", "key", key, "err", err)
}

func (s *Service) toIdle() {
	s.mu.Lock()
	s.machine.Transition(StateIdle)
	s.status = Status{State: StateIdle, Rate: s.status.Rate}
	status := s.status
	observers := s.observers
	s.mu.Unlock()
	s.publish(status, observers)
}

// publish fans a status snapshot out to observers and the media session.
func (s *Service) publish(status Status, observers []func(Status)) {
	for _, fn := range observers {
		fn(status)
	}
	s.media.Publish(NowPlaying{
		Title: status.CurrentText,
		App:   "talkback",
		State: status.State,
	})
}
