package speech

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// handle is an owned cancellation token stored in a fetch registry.
// Comparing pointers tells a finished fetch whether it still owns its
// registry slot; a fetch that lost its slot discards its result.
type handle struct {
	cancel context.CancelFunc
}

// Orchestrator resolves message segments to PCM buffers, from the session
// mirror or persistent cache when possible and from the synthesis service
// otherwise. Two registries enforce at most one in-flight fetch per segment
// key and at most one bulk fetch per message id.
type Orchestrator struct {
	synth    Synthesizer
	cache    SegmentCache
	sessions SessionStore
	creds    CredentialProvider
	notify   Notifier
	voice    VoiceSettings
	words    int
	logger   *log.Logger

	mu     sync.Mutex
	single map[string]*handle // segment key -> in-flight single fetch
	bulk   map[string]*handle // message id  -> in-flight bulk fetch
	errs   map[string]string  // segment key -> last fetch error
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithVoice sets the synthesis voice settings.
func WithVoice(v VoiceSettings) OrchestratorOption {
	return func(o *Orchestrator) { o.voice = v }
}

// WithWordsPerSegment sets the default segment word bound used for
// messages that have no pinned value yet.
func WithWordsPerSegment(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.words = n }
}

// WithNotifier sets the notification collaborator.
func WithNotifier(n Notifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notify = n }
}

// NewOrchestrator creates a fetch orchestrator.
func NewOrchestrator(synth Synthesizer, cache SegmentCache, sessions SessionStore, creds CredentialProvider, logger *log.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	o := &Orchestrator{
		synth:    synth,
		cache:    cache,
		sessions: sessions,
		creds:    creds,
		notify:   NopNotifier{},
		words:    DefaultWordsPerSegment,
		logger:   logger.With("component", "orchestrator"),
		single:   make(map[string]*handle),
		bulk:     make(map[string]*handle),
		errs:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Segments returns the text segments of a message, using its pinned
// words-per-segment when one exists so indices stay stable.
func (o *Orchestrator) Segments(messageID string) ([]string, error) {
	msg, ok := o.sessions.Message(messageID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	segs := o.segmentsFor(msg)
	if len(segs) == 0 {
		return nil, ErrNoContent
	}
	return segs, nil
}

// SegmentText returns the text of one segment.
func (o *Orchestrator) SegmentText(messageID string, index int) (string, error) {
	segs, err := o.Segments(messageID)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(segs) {
		return "", fmt.Errorf("%w: %d of %d", ErrSegmentOutOfRange, index, len(segs))
	}
	return segs[index], nil
}

// SegmentCount returns how many segments a message splits into.
func (o *Orchestrator) SegmentCount(messageID string) (int, error) {
	segs, err := o.Segments(messageID)
	if err != nil {
		return 0, err
	}
	return len(segs), nil
}

// ResolveOne returns the buffer for one segment: from the session mirror,
// then the persistent cache, then the synthesis service. A successful fetch
// is persisted to cache before the mirror is updated. A cancelled fetch
// leaves cache and state untouched and returns ErrFetchCancelled.
func (o *Orchestrator) ResolveOne(ctx context.Context, messageID string, index int) ([]byte, error) {
	msg, ok := o.sessions.Message(messageID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	segs := o.segmentsFor(msg)
	if len(segs) == 0 {
		return nil, ErrNoContent
	}
	if index < 0 || index >= len(segs) {
		return nil, fmt.Errorf("%w: %d of %d", ErrSegmentOutOfRange, index, len(segs))
	}
	key := SegmentKey(messageID, index)

	if buf := msg.SegmentBuffer(index); len(buf) > 0 {
		return buf, nil
	}

	buf, found, err := o.cache.Get(ctx, key)
	if err != nil {
		o.recordFailure(key, err)
		o.notify.Error("could not read cached audio")
		return nil, fmt.Errorf("%w: %v", ErrCacheRead, err)
	}
	if found {
		_ = o.sessions.SetSegmentBuffer(messageID, index, buf)
		return buf, nil
	}

	if _, ok := o.creds.APIKey(); !ok {
		o.notify.Error("no speech credential configured")
		return nil, ErrMissingCredential
	}

	o.mu.Lock()
	if _, busy := o.single[key]; busy {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrFetchInFlight, key)
	}
	fctx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel}
	o.single[key] = h
	o.mu.Unlock()
	defer cancel()

	o.logger.Debug("fetching segment", "key", key)
	buf, synthErr := o.synth.Synthesize(fctx, segs[index], o.voice)

	o.mu.Lock()
	owned := o.single[key] == h
	if owned {
		delete(o.single, key)
	}
	o.mu.Unlock()

	// A fetch whose handle was removed by a cancel has been disowned:
	// its result is discarded no matter what the service returned.
	if !owned || fctx.Err() != nil {
		return nil, ErrFetchCancelled
	}
	if synthErr != nil {
		o.recordFailure(key, synthErr)
		o.notify.Error("speech synthesis failed")
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, synthErr)
	}

	if err := o.cache.Set(ctx, key, buf); err != nil {
		o.recordFailure(key, err)
		o.notify.Error("could not save audio segment")
		return nil, fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	if msg.SegmentCount == 0 {
		_ = o.sessions.SetSegmentMeta(messageID, len(segs), o.wordsFor(msg))
	}
	_ = o.sessions.SetSegmentBuffer(messageID, index, buf)
	o.clearFailure(key)
	return buf, nil
}

// ResolveAll returns the buffers for every segment of a message, fetching
// missing ones in parallel under one shared cancellation handle. When every
// segment is already available it short-circuits with allCached=true and no
// network calls. On the first un-cancelled failure the whole operation is
// reported failed; segments that succeeded first stay persisted. On success
// the session mirror is replaced as one message-level update. ResolveAll
// never starts playback; that is the caller's move.
func (o *Orchestrator) ResolveAll(ctx context.Context, messageID string) (bufs [][]byte, allCached bool, err error) {
	msg, ok := o.sessions.Message(messageID)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	segs := o.segmentsFor(msg)
	if len(segs) == 0 {
		return nil, false, ErrNoContent
	}

	bufs = make([][]byte, len(segs))
	var missing []int
	for i := range segs {
		if buf := msg.SegmentBuffer(i); len(buf) > 0 {
			bufs[i] = buf
			continue
		}
		buf, found, err := o.cache.Get(ctx, SegmentKey(messageID, i))
		if err != nil {
			o.notify.Error("could not read cached audio")
			return nil, false, fmt.Errorf("%w: %v", ErrCacheRead, err)
		}
		if found {
			bufs[i] = buf
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return bufs, true, nil
	}

	if _, ok := o.creds.APIKey(); !ok {
		o.notify.Error("no speech credential configured")
		return nil, false, ErrMissingCredential
	}

	o.mu.Lock()
	if _, busy := o.bulk[messageID]; busy {
		o.mu.Unlock()
		return nil, false, fmt.Errorf("%w: message %s", ErrFetchInFlight, messageID)
	}
	bctx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel}
	o.bulk[messageID] = h
	o.mu.Unlock()
	defer cancel()

	o.notify.Info(fmt.Sprintf("generating %d audio segments", len(missing)))
	o.logger.Debug("bulk fetch", "message", messageID, "missing", len(missing), "total", len(segs))

	g, gctx := errgroup.WithContext(bctx)
	for _, i := range missing {
		i := i
		g.Go(func() error {
			key := SegmentKey(messageID, i)
			buf, err := o.synth.Synthesize(gctx, segs[i], o.voice)
			if err != nil {
				if gctx.Err() == nil {
					o.recordFailure(key, err)
				}
				return err
			}
			// Persist immediately; a later sibling failure does not roll
			// this back.
			if err := o.cache.Set(gctx, key, buf); err != nil {
				if gctx.Err() == nil {
					o.recordFailure(key, err)
				}
				return err
			}
			bufs[i] = buf
			o.clearFailure(key)
			return nil
		})
	}
	waitErr := g.Wait()

	o.mu.Lock()
	owned := o.bulk[messageID] == h
	if owned {
		delete(o.bulk, messageID)
	}
	o.mu.Unlock()

	if !owned || IsCancellation(waitErr) {
		return nil, false, ErrFetchCancelled
	}
	if waitErr != nil {
		o.notify.Error("failed to generate message audio")
		return nil, false, fmt.Errorf("%w: %v", ErrFetchFailed, waitErr)
	}

	words := o.wordsFor(msg)
	_ = o.sessions.SetSegmentMeta(messageID, len(segs), words)
	_ = o.sessions.SetSegmentBuffers(messageID, bufs)
	o.notify.Success("message audio ready")
	return bufs, false, nil
}

// CancelSegment aborts the in-flight fetch for a segment key, if any. The
// registry entry is removed before the context fires, so the fetch result
// is disowned and never reaches cache or state. Never panics, never leaves
// a stale entry.
func (o *Orchestrator) CancelSegment(key string) {
	o.mu.Lock()
	h := o.single[key]
	delete(o.single, key)
	o.mu.Unlock()
	if h != nil {
		h.cancel()
		o.logger.Debug("cancelled segment fetch", "key", key)
	}
}

// CancelMessage aborts the in-flight bulk fetch for a message, if any. All
// still-pending parallel calls abort through the one shared handle.
func (o *Orchestrator) CancelMessage(messageID string) {
	o.mu.Lock()
	h := o.bulk[messageID]
	delete(o.bulk, messageID)
	o.mu.Unlock()
	if h != nil {
		h.cancel()
		o.logger.Debug("cancelled bulk fetch", "message", messageID)
	}
}

// InFlight reports whether a single-segment fetch is outstanding for key.
func (o *Orchestrator) InFlight(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.single[key]
	return ok
}

// BulkInFlight reports whether a bulk fetch is outstanding for a message.
func (o *Orchestrator) BulkInFlight(messageID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.bulk[messageID]
	return ok
}

// FailureFor returns the last recorded fetch error for a segment key.
func (o *Orchestrator) FailureFor(key string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	msg, ok := o.errs[key]
	return msg, ok
}

func (o *Orchestrator) recordFailure(key string, err error) {
	o.mu.Lock()
	o.errs[key] = err.Error()
	o.mu.Unlock()
	o.logger.Error("segment fetch failed", "key", key, "err", err)
}

func (o *Orchestrator) clearFailure(key string) {
	o.mu.Lock()
	delete(o.errs, key)
	o.mu.Unlock()
}

func (o *Orchestrator) segmentsFor(msg Message) []string {
	return Split(msg.Content, o.wordsFor(msg))
}

// wordsFor returns the message's pinned words-per-segment, falling back to
// the orchestrator default for messages fetched for the first time.
func (o *Orchestrator) wordsFor(msg Message) int {
	if msg.WordsPerSegment > 0 {
		return msg.WordsPerSegment
	}
	return o.words
}
