package speech_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/talkback/session"
	"github.com/dgnsrekt/talkback/speech"
	"github.com/dgnsrekt/talkback/speech/synth"
)

func newOrchestrator(cache speech.SegmentCache, sessions *session.Store, syn speech.Synthesizer, opts ...speech.OrchestratorOption) *speech.Orchestrator {
	opts = append([]speech.OrchestratorOption{speech.WithWordsPerSegment(6)}, opts...)
	return speech.NewOrchestrator(syn, cache, sessions, testCreds{key: "k"}, nil, opts...)
}

func TestResolveOneCacheHitSkipsSynthesis(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	syn := &scriptSynth{script: fixedBuffers(512)}
	orch := newOrchestrator(cache, sessions, syn)

	id := appendMessage(t, sessions, "cached words here")
	cache.put(speech.SegmentKey(id, 0), []byte("pcm"))

	buf, err := orch.ResolveOne(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("ResolveOne failed: %v", err)
	}
	if string(buf) != "pcm" {
		t.Errorf("Expected cached buffer, got %q", buf)
	}
	if syn.callCount() != 0 {
		t.Errorf("Expected 0 synthesis calls for cache hit, got %d", syn.callCount())
	}

	// The cache hit also lands in the session mirror.
	msg, _ := sessions.Message(id)
	if string(msg.SegmentBuffer(0)) != "pcm" {
		t.Errorf("Session mirror not updated on cache hit")
	}
}

func TestResolveOneFetchesAndPersists(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	syn := &scriptSynth{script: fixedBuffers(512)}
	orch := newOrchestrator(cache, sessions, syn)

	id := appendMessage(t, sessions, "one two three four five six seven eight")
	key := speech.SegmentKey(id, 1)

	// Durability precedes visibility: at cache-write time the session
	// mirror must not hold the buffer yet.
	cache.onSet = func(k string) {
		if k != key {
			return
		}
		msg, _ := sessions.Message(id)
		if msg.SegmentBuffer(1) != nil {
			t.Error("Session mirror updated before cache write")
		}
	}

	buf, err := orch.ResolveOne(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("ResolveOne failed: %v", err)
	}
	if len(buf) != 512 {
		t.Fatalf("Expected 512-byte buffer, got %d", len(buf))
	}
	if !cache.contains(key) {
		t.Error("Fetched segment not persisted")
	}

	msg, _ := sessions.Message(id)
	if msg.SegmentCount != 2 {
		t.Errorf("Expected segment count 2 pinned, got %d", msg.SegmentCount)
	}
	if msg.WordsPerSegment != 6 {
		t.Errorf("Expected words-per-segment 6 pinned, got %d", msg.WordsPerSegment)
	}
	if len(msg.SegmentBuffer(1)) != 512 {
		t.Error("Session mirror missing fetched buffer")
	}
}

func TestResolveOneRejectsDuplicateFetch(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	syn := &scriptSynth{script: fixedBuffers(64), delay: 200 * time.Millisecond}
	orch := newOrchestrator(cache, sessions, syn)

	id := appendMessage(t, sessions, "slow fetch words")
	key := speech.SegmentKey(id, 0)

	done := make(chan error, 1)
	go func() {
		_, err := orch.ResolveOne(context.Background(), id, 0)
		done <- err
	}()
	waitFor(t, "fetch to register", func() bool { return orch.InFlight(key) })

	if _, err := orch.ResolveOne(context.Background(), id, 0); !errors.Is(err, speech.ErrFetchInFlight) {
		t.Errorf("Duplicate fetch error = %v, want ErrFetchInFlight", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Original fetch failed: %v", err)
	}
	if orch.InFlight(key) {
		t.Error("Registry entry left after fetch completed")
	}
}

func TestCancelSegmentDiscardsResult(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	syn := &scriptSynth{script: fixedBuffers(64), delay: 150 * time.Millisecond}
	orch := newOrchestrator(cache, sessions, syn)

	id := appendMessage(t, sessions, "doomed fetch words")
	key := speech.SegmentKey(id, 0)

	done := make(chan error, 1)
	go func() {
		_, err := orch.ResolveOne(context.Background(), id, 0)
		done <- err
	}()
	waitFor(t, "fetch to register", func() bool { return orch.InFlight(key) })

	orch.CancelSegment(key)
	if orch.InFlight(key) {
		t.Error("Registry entry survived cancel")
	}

	if err := <-done; !errors.Is(err, speech.ErrFetchCancelled) {
		t.Fatalf("Cancelled fetch error = %v, want ErrFetchCancelled", err)
	}
	if cache.contains(key) {
		t.Error("Cancelled fetch wrote to cache")
	}
	if _, ok := orch.FailureFor(key); ok {
		t.Error("Cancellation recorded as failure")
	}

	// Cancel of a key with nothing in flight is a no-op.
	orch.CancelSegment(key)
}

func TestResolveAllFetchesMissingSegments(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	syn := &scriptSynth{script: fixedBuffers(256)}
	orch := newOrchestrator(cache, sessions, syn)

	id := appendMessage(t, sessions, "Hello world this is segment one. And this is segment two.")

	bufs, allCached, err := orch.ResolveAll(context.Background(), id)
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	if allCached {
		t.Error("Fresh message reported allCached")
	}
	if len(bufs) != 2 {
		t.Fatalf("Expected 2 buffers, got %d", len(bufs))
	}
	if syn.callCount() != 2 {
		t.Errorf("Expected 2 synthesis calls, got %d", syn.callCount())
	}
	for i := range bufs {
		if !cache.contains(speech.SegmentKey(id, i)) {
			t.Errorf("Segment %d not persisted", i)
		}
	}

	msg, _ := sessions.Message(id)
	if msg.SegmentCount != 2 || len(msg.Buffers) != 2 {
		t.Errorf("Session meta = (%d segments, %d buffers), want (2, 2)", msg.SegmentCount, len(msg.Buffers))
	}
}

func TestResolveAllShortCircuitsWhenCached(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	syn := &scriptSynth{script: fixedBuffers(256)}
	orch := newOrchestrator(cache, sessions, syn)

	id := appendMessage(t, sessions, "one two three four five six seven")
	cache.put(speech.SegmentKey(id, 0), []byte("a"))
	cache.put(speech.SegmentKey(id, 1), []byte("b"))

	bufs, allCached, err := orch.ResolveAll(context.Background(), id)
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	if !allCached {
		t.Error("Fully cached message not reported allCached")
	}
	if syn.callCount() != 0 {
		t.Errorf("Expected 0 synthesis calls, got %d", syn.callCount())
	}
	if string(bufs[0]) != "a" || string(bufs[1]) != "b" {
		t.Error("Cached buffers not returned in index order")
	}
}

func TestResolveAllKeepsSuccessesOnPartialFailure(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	boom := errors.New("synthesis exploded")
	syn := &scriptSynth{script: func(text string) ([]byte, error) {
		if text == "And this is segment two." {
			return nil, boom
		}
		return []byte("ok"), nil
	}}
	orch := newOrchestrator(cache, sessions, syn)

	id := appendMessage(t, sessions, "Hello world this is segment one. And this is segment two.")

	_, _, err := orch.ResolveAll(context.Background(), id)
	if !errors.Is(err, speech.ErrFetchFailed) {
		t.Fatalf("ResolveAll error = %v, want ErrFetchFailed", err)
	}

	// The failing segment recorded an error; the sibling stayed persisted.
	if !cache.contains(speech.SegmentKey(id, 0)) {
		t.Error("Successful sibling rolled back")
	}
	if _, ok := orch.FailureFor(speech.SegmentKey(id, 1)); !ok {
		t.Error("No failure recorded for failed segment")
	}

	// Session meta stays unpinned: the bulk update never happened.
	msg, _ := sessions.Message(id)
	if msg.SegmentCount != 0 {
		t.Errorf("Segment count pinned despite failure, got %d", msg.SegmentCount)
	}
}

func TestCancelMessageAbortsBulkFetch(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	syn := &scriptSynth{script: fixedBuffers(64), delay: 200 * time.Millisecond}
	orch := newOrchestrator(cache, sessions, syn)

	id := appendMessage(t, sessions, "one two three four five six seven eight nine ten eleven twelve thirteen")

	done := make(chan error, 1)
	go func() {
		_, _, err := orch.ResolveAll(context.Background(), id)
		done <- err
	}()
	waitFor(t, "bulk fetch to register", func() bool { return orch.BulkInFlight(id) })

	orch.CancelMessage(id)
	if orch.BulkInFlight(id) {
		t.Error("Bulk registry entry survived cancel")
	}
	if err := <-done; !errors.Is(err, speech.ErrFetchCancelled) {
		t.Fatalf("Cancelled bulk fetch error = %v, want ErrFetchCancelled", err)
	}
}

func TestResolveRequiresCredential(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	syn := &scriptSynth{script: fixedBuffers(64)}
	orch := speech.NewOrchestrator(syn, cache, sessions, testCreds{}, nil)

	id := appendMessage(t, sessions, "no credential words")

	if _, err := orch.ResolveOne(context.Background(), id, 0); !errors.Is(err, speech.ErrMissingCredential) {
		t.Errorf("ResolveOne error = %v, want ErrMissingCredential", err)
	}
	if _, _, err := orch.ResolveAll(context.Background(), id); !errors.Is(err, speech.ErrMissingCredential) {
		t.Errorf("ResolveAll error = %v, want ErrMissingCredential", err)
	}
	if syn.callCount() != 0 {
		t.Errorf("Synthesis called without credential, %d times", syn.callCount())
	}

	// A cached segment still resolves without a credential.
	cache.put(speech.SegmentKey(id, 0), []byte("pcm"))
	if _, err := orch.ResolveOne(context.Background(), id, 0); err != nil {
		t.Errorf("Cached resolve failed without credential: %v", err)
	}
}

func TestResolveOneClearsRecordedFailure(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	fail := true
	syn := &scriptSynth{script: func(string) ([]byte, error) {
		if fail {
			return nil, errors.New("transient")
		}
		return []byte("ok"), nil
	}}
	orch := newOrchestrator(cache, sessions, syn)

	id := appendMessage(t, sessions, "retry me")
	key := speech.SegmentKey(id, 0)

	if _, err := orch.ResolveOne(context.Background(), id, 0); !errors.Is(err, speech.ErrFetchFailed) {
		t.Fatalf("First resolve error = %v, want ErrFetchFailed", err)
	}
	if _, ok := orch.FailureFor(key); !ok {
		t.Fatal("No failure recorded")
	}

	fail = false
	if _, err := orch.ResolveOne(context.Background(), id, 0); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if _, ok := orch.FailureFor(key); ok {
		t.Error("Failure not cleared after successful retry")
	}
}

func TestSegmentIndicesStayPinned(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	syn := &scriptSynth{script: fixedBuffers(64)}
	orch := newOrchestrator(cache, sessions, syn)

	id := appendMessage(t, sessions, "one two three four five six seven eight")
	if _, err := orch.ResolveOne(context.Background(), id, 0); err != nil {
		t.Fatalf("ResolveOne failed: %v", err)
	}

	// A different default bound must not change this message's split.
	wide := speech.NewOrchestrator(syn, cache, sessions, testCreds{key: "k"}, nil,
		speech.WithWordsPerSegment(100))
	count, err := wide.SegmentCount(id)
	if err != nil {
		t.Fatalf("SegmentCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Pinned message split into %d segments under new default, want 2", count)
	}
}

func TestResolveUnknownMessage(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	orch := newOrchestrator(cache, sessions, &scriptSynth{script: fixedBuffers(8)})

	if _, err := orch.ResolveOne(context.Background(), "nope", 0); !errors.Is(err, speech.ErrUnknownMessage) {
		t.Errorf("ResolveOne error = %v, want ErrUnknownMessage", err)
	}
	if _, _, err := orch.ResolveAll(context.Background(), "nope"); !errors.Is(err, speech.ErrUnknownMessage) {
		t.Errorf("ResolveAll error = %v, want ErrUnknownMessage", err)
	}
}

func TestResolveSegmentOutOfRange(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	orch := newOrchestrator(cache, sessions, &scriptSynth{script: fixedBuffers(8)})

	id := appendMessage(t, sessions, "short text")
	if _, err := orch.ResolveOne(context.Background(), id, 5); !errors.Is(err, speech.ErrSegmentOutOfRange) {
		t.Errorf("ResolveOne error = %v, want ErrSegmentOutOfRange", err)
	}
	if _, err := orch.ResolveOne(context.Background(), id, -1); !errors.Is(err, speech.ErrSegmentOutOfRange) {
		t.Errorf("ResolveOne(-1) error = %v, want ErrSegmentOutOfRange", err)
	}
}

func TestResolveOneWithMockSynthesizer(t *testing.T) {
	cache := newMemCache()
	sessions := session.NewStore()
	mock := synth.NewMock()
	orch := newOrchestrator(cache, sessions, mock)

	id := appendMessage(t, sessions, "deterministic audio please")

	first, err := orch.ResolveOne(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("ResolveOne failed: %v", err)
	}
	_ = cache.Delete(context.Background(), speech.SegmentKey(id, 0))
	_ = sessions.ClearSegmentData(id)

	second, err := orch.ResolveOne(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("Second ResolveOne failed: %v", err)
	}
	if string(first) != string(second) {
		t.Error("Mock synthesizer not deterministic for identical text")
	}
	if mock.CallCount() != 2 {
		t.Errorf("Expected 2 mock calls, got %d", mock.CallCount())
	}
}
