package speech

import (
	"sync"
	"time"
)

// DefaultAutoplayDebounce is how long a message must stay quiet before
// autoplay fires, absorbing bursts of streaming updates.
const DefaultAutoplayDebounce = 350 * time.Millisecond

// Autoplay starts playback for newly completed messages. Each message id
// triggers at most once for the lifetime of the trigger, and rapid repeat
// notifications within the debounce window collapse into a single start.
type Autoplay struct {
	start    func(messageID string)
	debounce time.Duration

	mu      sync.Mutex
	enabled bool
	seen    map[string]bool
	pending map[string]*time.Timer
}

// NewAutoplay returns a trigger that calls start after the debounce elapses.
func NewAutoplay(start func(messageID string), enabled bool, debounce time.Duration) *Autoplay {
	if debounce <= 0 {
		debounce = DefaultAutoplayDebounce
	}
	return &Autoplay{
		start:    start,
		debounce: debounce,
		enabled:  enabled,
		seen:     make(map[string]bool),
		pending:  make(map[string]*time.Timer),
	}
}

// SetEnabled flips the trigger on or off. Disabling cancels any pending
// timers without marking their messages as seen.
func (a *Autoplay) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
	if !enabled {
		for id, t := range a.pending {
			t.Stop()
			delete(a.pending, id)
		}
	}
}

// Enabled reports whether the trigger is active.
func (a *Autoplay) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Notify reports that a message finished arriving. The first notification
// arms a debounce timer; repeats within the window reset it. Once a message
// has fired it never fires again.
func (a *Autoplay) Notify(messageID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled || a.seen[messageID] {
		return
	}
	if t, ok := a.pending[messageID]; ok {
		t.Reset(a.debounce)
		return
	}
	a.pending[messageID] = time.AfterFunc(a.debounce, func() {
		a.fire(messageID)
	})
}

func (a *Autoplay) fire(messageID string) {
	a.mu.Lock()
	delete(a.pending, messageID)
	if !a.enabled || a.seen[messageID] {
		a.mu.Unlock()
		return
	}
	a.seen[messageID] = true
	a.mu.Unlock()

	a.start(messageID)
}

// Forget clears the seen mark for a message so a future Notify can fire
// again, used after a reset wipes its audio.
func (a *Autoplay) Forget(messageID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.seen, messageID)
}
