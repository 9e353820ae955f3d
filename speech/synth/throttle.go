package synth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/talkback/speech"
)

// DefaultRequestsPerMinute is the request budget applied when no limit is
// configured. Bulk resolves fan segments out in parallel; the synthesis
// service throttles well before the player runs out of buffered audio.
const DefaultRequestsPerMinute = 60

// Throttled rate-limits an inner synthesizer so bulk fetches cannot flood
// the synthesis service.
type Throttled struct {
	inner   speech.Synthesizer
	limiter *rate.Limiter
}

// NewThrottled wraps inner with a budget of requestsPerMinute. Non-positive
// values fall back to the default.
func NewThrottled(inner speech.Synthesizer, requestsPerMinute int) *Throttled {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
	}
}

// Synthesize waits for the next request slot, then delegates. A cancelled
// wait returns without ever calling the inner synthesizer.
func (t *Throttled) Synthesize(ctx context.Context, text string, voice speech.VoiceSettings) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return t.inner.Synthesize(ctx, text, voice)
}

var _ speech.Synthesizer = (*Throttled)(nil)
