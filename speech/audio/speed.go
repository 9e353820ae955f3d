package audio

import (
	"fmt"
	"math"
	"sync"
)

// DefaultRateLadder is the default set of discrete playback rates.
var DefaultRateLadder = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}

// DefaultRate is the rate selected at construction.
const DefaultRate = 1.0

// SpeedController manages playback rate on a discrete ladder of allowed
// values. Step changes move one ladder position per call and clamp at the
// ends.
type SpeedController struct {
	mu     sync.RWMutex
	ladder []float64
	index  int
}

// NewSpeedController returns a controller on the default ladder.
func NewSpeedController() *SpeedController {
	return NewSpeedControllerWithLadder(DefaultRateLadder)
}

// NewSpeedControllerWithLadder returns a controller on a custom ladder,
// positioned at the entry nearest DefaultRate.
func NewSpeedControllerWithLadder(ladder []float64) *SpeedController {
	if len(ladder) == 0 {
		ladder = DefaultRateLadder
	}
	steps := make([]float64, len(ladder))
	copy(steps, ladder)

	index := 0
	best := math.MaxFloat64
	for i, rate := range steps {
		if diff := math.Abs(rate - DefaultRate); diff < best {
			best = diff
			index = i
		}
	}
	return &SpeedController{ladder: steps, index: index}
}

// Current returns the current rate.
func (sc *SpeedController) Current() float64 {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.ladder[sc.index]
}

// Faster moves one ladder step up and returns the new rate, clamping at the
// top.
func (sc *SpeedController) Faster() float64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.index < len(sc.ladder)-1 {
		sc.index++
	}
	return sc.ladder[sc.index]
}

// Slower moves one ladder step down and returns the new rate, clamping at
// the bottom.
func (sc *SpeedController) Slower() float64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.index > 0 {
		sc.index--
	}
	return sc.ladder[sc.index]
}

// Set snaps to the ladder entry nearest rate and returns it. Rates outside
// the ladder's range are rejected.
func (sc *SpeedController) Set(rate float64) (float64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if rate < sc.ladder[0] || rate > sc.ladder[len(sc.ladder)-1] {
		return sc.ladder[sc.index], fmt.Errorf("rate %.2f out of range [%.2f, %.2f]",
			rate, sc.ladder[0], sc.ladder[len(sc.ladder)-1])
	}
	best := math.MaxFloat64
	for i, step := range sc.ladder {
		if diff := math.Abs(step - rate); diff < best {
			best = diff
			sc.index = i
		}
	}
	return sc.ladder[sc.index], nil
}

// Ladder returns a copy of the ladder.
func (sc *SpeedController) Ladder() []float64 {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	steps := make([]float64, len(sc.ladder))
	copy(steps, sc.ladder)
	return steps
}
