package audio

import (
	"math"
	"testing"
)

func TestNewSpeedController(t *testing.T) {
	sc := NewSpeedController()

	if sc.Current() != DefaultRate {
		t.Errorf("Expected default rate %.2f, got %.2f", DefaultRate, sc.Current())
	}
	if got := sc.Ladder(); len(got) != len(DefaultRateLadder) {
		t.Errorf("Expected %d ladder steps, got %d", len(DefaultRateLadder), len(got))
	}
}

func TestSpeedControllerSet(t *testing.T) {
	tests := []struct {
		name      string
		rate      float64
		expected  float64
		wantError bool
	}{
		{"exact match 0.5", 0.5, 0.5, false},
		{"exact match 1.0", 1.0, 1.0, false},
		{"exact match 2.0", 2.0, 2.0, false},
		{"nearest to 0.6", 0.6, 0.5, false},
		{"nearest to 0.8", 0.8, 0.75, false},
		{"nearest to 1.3", 1.3, 1.25, false},
		{"out of range low", 0.3, 1.0, true},
		{"out of range high", 3.0, 1.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewSpeedController()
			got, err := sc.Set(tt.rate)
			if (err != nil) != tt.wantError {
				t.Errorf("Set() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && math.Abs(got-tt.expected) > 0.001 {
				t.Errorf("Expected rate %.2f, got %.2f", tt.expected, got)
			}
			if tt.wantError && sc.Current() != 1.0 {
				t.Errorf("Rejected Set moved rate to %.2f", sc.Current())
			}
		})
	}
}

func TestSpeedControllerStepsAndClamps(t *testing.T) {
	sc := NewSpeedControllerWithLadder([]float64{0.5, 1.0, 1.5, 2.0})

	if sc.Current() != 1.0 {
		t.Fatalf("Expected starting rate 1.0, got %.2f", sc.Current())
	}
	if got := sc.Faster(); got != 1.5 {
		t.Errorf("First increase = %.2f, want 1.5", got)
	}
	if got := sc.Faster(); got != 2.0 {
		t.Errorf("Second increase = %.2f, want 2.0", got)
	}
	// Clamps at the top without error.
	if got := sc.Faster(); got != 2.0 {
		t.Errorf("Clamped increase = %.2f, want 2.0", got)
	}

	for i := 0; i < 10; i++ {
		sc.Slower()
	}
	if got := sc.Current(); got != 0.5 {
		t.Errorf("Rate after repeated decreases = %.2f, want 0.5", got)
	}
}

func TestSpeedControllerEmptyLadderFallsBack(t *testing.T) {
	sc := NewSpeedControllerWithLadder(nil)
	if sc.Current() != DefaultRate {
		t.Errorf("Expected fallback to default ladder, got rate %.2f", sc.Current())
	}
}
