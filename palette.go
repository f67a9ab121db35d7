package dashboard

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorStrategy assigns a colour to a series the first time it is seen.
// The aggregator caches the result, so a strategy may be non-deterministic
// without a series ever changing colour mid-session.
type ColorStrategy interface {
	Assign(key SeriesKey) colorful.Color
}

// ColorFunc adapts a plain function to ColorStrategy.
type ColorFunc func(key SeriesKey) colorful.Color

func (f ColorFunc) Assign(key SeriesKey) colorful.Color { return f(key) }

// goldenAngle spreads successive hues as far apart as possible.
const goldenAngle = 137.50776405003785

// KeyedColors derives the colour purely from the key: element index walks
// the hue circle by the golden angle, partition index shifts the start and
// the lightness.
func KeyedColors() ColorStrategy {
	return ColorFunc(func(key SeriesKey) colorful.Color {
		hue := math.Mod(float64(key.Element)*goldenAngle+float64(key.Partition)*29, 360)
		light := 0.62 + 0.08*float64(key.Partition%3)
		return colorful.Hcl(hue, 0.6, light).Clamped()
	})
}

// SeededColors draws colours from a seeded sequence in order of first
// appearance. Two sessions with the same seed and the same arrival order
// get the same colours.
func SeededColors(seed int64) ColorStrategy {
	return &seededColors{rng: rand.New(rand.NewSource(seed))}
}

type seededColors struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *seededColors) Assign(SeriesKey) colorful.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return colorful.Hsv(s.rng.Float64()*360, 0.55+0.35*s.rng.Float64(), 0.75+0.25*s.rng.Float64())
}

// ColorStrategyFor maps a configured strategy name onto an implementation.
func ColorStrategyFor(cfg ColorConfig) (ColorStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", "keyed":
		return KeyedColors(), nil
	case "seeded":
		return SeededColors(cfg.Seed), nil
	default:
		return nil, fmt.Errorf("unknown colour strategy %q", cfg.Strategy)
	}
}
