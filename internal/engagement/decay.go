package engagement

// Crispness decay:
//   - Linear decay over a fixed window (one week by default)
//   - Each active record contributes 100 at its originalTimestamp, 0 at the end of the window
//   - Floor at 0; records never contribute negative freshness
//   - Label crispness is the mean over active records, rounded to 2 decimals
//   - Only Refresh moves originalTimestamp, so re-liking cannot regain freshness

import (
	"math"
	"time"
)

// DefaultDecayWindow is the age at which an endorsement stops contributing.
const DefaultDecayWindow = 7 * 24 * time.Hour

// Freshness returns the contribution of a single record of the given age.
func Freshness(ageMs int64, window time.Duration) float64 {
	windowMs := window.Milliseconds()
	if windowMs <= 0 || ageMs >= windowMs {
		return 0
	}
	if ageMs <= 0 {
		return 100
	}
	return 100 * (1 - float64(ageMs)/float64(windowMs))
}

// Crispness computes the aggregate freshness of the given active records at now
// (epoch ms). An empty set has crispness 0.
func Crispness(active []Record, now int64, window time.Duration) float64 {
	if len(active) == 0 {
		return 0
	}
	var sum float64
	for _, r := range active {
		sum += Freshness(now-r.OriginalTimestamp, window)
	}
	return round2(sum / float64(len(active)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
