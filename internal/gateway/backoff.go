package gateway

import (
	"math"
	"time"
)

const backoffFactor = 1.5

// backoffDelay is min(base * 1.5^attempt, ceiling).
func backoffDelay(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(base) * math.Pow(backoffFactor, float64(attempt))
	if d >= float64(ceiling) || math.IsInf(d, 1) {
		return ceiling
	}
	return time.Duration(d)
}
