package market

import (
	"math/rand"
	"sync"
	"time"
)

// Jitter nudges mock and regional quotes by up to ±pct percent so repeated
// quotes are not perfectly static. It never changes the sign of a price.
type Jitter struct {
	mu  sync.Mutex
	rnd *rand.Rand
	pct float64
}

// NewJitter creates a Jitter with the given percentage band and seed.
// A zero seed uses the current time.
func NewJitter(pct float64, seed int64) *Jitter {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Jitter{rnd: rand.New(rand.NewSource(seed)), pct: pct}
}

// Apply returns price moved by a random fraction of the band.
func (j *Jitter) Apply(price float64) float64 {
	if j == nil || j.pct <= 0 || price <= 0 {
		return price
	}
	j.mu.Lock()
	u := j.rnd.Float64()*2 - 1
	j.mu.Unlock()

	out := price * (1 + u*j.pct/100)
	if out <= 0 {
		return price
	}
	return out
}
