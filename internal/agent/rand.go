package agent

import (
	"math/rand"
	"time"
)

// newRng returns a random source for one party. A zero seed draws from the clock;
// any other seed is reproducible. Each party owns its source so parallel
// sessions never share one.
func newRng(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
