package correlator

import "sync"

// Claims records the run ids this process has already bound to a
// dispatch, so a second correlation in the same process skips them.
//
// Claims only narrow the candidate set. Two processes never see each
// other's claims; the store's unique run id is what rejects a double bind.
type Claims struct {
	mu   sync.Mutex
	runs map[int64]struct{}
}

// NewClaims creates an empty claim set.
func NewClaims() *Claims {
	return &Claims{
		runs: make(map[int64]struct{}),
	}
}

// TryClaim claims runID. It returns false if the run was already claimed.
func (c *Claims) TryClaim(runID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.runs[runID]; taken {
		return false
	}
	c.runs[runID] = struct{}{}
	return true
}

// Release forgets a claim. Releasing an unknown run is a no-op.
func (c *Claims) Release(runID int64) {
	c.mu.Lock()
	delete(c.runs, runID)
	c.mu.Unlock()
}

// Claimed reports whether runID is currently claimed.
func (c *Claims) Claimed(runID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, taken := c.runs[runID]
	return taken
}
