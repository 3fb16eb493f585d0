package analyzer

import "sync"

// RevisionCounter counts how many times each VCS revision was built
// across every sampled build of every analyzed configuration. A revision
// compiled more than once is a redundant build worth surfacing.
//
// The counter is shared by concurrently processed configurations and is
// safe for concurrent use.
type RevisionCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewRevisionCounter creates an empty counter.
func NewRevisionCounter() *RevisionCounter {
	return &RevisionCounter{
		counts: make(map[string]int),
	}
}

// Record increments the build count for each given revision.
func (c *RevisionCounter) Record(revisions ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rev := range revisions {
		c.counts[rev]++
	}
}

// Counts returns a copy of all revision counts.
func (c *RevisionCounter) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int, len(c.counts))
	for rev, n := range c.counts {
		out[rev] = n
	}

	return out
}

// Duplicates returns only the revisions that were built more than once.
func (c *RevisionCounter) Duplicates() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int)

	for rev, n := range c.counts {
		if n > 1 {
			out[rev] = n
		}
	}

	return out
}
