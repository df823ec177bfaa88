// Package resource implements the counted integer-id resource pool used
// to hand out processor and device ids to running tests.
package resource

import "fmt"

// Pool is a counted integer-id pool. It hands out ids in [0, maxAvailable)
// and tracks how many are currently checked out. A Pool is only ever
// touched by a single scheduler control loop (see the concurrency model
// in SPEC_FULL.md §5), so no internal locking is required.
type Pool struct {
	total        int
	maxAvailable int

	// useCount[id] is how many times id has been handed out; Get prefers
	// the least-used ids, breaking ties by lowest id, to round-robin
	// fairly across the id space.
	useCount []int
	inuse    int
}

// New creates a Pool. maxAvailable must be >= total >= 0.
func New(total, maxAvailable int) (*Pool, error) {
	if total < 0 || maxAvailable < total {
		return nil, fmt.Errorf("resource: invalid pool sizes total=%d maxAvailable=%d", total, maxAvailable)
	}
	return &Pool{
		total:        total,
		maxAvailable: maxAvailable,
		useCount:     make([]int, maxAvailable),
	}, nil
}

// NumTotal returns the configured total size of the pool.
func (p *Pool) NumTotal() int { return p.total }

// MaxAvailable returns the maximum number of ids the pool will ever track.
func (p *Pool) MaxAvailable() int { return p.maxAvailable }

// NumAvailable returns how many ids are currently free, clamped to 0.
// Per spec.md §9's resolved open question, oversubscription can never
// drive this negative.
func (p *Pool) NumAvailable() int {
	avail := p.maxAvailable - p.inuse
	if avail < 0 {
		return 0
	}
	return avail
}

// Get returns exactly n ids. When n <= NumAvailable(), it picks unused ids
// with the lowest use count (ties broken by lowest id). When n exceeds
// maxAvailable, the call still succeeds with synthetic ids cycling through
// [0, maxAvailable) — oversubscription is a scheduling policy, not an
// error — but accounting only charges min(n, total) against availability.
func (p *Pool) Get(n int) []int {
	if n <= 0 {
		return nil
	}

	ids := make([]int, 0, n)

	if n <= p.NumAvailable() {
		// Pick the n least-used ids, ties broken by lowest id.
		candidates := make([]int, p.maxAvailable)
		for i := range candidates {
			candidates[i] = i
		}
		// Simple selection: repeatedly pick the minimum (useCount, id).
		chosen := make(map[int]bool, n)
		for len(ids) < n {
			best := -1
			for _, id := range candidates {
				if chosen[id] {
					continue
				}
				if best == -1 || p.useCount[id] < p.useCount[best] {
					best = id
				}
			}
			chosen[best] = true
			ids = append(ids, best)
			p.useCount[best]++
		}
		p.inuse += n
		return ids
	}

	// Oversubscription: return n synthetic ids cycling [0, maxAvailable),
	// charging only min(n, total) against the accounting.
	if p.maxAvailable == 0 {
		for i := 0; i < n; i++ {
			ids = append(ids, i)
		}
	} else {
		for i := 0; i < n; i++ {
			ids = append(ids, i%p.maxAvailable)
		}
	}
	charge := n
	if p.total < charge {
		charge = p.total
	}
	p.inuse += charge

	return ids
}

// Put returns ids to the pool by lowering the in-use count by len(ids),
// clamped at 0. It does not check which ids are currently held, so
// returning an id that is not held still lowers the count.
func (p *Pool) Put(ids []int) {
	if len(ids) == 0 {
		return
	}
	p.inuse -= len(ids)
	if p.inuse < 0 {
		p.inuse = 0
	}
}
