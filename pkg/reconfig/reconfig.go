// Package reconfig implements the reconfiguration polling client: a lazy
// bounded sequence of reconfiguration state updates keyed by
// monotonically increasing block identifiers, guarded by a mutex and
// condition variable rather than a channel so Stop can deterministically
// wake every blocked consumer.
package reconfig

import (
	"sort"
	"sync"
)

// Update is one externally produced state change, tagged with the block
// id it was committed at.
type Update struct {
	BlockID uint64
	Payload []byte
}

// Client is a lazy bounded sequence of Updates. Producers call
// PushUpdate; consumers call GetNextState, which blocks until an update
// is available or the client is stopped.
type Client struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Update
	lastKnownBlockID uint64
	stopped  bool
	halted   bool
}

// NewClient constructs a Client with the given starting watermark.
func NewClient(initialBlockID uint64) *Client {
	c := &Client{lastKnownBlockID: initialBlockID}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// PushUpdate sorts states by block id ascending, drops any update not
// strictly newer than the last-known watermark, advances the watermark,
// and signals one waiter if anything was actually enqueued.
func (c *Client) PushUpdate(states []Update) {
	if len(states) == 0 {
		return
	}
	sorted := append([]Update(nil), states...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BlockID < sorted[j].BlockID })

	c.mu.Lock()
	defer c.mu.Unlock()

	pushed := false
	for _, u := range sorted {
		if u.BlockID <= c.lastKnownBlockID {
			continue
		}
		c.queue = append(c.queue, u)
		c.lastKnownBlockID = u.BlockID
		pushed = true
	}
	if pushed {
		c.cond.Signal()
	}
}

// GetNextState blocks until an update is available or the client is
// stopped. On stop, it echoes back the caller's own lastKnown watermark
// with an empty payload, so a stopped consumer never observes state it
// didn't already know about.
func (c *Client) GetNextState(lastKnown uint64) (Update, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.queue) == 0 && !c.stopped && !c.halted {
		c.cond.Wait()
	}
	if (c.stopped || c.halted) && len(c.queue) == 0 {
		return Update{BlockID: lastKnown}, false
	}

	u := c.queue[0]
	c.queue = c.queue[1:]
	return u, true
}

// GetLatestClientUpdate is a non-blocking watermark read.
func (c *Client) GetLatestClientUpdate(clientID uint32) Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Update{BlockID: c.lastKnownBlockID}
}

// Stop drains waiters by waking every blocked GetNextState call, each of
// which then observes the sentinel {lastKnown, empty}.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Halt pauses the client: blocked and future GetNextState calls observe
// the sentinel {lastKnown, false} until Resume is called. Unlike Stop,
// halting is not terminal — the queue and watermark are preserved and
// polling can pick back up exactly where it left off.
func (c *Client) Halt() {
	c.mu.Lock()
	c.halted = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Resume un-pauses a halted client, letting GetNextState block and
// deliver updates normally again. A no-op if the client was never
// halted or has since been stopped.
func (c *Client) Resume() {
	c.mu.Lock()
	c.halted = false
	c.mu.Unlock()
}

// LatestKnownUpdateBlock returns the current watermark.
func (c *Client) LatestKnownUpdateBlock() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKnownBlockID
}

// QueueLen reports the number of updates awaiting a consumer, for tests.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
