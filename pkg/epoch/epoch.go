// Package epoch maintains a small, copy-on-write window of key
// generations (current + prior) indexed by checkpoint, and resolves a
// sequence number to the generation active when that sequence was
// assigned — irrespective of wall-clock rotation races.
package epoch

import (
	"sync"
	"sync/atomic"

	"bftcore/pkg/cryptoengine"
	"bftcore/pkg/signerror"
)

// Generation is one (multi-signer, multi-verifier) pair active within a
// checkpoint range, totally ordered by ActivationCheckpoint.
type Generation struct {
	ID                   uint64
	ActivationCheckpoint uint64
	Signer               cryptoengine.MultiSigner
	Verifier             cryptoengine.MultiVerifier
}

// Manager holds an ordered set of generations (at most two live at once
// in steady state) and answers sequence-indexed and "latest" queries.
// Rotation publishes a fresh slice atomically; readers observe either
// the old or the new slice in full, never a partial one.
type Manager struct {
	checkpointWindow uint64
	generations      atomic.Pointer[[]Generation]
	nextID           uint64
	mu               sync.Mutex // serializes rotation/retirement only
}

// NewManager constructs an empty Manager for the given checkpoint window
// (the number of sequences per checkpoint, used to floor-divide a
// sequence into its checkpoint).
func NewManager(checkpointWindow uint64) (*Manager, error) {
	if checkpointWindow == 0 {
		return nil, signerror.ConfigurationInvalidf("epoch manager: checkpoint_window must be non-zero")
	}
	m := &Manager{checkpointWindow: checkpointWindow}
	empty := make([]Generation, 0)
	m.generations.Store(&empty)
	return m, nil
}

// checkpointOf floors a sequence number into its checkpoint index.
func (m *Manager) checkpointOf(seq uint64) uint64 {
	return seq / m.checkpointWindow
}

// Activate appends a new generation active from checkpoint cp onward.
// The new generation list is published atomically.
func (m *Manager) Activate(cp uint64, signer cryptoengine.MultiSigner, verifier cryptoengine.MultiVerifier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	g := Generation{ID: m.nextID, ActivationCheckpoint: cp, Signer: signer, Verifier: verifier}

	cur := *m.generations.Load()
	next := make([]Generation, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, g)
	m.generations.Store(&next)
}

// OnCheckpoint retires generations whose activation is strictly less
// than cp-1, keeping the window to at most two live generations in
// steady state.
func (m *Manager) OnCheckpoint(cp uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := *m.generations.Load()
	if cp == 0 {
		return
	}
	retireBelow := cp - 1

	kept := make([]Generation, 0, len(cur))
	for _, g := range cur {
		if g.ActivationCheckpoint < retireBelow {
			continue
		}
		kept = append(kept, g)
	}
	m.generations.Store(&kept)
}

// SignerForSeq returns the signer whose activation checkpoint is the
// greatest one not exceeding floor(seq / checkpoint_window), or
// (nil, false) if no generation qualifies.
func (m *Manager) SignerForSeq(seq uint64) (cryptoengine.MultiSigner, bool) {
	g, ok := m.generationForSeq(seq)
	if !ok {
		return nil, false
	}
	return g.Signer, true
}

// VerifierForSeq returns the verifier whose activation checkpoint is the
// greatest one not exceeding floor(seq / checkpoint_window), or
// (nil, false) if no generation qualifies.
func (m *Manager) VerifierForSeq(seq uint64) (cryptoengine.MultiVerifier, bool) {
	g, ok := m.generationForSeq(seq)
	if !ok {
		return nil, false
	}
	return g.Verifier, true
}

func (m *Manager) generationForSeq(seq uint64) (Generation, bool) {
	cp := m.checkpointOf(seq)
	cur := *m.generations.Load()

	var best *Generation
	for i := range cur {
		g := &cur[i]
		if g.ActivationCheckpoint > cp {
			continue
		}
		if best == nil || g.ActivationCheckpoint > best.ActivationCheckpoint {
			best = g
		}
	}
	if best == nil {
		return Generation{}, false
	}
	return *best, true
}

// LatestSigners returns every live generation's signer, newest first.
func (m *Manager) LatestSigners() []cryptoengine.MultiSigner {
	cur := *m.generations.Load()
	out := make([]cryptoengine.MultiSigner, 0, len(cur))
	for i := len(cur) - 1; i >= 0; i-- {
		out = append(out, cur[i].Signer)
	}
	return out
}

// LatestVerifiers returns every live generation's verifier, newest first.
func (m *Manager) LatestVerifiers() []cryptoengine.MultiVerifier {
	cur := *m.generations.Load()
	out := make([]cryptoengine.MultiVerifier, 0, len(cur))
	for i := len(cur) - 1; i >= 0; i-- {
		out = append(out, cur[i].Verifier)
	}
	return out
}

// Latest returns the most recently activated live generation, if any.
func (m *Manager) Latest() (Generation, bool) {
	cur := *m.generations.Load()
	if len(cur) == 0 {
		return Generation{}, false
	}
	best := cur[0]
	for _, g := range cur[1:] {
		if g.ActivationCheckpoint > best.ActivationCheckpoint {
			best = g
		}
	}
	return best, true
}

// LiveCount returns the number of live generations, for test assertions.
func (m *Manager) LiveCount() int {
	return len(*m.generations.Load())
}
