// Package keystore owns the principal-id to shared-verifier mapping,
// supporting many-to-one aliasing for clients and strict one-to-one
// mapping for replicas, following the reader-writer lock discipline
// used throughout the signature-management stack.
package keystore

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"bftcore/pkg/cryptoengine"
	"bftcore/pkg/helper/log"
	"bftcore/pkg/principal"
	"bftcore/pkg/signerror"
)

// KeyEntry is one (key, format) pair plus the key index it shares with
// any other principal aliasing the same verifier.
type KeyEntry struct {
	PrincipalID uint32
	KeyIndex    uint32
	Key         []byte
	Format      cryptoengine.KeyFormat
}

// Store owns {principal_id -> shared verifier}. All reads take a shared
// lock; hot updates for external clients and client services take an
// exclusive lock. Every other entry is immutable after construction.
type Store struct {
	mu        sync.RWMutex
	verifiers map[uint32]cryptoengine.Verifier
	registry  *principal.Registry
	logger    log.Logger
}

// New builds a Store from a list of (key, format) entries plus a
// principal_id -> key_index mapping: one verifier is constructed per
// distinct key index, then every principal sharing that index is
// aliased to the same verifier instance. Verifier construction for
// distinct indices runs concurrently.
func New(ctx context.Context, reg *principal.Registry, entries []KeyEntry, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewBasicLogger(log.InfoLevel)
	}

	byIndex := make(map[uint32][]KeyEntry)
	for _, e := range entries {
		if err := reg.RequireKnown(e.PrincipalID); err != nil {
			return nil, err
		}
		byIndex[e.KeyIndex] = append(byIndex[e.KeyIndex], e)
	}

	type built struct {
		index    uint32
		verifier cryptoengine.Verifier
	}
	results := make([]built, 0, len(byIndex))
	var resultsMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for index, group := range byIndex {
		index, group := index, group
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rep := group[0]
			raw, err := cryptoengine.DecodeKey(rep.Key, rep.Format)
			if err != nil {
				return signerror.KeyMaterialInvalidf("key store: build index %d: %v", index, err)
			}
			v, err := cryptoengine.NewEdDSAVerifier(raw)
			if err != nil {
				return signerror.KeyMaterialInvalidf("key store: build index %d: %v", index, err)
			}
			resultsMu.Lock()
			results = append(results, built{index: index, verifier: v})
			resultsMu.Unlock()
			logger.WithFields(map[string]interface{}{
				"key_index":      index,
				"principal_count": len(group),
			}).Debug("key store: constructed verifier for key index")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	verifierByIndex := make(map[uint32]cryptoengine.Verifier, len(results))
	for _, r := range results {
		verifierByIndex[r.index] = r.verifier
	}

	verifiers := make(map[uint32]cryptoengine.Verifier, len(entries))
	replicaSeen := make(map[uint32]bool)
	for _, e := range entries {
		v := verifierByIndex[e.KeyIndex]
		if reg.IsReplica(e.PrincipalID) {
			if replicaSeen[e.PrincipalID] {
				return nil, signerror.ConfigurationInvalidf("key store: duplicate replica key for principal %d", e.PrincipalID)
			}
			replicaSeen[e.PrincipalID] = true
		}
		verifiers[e.PrincipalID] = v
	}

	return &Store{verifiers: verifiers, registry: reg, logger: logger}, nil
}

// Lookup returns the verifier for id under a shared lock, or (nil, false)
// if id has no registered verifier.
func (s *Store) Lookup(id uint32) (cryptoengine.Verifier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verifiers[id]
	return v, ok
}

// HotUpdate replaces the verifier for a client principal. Only external
// clients and client services are eligible; anything else is rejected
// before the exclusive lock is taken. On verifier-construction failure
// the store is left unchanged and the error is classified
// KeyMaterialInvalid.
func (s *Store) HotUpdate(id uint32, key []byte, format cryptoengine.KeyFormat) error {
	if !s.registry.IsClientPrincipal(id) {
		return signerror.ConfigurationInvalidf("key store: hot update rejected for non-client principal %d", id)
	}

	raw, err := cryptoengine.DecodeKey(key, format)
	if err != nil {
		return signerror.KeyMaterialInvalidf("key store: hot update for principal %d: %v", id, err)
	}
	v, err := cryptoengine.NewEdDSAVerifier(raw)
	if err != nil {
		return signerror.KeyMaterialInvalidf("key store: hot update for principal %d: %v", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifiers[id] = v
	return nil
}

// Has reports whether a verifier is registered for id, grounded on the
// original source's hasVerifier helper.
func (s *Store) Has(id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.verifiers[id]
	return ok
}
