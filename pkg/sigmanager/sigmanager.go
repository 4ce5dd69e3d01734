// Package sigmanager implements the public signature-management façade:
// sign, verify-replica, verify-non-replica, self-verify, and hot client
// key replacement. It routes replica signatures through the crypto epoch
// manager and everyone else through the key store, and it is reachable
// process-wide through a swappable global registry rather than a mutable
// global field.
package sigmanager

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"bftcore/pkg/cryptoengine"
	"bftcore/pkg/epoch"
	"bftcore/pkg/helper/log"
	"bftcore/pkg/keystore"
	"bftcore/pkg/metrics"
	"bftcore/pkg/principal"
	"bftcore/pkg/signerror"
)

// successAmortizationThreshold is the "small integer" the spec calls out
// (e.g. 1000): successful verifications only update the metrics
// aggregator once every N occurrences, to keep the hot verification path
// cheap. Failures always update immediately.
const successAmortizationThreshold = 1000

// ClientsPublicKeys is the serializable snapshot handed out by
// GetClientsPublicKeys. Version 2 indicates EdDSA verifiers; version 1
// (legacy RSA) must never be written by this core.
type ClientsPublicKeys struct {
	Version   uint8
	IDsToKeys map[uint32]ClientKey
}

// ClientKey is one entry of a ClientsPublicKeys snapshot.
type ClientKey struct {
	Key    []byte
	Format cryptoengine.KeyFormat
}

// Fingerprint returns an xxhash digest of the snapshot's contents,
// suitable for cheaply detecting whether two snapshots are identical
// without a full deep comparison (e.g. when deciding whether to push a
// fresh copy to a subscriber).
func (c ClientsPublicKeys) Fingerprint() uint64 {
	ids := make([]uint32, 0, len(c.IDsToKeys))
	for id := range c.IDsToKeys {
		ids = append(ids, id)
	}
	sortUint32(ids)

	h := xxhash.New()
	_, _ = h.Write([]byte{c.Version})
	for _, id := range ids {
		k := c.IDsToKeys[id]
		var idBuf [4]byte
		idBuf[0] = byte(id)
		idBuf[1] = byte(id >> 8)
		idBuf[2] = byte(id >> 16)
		idBuf[3] = byte(id >> 24)
		_, _ = h.Write(idBuf[:])
		_, _ = h.Write(k.Key)
		_, _ = h.Write([]byte{byte(k.Format)})
	}
	return h.Sum64()
}

func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// counters holds the atomic verification metrics named by the component
// design. Failures update immediately; successes are amortized.
type counters struct {
	externalClientReqSigVerificationFailed   atomic.Uint64
	externalClientReqSigVerified             atomic.Uint64
	replicaSigVerificationFailed             atomic.Uint64
	replicaSigVerified                       atomic.Uint64
	sigVerificationFailedOnUnrecognizedParticipantID atomic.Uint64
}

// Manager is the signature-management façade. Construct one per process
// and publish it via Register/Current, or thread it explicitly
// through callers that prefer not to use the global registry.
type Manager struct {
	registry *principal.Registry
	store    *keystore.Store
	cem      *epoch.Manager
	selfID   uint32
	isSelfReplica bool

	counters counters
	metrics  *metrics.SignatureMetrics
	logger   log.Logger

	mu                sync.RWMutex
	clientsPublicKeys ClientsPublicKeys
	lastExecutedSeq   atomic.Uint64
}

// Config bundles the construction-time dependencies for a Manager.
type Config struct {
	Registry      *principal.Registry
	Store         *keystore.Store
	CEM           *epoch.Manager
	SelfID        uint32
	IsSelfReplica bool
	Metrics       *metrics.SignatureMetrics
	Logger        log.Logger
}

// New constructs a Manager. Construction-time misconfiguration (nil
// dependencies) is a programmer error and returns ConfigurationInvalid.
func New(cfg Config) (*Manager, error) {
	if cfg.Registry == nil || cfg.Store == nil || cfg.CEM == nil {
		return nil, signerror.ConfigurationInvalidf("sigmanager: registry, store, and cem are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewBasicLogger(log.InfoLevel)
	}
	return &Manager{
		registry:      cfg.Registry,
		store:         cfg.Store,
		cem:           cfg.CEM,
		selfID:        cfg.SelfID,
		isSelfReplica: cfg.IsSelfReplica,
		metrics:       cfg.Metrics,
		logger:        logger,
		clientsPublicKeys: ClientsPublicKeys{
			Version:   2,
			IDsToKeys: make(map[uint32]ClientKey),
		},
	}, nil
}

// Sign signs data at sequence seq. The caller must be a replica; the
// result's length equals the active generation's signature length.
func (m *Manager) Sign(seq uint64, data []byte) ([]byte, error) {
	if !m.isSelfReplica {
		return nil, signerror.ConfigurationInvalidf("sigmanager: sign requires a replica identity")
	}
	signer, ok := m.cem.SignerForSeq(seq)
	if !ok {
		return nil, signerror.KeyMaterialInvalidf("sigmanager: no signer active for seq %d", seq)
	}
	return signer.SignBuffer(data)
}

// VerifyReplicaSig tries each live key generation's verifier for src,
// returning true on the first success. Every attempt is logged with the
// source id and signature length.
func (m *Manager) VerifyReplicaSig(src uint32, data, sig []byte) bool {
	for _, mv := range m.cem.LatestVerifiers() {
		v, ok := mv.VerifierFor(src)
		if !ok {
			continue
		}
		m.logger.WithFields(map[string]interface{}{
			"src":     src,
			"sig_len": len(sig),
		}).Debug("sigmanager: attempting replica signature verification")
		if v.VerifyBuffer(data, sig) {
			m.onSuccess(&m.counters.replicaSigVerified, m.metrics.IncReplicaSigVerified)
			return true
		}
	}
	m.onFailure(&m.counters.replicaSigVerificationFailed, m.metrics.IncReplicaSigVerificationFailed)
	return false
}

// VerifyNonReplicaSig looks up the key store under a shared lock. An
// unknown principal returns false and increments the unrecognized-
// participant counter without asserting.
func (m *Manager) VerifyNonReplicaSig(src uint32, data, sig []byte) bool {
	v, ok := m.store.Lookup(src)
	if !ok {
		m.onFailure(&m.counters.sigVerificationFailedOnUnrecognizedParticipantID,
			m.metrics.IncSigVerificationFailedOnUnrecognizedParticipantID)
		return false
	}
	if v.VerifyBuffer(data, sig) {
		m.onSuccess(&m.counters.externalClientReqSigVerified, m.metrics.IncExternalClientReqSigVerified)
		return true
	}
	m.onFailure(&m.counters.externalClientReqSigVerificationFailed, m.metrics.IncExternalClientReqSigVerificationFailed)
	return false
}

// VerifySig dispatches to VerifyReplicaSig or VerifyNonReplicaSig by the
// principal registry's classification of src.
func (m *Manager) VerifySig(src uint32, data, sig []byte) bool {
	if m.registry.IsReplica(src) {
		return m.VerifyReplicaSig(src, data, sig)
	}
	return m.VerifyNonReplicaSig(src, data, sig)
}

// VerifyOwnSignature signs data with every latest signer and returns
// true iff any produced signature is byte-equal to expected. This is the
// local-replay check used during catch-up reconciliation.
func (m *Manager) VerifyOwnSignature(data, expected []byte) bool {
	for _, signer := range m.cem.LatestSigners() {
		sig, err := signer.SignBuffer(data)
		if err != nil {
			continue
		}
		if bytesEqual(sig, expected) {
			return true
		}
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SigLength returns the length a signature from pid would have. For
// self, it is the latest replica signer's length; for others, the key
// store's verifier length. Zero on unknown.
func (m *Manager) SigLength(pid uint32) int {
	if pid == m.selfID && m.isSelfReplica {
		g, ok := m.cem.Latest()
		if !ok {
			return 0
		}
		return g.Signer.SignatureLength()
	}
	v, ok := m.store.Lookup(pid)
	if !ok {
		return 0
	}
	return v.SignatureLength()
}

// SetClientPublicKey is a hot update for client principals only
// (external clients and client services). It replaces the verifier and
// reflects the key into the serializable clients_public_keys structure.
func (m *Manager) SetClientPublicKey(key []byte, id uint32, format cryptoengine.KeyFormat) error {
	if err := m.store.HotUpdate(id, key, format); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientsPublicKeys.IDsToKeys[id] = ClientKey{Key: append([]byte(nil), key...), Format: format}
	m.clientsPublicKeys.Version = 2
	return nil
}

// GetClientsPublicKeys returns the serialized snapshot under a shared
// lock.
func (m *Manager) GetClientsPublicKeys() ClientsPublicKeys {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := ClientsPublicKeys{Version: m.clientsPublicKeys.Version, IDsToKeys: make(map[uint32]ClientKey, len(m.clientsPublicKeys.IDsToKeys))}
	for k, v := range m.clientsPublicKeys.IDsToKeys {
		out.IDsToKeys[k] = v
	}
	return out
}

// SetReplicaLastExecutedSeq records the last-executed sequence, used by
// the reconciliation pipeline after state transfer.
func (m *Manager) SetReplicaLastExecutedSeq(seq uint64) { m.lastExecutedSeq.Store(seq) }

// ReplicaLastExecutedSeq returns the last-executed sequence.
func (m *Manager) ReplicaLastExecutedSeq() uint64 { return m.lastExecutedSeq.Load() }

// HasVerifier reports whether the key store has a verifier for id.
func (m *Manager) HasVerifier(id uint32) bool { return m.store.Has(id) }

// Algorithm reports the signing algorithm this core exercises. Hardcoded
// because only EdDSA is wired; a future algorithm would be a constructor
// parameter, not a runtime branch.
func (m *Manager) Algorithm() string { return "EdDSA" }

// SelfPrivateKeySigner returns the latest generation's signer for self,
// used by callers that need to re-derive or re-verify the replica's own
// key material (e.g. the key-exchange coordinator during reconciliation).
func (m *Manager) SelfPrivateKeySigner() (cryptoengine.MultiSigner, bool) {
	g, ok := m.cem.Latest()
	if !ok {
		return nil, false
	}
	return g.Signer, true
}

func (m *Manager) onSuccess(counter *atomic.Uint64, incMetric func()) {
	n := counter.Add(1)
	if n%successAmortizationThreshold == 0 && m.metrics != nil && incMetric != nil {
		incMetric()
	}
}

func (m *Manager) onFailure(counter *atomic.Uint64, incMetric func()) {
	counter.Add(1)
	if m.metrics != nil && incMetric != nil {
		incMetric()
	}
}
