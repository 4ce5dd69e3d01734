// Package keyexchange implements the key-exchange coordinator: it holds
// private-key candidates introduced by in-band key-exchange messages
// until state transfer completes, then matches them against the loaded
// public keys of the active key generation and persists the winners.
package keyexchange

import (
	"context"
	"strconv"
	"sync"
	"time"

	"bftcore/pkg/cryptoengine"
	"bftcore/pkg/epoch"
	"bftcore/pkg/helper/log"
	"bftcore/pkg/helper/util"
	"bftcore/pkg/secrets"
	"bftcore/pkg/security/encryption"
	"bftcore/pkg/signerror"
)

// Candidate is one principal's pending private key, awaiting
// confirmation by a matching public key once state transfer completes.
type Candidate struct {
	PrincipalID uint32
	PrivateKey  []byte
}

// Coordinator is single-writer (the reconciliation pipeline); its
// candidate set is a map guarded by a mutex, and AddCandidate stores a
// copy of each key.
type Coordinator struct {
	mu         sync.Mutex
	candidates map[uint32][]byte

	secretsProvider   secrets.Provider // optional: nil means persistence is a no-op
	encryptionManager *encryption.Manager // optional: nil means candidates persist unsealed
	secretNamePrefix  string
	logger            log.Logger
}

// Config bundles the coordinator's construction-time dependencies. Both
// SecretsProvider and EncryptionManager are optional: without a
// SecretsProvider, PersistCandidates is a logging no-op (useful for tests
// and single-node demo deployments without a secrets backend); without an
// EncryptionManager, candidates are persisted unsealed.
type Config struct {
	SecretsProvider   secrets.Provider
	EncryptionManager *encryption.Manager
	SecretNamePrefix  string
	Logger            log.Logger
}

// New constructs a Coordinator.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewBasicLogger(log.InfoLevel)
	}
	prefix := cfg.SecretNamePrefix
	if prefix == "" {
		prefix = "bftcore/key-exchange-candidate"
	}
	return &Coordinator{
		candidates:        make(map[uint32][]byte),
		secretsProvider:   cfg.SecretsProvider,
		encryptionManager: cfg.EncryptionManager,
		secretNamePrefix:  prefix,
		logger:            logger,
	}
}

// AddCandidate introduces a pending private key for principal id,
// overwriting any prior candidate for the same id (the newest in-band
// exchange wins).
func (c *Coordinator) AddCandidate(id uint32, privateKey []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates[id] = append([]byte(nil), privateKey...)
}

// Candidates returns a snapshot of the current candidate set.
func (c *Coordinator) Candidates() map[uint32][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uint32][]byte, len(c.candidates))
	for k, v := range c.candidates {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// SyncPrivateKeysAfterST walks the latest key generation's public keys
// and, for each principal p, includes candidates[p] in the persistable
// set if and only if deriving its public key equals the generation's
// public key for p. All other candidates are dropped.
func SyncPrivateKeysAfterST(candidates map[uint32][]byte, generation epoch.Generation) (map[uint32][]byte, error) {
	persistable := make(map[uint32][]byte)
	for id, priv := range candidates {
		verifier, ok := generation.Verifier.VerifierFor(id)
		if !ok {
			continue
		}
		derivedPub, err := publicKeyFromPrivate(priv)
		if err != nil {
			continue
		}
		if bytesEqual(derivedPub, verifier.PublicKey()) {
			persistable[id] = priv
		}
	}
	return persistable, nil
}

func publicKeyFromPrivate(priv []byte) ([]byte, error) {
	signer, err := cryptoengine.NewEdDSASigner(priv)
	if err != nil {
		return nil, signerror.KeyMaterialInvalidf("key exchange: derive public key: %v", err)
	}
	return signer.PublicKey(), nil
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

// PersistCandidates hands the persistable set to the configured secrets
// backend, sealing each value with the encryption manager first when one
// is configured. Absent a secrets provider, this logs and returns nil
// (a valid configuration for demo/single-node deployments).
func (c *Coordinator) PersistCandidates(ctx context.Context, persistable map[uint32][]byte) error {
	if c.secretsProvider == nil {
		c.logger.WithFields(map[string]interface{}{"count": len(persistable)}).
			Debug("key exchange: no secrets backend configured, skipping candidate persistence")
		return nil
	}

	for id, priv := range persistable {
		payload := priv
		if c.encryptionManager != nil {
			sealed, err := c.encryptionManager.EncryptData(ctx, priv, nil)
			if err != nil {
				return signerror.TransportTransientf("key exchange: seal candidate for principal %d: %v", id, err)
			}
			payload = sealed
		}
		name := candidateSecretName(c.secretNamePrefix, id)
		putErr := util.RetryWithBackoff(ctx, 3, 200*time.Millisecond, 2*time.Second, func() error {
			return c.secretsProvider.PutSecret(ctx, name, string(payload))
		})
		if putErr != nil {
			return signerror.TransportTransientf("key exchange: persist candidate for principal %d: %v", id, putErr)
		}
	}

	// Drop persisted candidates from the pending set; they are now
	// durable and no longer awaiting confirmation.
	c.mu.Lock()
	for id := range persistable {
		delete(c.candidates, id)
	}
	c.mu.Unlock()

	return nil
}

func candidateSecretName(prefix string, id uint32) string {
	return prefix + "/" + strconv.FormatUint(uint64(id), 10)
}
