// Package cryptoengine defines the narrow signer/verifier capability
// surface the rest of the module programs against, and a concrete EdDSA
// implementation backed by sigstore's signature primitives. Keeping the
// capability set behind an interface means no caller ever needs to
// downcast from a base type to a concrete multi-signer.
package cryptoengine

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	sigstoresig "github.com/sigstore/sigstore/pkg/signature"

	"bftcore/pkg/signerror"
)

// KeyFormat tags how key bytes are encoded.
type KeyFormat uint8

const (
	KeyFormatRaw KeyFormat = iota
	KeyFormatHex
)

// DecodeKey normalizes key material to raw bytes according to format.
func DecodeKey(key []byte, format KeyFormat) ([]byte, error) {
	switch format {
	case KeyFormatRaw:
		return key, nil
	case KeyFormatHex:
		decoded := make([]byte, hex.DecodedLen(len(key)))
		n, err := hex.Decode(decoded, key)
		if err != nil {
			return nil, signerror.KeyMaterialInvalidf("decode hex key: %v", err)
		}
		return decoded[:n], nil
	default:
		return nil, signerror.KeyMaterialInvalidf("unknown key format %d", format)
	}
}

// Verifier verifies (data, signature) pairs against a fixed public key.
type Verifier interface {
	// VerifyBuffer returns true if sig is a valid signature over data.
	VerifyBuffer(data, sig []byte) bool
	// SignatureLength returns the byte length a valid signature must have.
	SignatureLength() int
	// PublicKey returns the raw public key bytes backing this verifier.
	PublicKey() []byte
}

// Signer is the symmetric counterpart of Verifier.
type Signer interface {
	Verifier
	// SignBuffer produces a signature over data.
	SignBuffer(data []byte) ([]byte, error)
}

// MultiVerifier is a container of per-replica verifiers produced by one
// key generation (one multisig keypair set, sliced by replica slot).
type MultiVerifier interface {
	// VerifierFor returns the slot verifier for replicaID, or (nil, false)
	// if replicaID has no slot in this generation.
	VerifierFor(replicaID uint32) (Verifier, bool)
	// SignatureLength is the uniform signature length across every slot.
	SignatureLength() int
}

// MultiSigner is the symmetric counterpart of MultiVerifier: one signer
// object whose signatures validate against every replica's exposed slot
// (a multisig scheme, not a collection of independent keys).
type MultiSigner interface {
	// SignBuffer produces the multisig signature over data.
	SignBuffer(data []byte) ([]byte, error)
	// SignatureLength is the length SignBuffer's output always has.
	SignatureLength() int
	// Verifiers exposes the per-replica verifier view of this signer's
	// public material, for constructing the matching MultiVerifier.
	Verifiers() MultiVerifier
}

// eddsaVerifier wraps a sigstore ED25519 verifier behind the narrow
// Verifier capability set.
type eddsaVerifier struct {
	pub  ed25519.PublicKey
	sv   sigstoresig.Verifier
	slen int
}

// NewEdDSAVerifier constructs a Verifier from a raw ed25519 public key.
func NewEdDSAVerifier(pub []byte) (Verifier, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, signerror.KeyMaterialInvalidf("eddsa verifier: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	sv, err := sigstoresig.LoadED25519Verifier(ed25519.PublicKey(pub))
	if err != nil {
		return nil, signerror.KeyMaterialInvalidf("eddsa verifier: %v", err)
	}
	return &eddsaVerifier{pub: ed25519.PublicKey(pub), sv: sv, slen: ed25519.SignatureSize}, nil
}

func (v *eddsaVerifier) VerifyBuffer(data, sig []byte) bool {
	if len(sig) != v.slen {
		return false
	}
	return v.sv.VerifySignature(bytes.NewReader(sig), bytes.NewReader(data)) == nil
}

func (v *eddsaVerifier) SignatureLength() int { return v.slen }
func (v *eddsaVerifier) PublicKey() []byte    { return append([]byte(nil), v.pub...) }

// eddsaSigner wraps a sigstore ED25519 signer behind the narrow Signer
// capability set.
type eddsaSigner struct {
	eddsaVerifier
	ss sigstoresig.Signer
}

// NewEdDSASigner constructs a Signer from a raw ed25519 private key.
func NewEdDSASigner(priv []byte) (Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, signerror.KeyMaterialInvalidf("eddsa signer: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pk := ed25519.PrivateKey(priv)
	ss, err := sigstoresig.LoadED25519Signer(pk)
	if err != nil {
		return nil, signerror.KeyMaterialInvalidf("eddsa signer: %v", err)
	}
	sv, err := sigstoresig.LoadED25519Verifier(pk.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, signerror.KeyMaterialInvalidf("eddsa signer: %v", err)
	}
	return &eddsaSigner{
		eddsaVerifier: eddsaVerifier{pub: pk.Public().(ed25519.PublicKey), sv: sv, slen: ed25519.SignatureSize},
		ss:            ss,
	}, nil
}

func (s *eddsaSigner) SignBuffer(data []byte) ([]byte, error) {
	sig, err := s.ss.SignMessage(bytes.NewReader(data))
	if err != nil {
		return nil, signerror.KeyMaterialInvalidf("eddsa sign: %v", err)
	}
	return sig, nil
}

// GenerateEdDSAKeyPair returns raw (public, private) ed25519 key bytes,
// for test harnesses and the demo CLI's bootstrap path.
func GenerateEdDSAKeyPair() (pub, priv []byte, err error) {
	p, s, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate eddsa keypair: %w", err)
	}
	return p, s, nil
}

// multiVerifier aliases a single underlying verifier per replica slot.
type multiVerifier struct {
	slots map[uint32]Verifier
	slen  int
}

// NewMultiVerifier builds a MultiVerifier from a replica-slot map. Every
// slot must share the same signature length (a multisig scheme property).
func NewMultiVerifier(slots map[uint32]Verifier) (MultiVerifier, error) {
	if len(slots) == 0 {
		return nil, signerror.ConfigurationInvalidf("multi-verifier: no slots provided")
	}
	slen := -1
	for id, v := range slots {
		if slen == -1 {
			slen = v.SignatureLength()
		} else if v.SignatureLength() != slen {
			return nil, signerror.ConfigurationInvalidf("multi-verifier: slot %d signature length mismatch", id)
		}
	}
	cp := make(map[uint32]Verifier, len(slots))
	for k, v := range slots {
		cp[k] = v
	}
	return &multiVerifier{slots: cp, slen: slen}, nil
}

func (m *multiVerifier) VerifierFor(replicaID uint32) (Verifier, bool) {
	v, ok := m.slots[replicaID]
	return v, ok
}

func (m *multiVerifier) SignatureLength() int { return m.slen }

// multiSigner is a single EdDSA signer whose public key is exposed to
// every replica slot (the simplest multisig realization: one shared
// per-generation keypair, not a threshold scheme).
type multiSigner struct {
	signer Signer
	mv     MultiVerifier
}

// NewMultiSigner builds a MultiSigner from one signer and the replica-slot
// map describing which replicas may verify its output.
func NewMultiSigner(signer Signer, replicaIDs []uint32) (MultiSigner, error) {
	slots := make(map[uint32]Verifier, len(replicaIDs))
	for _, id := range replicaIDs {
		slots[id] = signer
	}
	mv, err := NewMultiVerifier(slots)
	if err != nil {
		return nil, err
	}
	return &multiSigner{signer: signer, mv: mv}, nil
}

func (m *multiSigner) SignBuffer(data []byte) ([]byte, error) { return m.signer.SignBuffer(data) }
func (m *multiSigner) SignatureLength() int                   { return m.signer.SignatureLength() }
func (m *multiSigner) Verifiers() MultiVerifier                { return m.mv }
