package sigmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bftcore/pkg/cryptoengine"
	"bftcore/pkg/epoch"
	"bftcore/pkg/keystore"
	"bftcore/pkg/principal"
)

type harness struct {
	mgr *Manager
	cem *epoch.Manager
}

func newHarness(t *testing.T, selfID uint32, isReplica bool) *harness {
	t.Helper()

	reg, err := principal.NewRegistry(principal.Counts{NumReplicas: 4, NumExternalClients: 2})
	require.NoError(t, err)

	pub, _, err := cryptoengine.GenerateEdDSAKeyPair()
	require.NoError(t, err)
	store, err := keystore.New(context.Background(), reg, []keystore.KeyEntry{
		{PrincipalID: 4, KeyIndex: 0, Key: pub},
		{PrincipalID: 5, KeyIndex: 0, Key: pub},
	}, nil)
	require.NoError(t, err)

	cem, err := epoch.NewManager(100)
	require.NoError(t, err)
	_, priv, err := cryptoengine.GenerateEdDSAKeyPair()
	require.NoError(t, err)
	signer, err := cryptoengine.NewEdDSASigner(priv)
	require.NoError(t, err)
	ms, err := cryptoengine.NewMultiSigner(signer, []uint32{0, 1, 2, 3})
	require.NoError(t, err)
	cem.Activate(0, ms, ms.Verifiers())

	mgr, err := New(Config{
		Registry:      reg,
		Store:         store,
		CEM:           cem,
		SelfID:        selfID,
		IsSelfReplica: isReplica,
	})
	require.NoError(t, err)

	return &harness{mgr: mgr, cem: cem}
}

func TestSignAndVerifyReplicaRoundTrip(t *testing.T) {
	h := newHarness(t, 0, true)

	data := []byte("pre-prepare")
	sig, err := h.mgr.Sign(42, data)
	require.NoError(t, err)

	assert.True(t, h.mgr.VerifyReplicaSig(0, data, sig))
	assert.True(t, h.mgr.VerifySig(0, data, sig))
}

func TestSignRejectsNonReplica(t *testing.T) {
	h := newHarness(t, 4, false)
	_, err := h.mgr.Sign(1, []byte("x"))
	require.Error(t, err)
}

func TestVerifyNonReplicaSigViaKeyStore(t *testing.T) {
	h := newHarness(t, 4, false)

	newPub, newPriv, err := cryptoengine.GenerateEdDSAKeyPair()
	require.NoError(t, err)
	require.NoError(t, h.mgr.SetClientPublicKey(newPub, 4, cryptoengine.KeyFormatRaw))

	signer, err := cryptoengine.NewEdDSASigner(newPriv)
	require.NoError(t, err)
	data := []byte("client request")
	sig, err := signer.SignBuffer(data)
	require.NoError(t, err)

	assert.True(t, h.mgr.VerifyNonReplicaSig(4, data, sig))
	assert.True(t, h.mgr.VerifySig(4, data, sig))
}

func TestVerifySigOnUnknownPrincipalFails(t *testing.T) {
	h := newHarness(t, 4, false)
	assert.False(t, h.mgr.VerifySig(999, []byte("x"), []byte("y")))
}

func TestGetClientsPublicKeysReflectsHotUpdate(t *testing.T) {
	h := newHarness(t, 4, false)
	newPub, _, err := cryptoengine.GenerateEdDSAKeyPair()
	require.NoError(t, err)
	require.NoError(t, h.mgr.SetClientPublicKey(newPub, 4, cryptoengine.KeyFormatRaw))

	snapshot := h.mgr.GetClientsPublicKeys()
	entry, ok := snapshot.IDsToKeys[4]
	require.True(t, ok)
	assert.Equal(t, newPub, entry.Key)
}

func TestVerifyOwnSignatureMatchesLatestSigner(t *testing.T) {
	h := newHarness(t, 0, true)
	data := []byte("checkpoint digest")
	sig, err := h.mgr.Sign(10, data)
	require.NoError(t, err)

	assert.True(t, h.mgr.VerifyOwnSignature(data, sig))
	assert.False(t, h.mgr.VerifyOwnSignature(data, []byte("garbage")))
}

func TestReplicaLastExecutedSeqRoundTrip(t *testing.T) {
	h := newHarness(t, 0, true)
	assert.Equal(t, uint64(0), h.mgr.ReplicaLastExecutedSeq())
	h.mgr.SetReplicaLastExecutedSeq(150)
	assert.Equal(t, uint64(150), h.mgr.ReplicaLastExecutedSeq())
}

func TestClientsPublicKeysFingerprintIsDeterministic(t *testing.T) {
	snap := ClientsPublicKeys{
		Version: 2,
		IDsToKeys: map[uint32]ClientKey{
			1: {Key: []byte("abc")},
			2: {Key: []byte("xyz")},
		},
	}
	assert.Equal(t, snap.Fingerprint(), snap.Fingerprint())

	other := snap
	other.IDsToKeys = map[uint32]ClientKey{
		1: {Key: []byte("abc")},
		2: {Key: []byte("different")},
	}
	assert.NotEqual(t, snap.Fingerprint(), other.Fingerprint())
}

func TestRegistryRegisterCurrentReset(t *testing.T) {
	h := newHarness(t, 0, true)
	Register(h.mgr)
	assert.Same(t, h.mgr, Current())
	Reset()
	assert.Nil(t, Current())
}
