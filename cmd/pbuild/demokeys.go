package main

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bitvmx-labs/protocol-builder/internal/graph"
	"github.com/bitvmx-labs/protocol-builder/pkg/helpers"
)

// demoKeyManager implements graph.KeyManager by deterministically deriving
// every key from a seed and a key index, the way the teacher's swap package
// derives ephemeral per-swap keys (internal/swap/musig2.go's
// GenerateEphemeralKey) rather than from an HD wallet. It exists purely so
// the CLI can exercise build-and-sign end to end without a real remote
// signer; nothing about it belongs in internal/graph.
type demoKeyManager struct {
	seed []byte
}

func newDemoKeyManager(seed string) *demoKeyManager {
	return &demoKeyManager{seed: []byte(seed)}
}

func (m *demoKeyManager) privKey(keyIndex uint32) *btcec.PrivateKey {
	h := sha256.Sum256(append(append([]byte{}, m.seed...), byte(keyIndex), byte(keyIndex>>8), byte(keyIndex>>16), byte(keyIndex>>24)))
	priv, _ := btcec.PrivKeyFromBytes(h[:])
	return priv
}

// PubKey exposes the deterministic public key for keyIndex, so the CLI can
// wire the same demo identity into output scripts (InternalKey, PubKey,
// OwnerKey, ...) that BuildSpeedupTx/plan loading needs.
func (m *demoKeyManager) PubKey(keyIndex uint32) *btcec.PublicKey {
	return m.privKey(keyIndex).PubKey()
}

func (m *demoKeyManager) SignECDSA(ctx context.Context, keyIndex uint32, sighash chainhash.Hash) ([]byte, error) {
	sig := ecdsa.Sign(m.privKey(keyIndex), sighash[:])
	return sig.Serialize(), nil
}

func (m *demoKeyManager) SignSchnorr(ctx context.Context, keyIndex uint32, sighash chainhash.Hash) ([]byte, error) {
	sig, err := schnorr.Sign(m.privKey(keyIndex), sighash[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// SignMuSig2 aggregates and signs on behalf of every listed participant at
// once. The demo manager holds every participant's key (it derived them
// all), which is only sound for local testing: a real deployment needs one
// KeyManager per party and a nonce-exchange round the protocol graph itself
// never models (§6 Non-goals: multi-party rendezvous).
func (m *demoKeyManager) SignMuSig2(ctx context.Context, participants []*btcec.PublicKey, coordinator *btcec.PublicKey, sighash chainhash.Hash) ([]byte, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("demo key manager: musig2 requires at least one participant")
	}

	privs := make([]*btcec.PrivateKey, 0, len(participants))
	for _, pub := range participants {
		priv := m.findPrivKey(pub)
		if priv == nil {
			return nil, fmt.Errorf("demo key manager: no known private key for participant %x", pub.SerializeCompressed())
		}
		privs = append(privs, priv)
	}

	nonces := make([]*musig2.Nonces, len(privs))
	for i, priv := range privs {
		n, err := musig2.GenNonces(musig2.WithPublicKey(priv.PubKey()))
		if err != nil {
			return nil, fmt.Errorf("demo key manager: gen nonces: %w", err)
		}
		nonces[i] = n
	}

	sessions := make([]*musig2.Session, 0, len(privs))
	for i, priv := range privs {
		ctxOpt, err := musig2.NewContext(priv, false, musig2.WithKnownSigners(participants))
		if err != nil {
			return nil, fmt.Errorf("demo key manager: musig2 context: %w", err)
		}
		session, err := ctxOpt.NewSession(musig2.WithPreGeneratedNonce(nonces[i]))
		if err != nil {
			return nil, fmt.Errorf("demo key manager: musig2 session: %w", err)
		}
		sessions = append(sessions, session)
	}

	for i, session := range sessions {
		for j, n := range nonces {
			if i == j {
				continue
			}
			if _, err := session.RegisterPubNonce(n.PubNonce); err != nil {
				return nil, fmt.Errorf("demo key manager: register nonce: %w", err)
			}
		}
	}

	partials := make([]*musig2.PartialSignature, len(sessions))
	for i, session := range sessions {
		partial, err := session.Sign(sighash)
		if err != nil {
			return nil, fmt.Errorf("demo key manager: musig2 sign: %w", err)
		}
		partials[i] = partial
	}

	// Feed every other session's partial signature into sessions[0] until
	// it reports a final signature.
	combined := sessions[0]
	var sig *schnorr.Signature
	for i := 1; i < len(sessions); i++ {
		haveAll, err := combined.CombineSig(partials[i])
		if err != nil {
			return nil, fmt.Errorf("demo key manager: combine partial sig: %w", err)
		}
		if haveAll {
			sig = combined.FinalSig()
		}
	}
	if sig == nil {
		sig = combined.FinalSig()
	}
	if sig == nil {
		return nil, fmt.Errorf("demo key manager: musig2 session did not finalize")
	}
	return sig.Serialize(), nil
}

func (m *demoKeyManager) findPrivKey(pub *btcec.PublicKey) *btcec.PrivateKey {
	target := pub.SerializeCompressed()
	for i := uint32(0); i < 1024; i++ {
		priv := m.privKey(i)
		if helpers.ConstantTimeCompare(priv.PubKey().SerializeCompressed(), target) {
			return priv
		}
	}
	return nil
}

func (m *demoKeyManager) SignWinternitz(ctx context.Context, keyIndex uint32, hashType graph.WinternitzHashType, message []byte) ([]byte, error) {
	seed := sha256.Sum256(append(append([]byte{}, m.seed...), byte(keyIndex), 'w'))
	digest := sha256.Sum256(append(seed[:], message...))
	return digest[:], nil
}

var _ graph.KeyManager = (*demoKeyManager)(nil)
