package graph

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// testKeyManager is a deterministic, in-memory KeyManager stub: good enough
// to exercise the signing dispatcher and witness assembler, but it makes no
// claim about cryptographic validity (consensus validation is out of scope,
// spec §1 Non-goals).
type testKeyManager struct{}

func (testKeyManager) SignECDSA(ctx context.Context, keyIndex uint32, sighash chainhash.Hash) ([]byte, error) {
	return append([]byte{byte(keyIndex)}, sighash[:]...), nil
}

func (testKeyManager) SignSchnorr(ctx context.Context, keyIndex uint32, sighash chainhash.Hash) ([]byte, error) {
	sig := make([]byte, 64)
	copy(sig, sighash[:])
	sig[63] = byte(keyIndex)
	return sig, nil
}

func (testKeyManager) SignMuSig2(ctx context.Context, participants []*btcec.PublicKey, coordinator *btcec.PublicKey, sighash chainhash.Hash) ([]byte, error) {
	sig := make([]byte, 64)
	copy(sig, sighash[:])
	sig[63] = byte(len(participants))
	return sig, nil
}

func (testKeyManager) SignWinternitz(ctx context.Context, keyIndex uint32, hashType WinternitzHashType, message []byte) ([]byte, error) {
	out := make([]byte, 32)
	copy(out, message)
	out[31] ^= byte(keyIndex)
	return out, nil
}

var _ KeyManager = testKeyManager{}

func newTestKey(t interface{ Fatalf(string, ...interface{}) }) *btcec.PublicKey {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv.PubKey()
}

func newExternalTxid(t interface{ Fatalf(string, ...interface{}) }) chainhash.Hash {
	h, err := chainhash.NewHashFromStr("9f19f4c9a9fa3f3e9a6e1f0c9a4b8d2e1c0b9a8f7e6d5c4b3a29180716253443")
	if err != nil {
		t.Fatalf("parse external txid: %v", err)
	}
	return *h
}
