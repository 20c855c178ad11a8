package graph

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// KeyManager is the external signing collaborator (§6: "the key manager
// that produces ECDSA / Schnorr / MuSig2 / Winternitz signatures" is out of
// scope for this package — it is a caller-supplied implementation). Sign
// dispatches every slot's request here and never touches private key
// material itself.
type KeyManager interface {
	// SignECDSA produces a DER-encoded ECDSA signature over sighash for the
	// key identified by keyIndex, used by SegwitSpend slots.
	SignECDSA(ctx context.Context, keyIndex uint32, sighash chainhash.Hash) ([]byte, error)

	// SignSchnorr produces a 64-byte BIP-340 Schnorr signature over sighash
	// for the key identified by keyIndex, used by single-signer Taproot
	// key-path and script-path slots.
	SignSchnorr(ctx context.Context, keyIndex uint32, sighash chainhash.Hash) ([]byte, error)

	// SignMuSig2 produces the aggregate 64-byte Schnorr signature for a
	// MuSig2 session among participants, coordinated by coordinator, over
	// sighash. The key manager owns nonce exchange and session bookkeeping.
	SignMuSig2(ctx context.Context, participants []*btcec.PublicKey, coordinator *btcec.PublicKey, sighash chainhash.Hash) ([]byte, error)

	// SignWinternitz produces a one-time hash-chain signature over message
	// for the key identified by keyIndex, using the given hash type. The
	// key manager is responsible for refusing reuse of an exhausted key.
	SignWinternitz(ctx context.Context, keyIndex uint32, hashType WinternitzHashType, message []byte) ([]byte, error)
}
