package graph

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// AnchorInput names one UTXO the CPFP speedup builder spends: a parent's
// speedup output, or the separate funding UTXO, neither of which need
// exist inside this protocol's own graph. Type lets the builder re-derive
// the correct scriptPubKey and witness shape the same way it would for a
// graph-native output.
type AnchorInput struct {
	TxID        chainhash.Hash
	Vout        uint32
	Value       int64
	Type        OutputType
	SpendMode   SpendMode
	SighashType txscript.SigHashType
	// LeafIndex selects which leaf to use when SpendMode is ScriptsSpend
	// and Type is a TaprootOutput with more than one leaf.
	LeafIndex int
}

// BuildSpeedupTx constructs, signs, and assembles the CPFP child described
// in §4.8: it consumes every speedup UTXO plus the separate funding UTXO,
// pays the remainder to changeKey, and charges exactly fee satoshis total.
// Unlike the graph's Build/Sign pipeline this runs standalone and returns a
// fully signed transaction in one call, since a CPFP child is a one-off
// reaction to a stuck parent rather than part of the pre-built DAG.
func (p *Protocol) BuildSpeedupTx(ctx context.Context, speedups []AnchorInput, funding AnchorInput, changeKey *btcec.PublicKey, fee int64) (*wire.MsgTx, error) {
	if p.keyManager == nil {
		return nil, ErrMissingSigningKey
	}
	if fee < 0 {
		return nil, fmt.Errorf("graph: speedup fee must be non-negative, got %d", fee)
	}

	inputs := make([]AnchorInput, 0, len(speedups)+1)
	inputs = append(inputs, speedups...)
	inputs = append(inputs, funding)

	var totalIn int64
	for _, in := range inputs {
		totalIn += in.Value
	}
	change := totalIn - fee
	if change < 0 {
		return nil, &AutoAmountUnderflow{Tx: "speedup", Output: 0, Required: fee, Available: totalIn}
	}

	changeScript, err := scriptPubKey(TaprootOutput{InternalKey: changeKey})
	if err != nil {
		return nil, err
	}

	msg := wire.NewMsgTx(2)
	for _, in := range inputs {
		outpoint := wire.NewOutPoint(&in.TxID, in.Vout)
		txIn := wire.NewTxIn(outpoint, nil, nil)
		txIn.Sequence = wire.MaxTxInSequenceNum
		msg.AddTxIn(txIn)
	}
	msg.AddTxOut(wire.NewTxOut(change, changeScript))

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range inputs {
		script, err := scriptPubKey(in.Type)
		if err != nil {
			return nil, err
		}
		fetcher.AddPrevOut(msg.TxIn[i].PreviousOutPoint, wire.NewTxOut(in.Value, script))
	}
	hashCache := txscript.NewTxSigHashes(msg, fetcher)

	for i, in := range inputs {
		witness, err := p.signAnchorInput(ctx, msg, i, in, fetcher, hashCache)
		if err != nil {
			return nil, err
		}
		msg.TxIn[i].Witness = witness
	}

	return msg, nil
}

func (p *Protocol) signAnchorInput(ctx context.Context, msg *wire.MsgTx, idx int, in AnchorInput, fetcher txscript.PrevOutputFetcher, hashCache *txscript.TxSigHashes) (wire.TxWitness, error) {
	switch mode := in.SpendMode.(type) {
	case SegwitSpend:
		script, err := scriptPubKey(in.Type)
		if err != nil {
			return nil, err
		}
		scriptCode := script
		if isP2WPKH(script) {
			scriptCode, err = p2wpkhScriptCode(script[2:])
			if err != nil {
				return nil, err
			}
		} else if real, werr := witnessScript(in.Type); werr == nil {
			// P2WSH-shaped anchor: scriptCode is the witness script
			// itself, never the scriptPubKey's hash of it.
			scriptCode = real
		}
		sh, err := txscript.CalcWitnessSigHash(scriptCode, hashCache, in.SighashType, msg, idx, in.Value)
		if err != nil {
			return nil, err
		}
		hash, err := chainhash.NewHash(sh)
		if err != nil {
			return nil, err
		}
		sig, err := p.signSpec(ctx, mode.Sign, schemeECDSA, hash)
		if err != nil {
			return nil, &SigningFailed{Tx: "speedup", Input: idx, Variant: Variant{Kind: VariantSegwit}, Cause: err}
		}
		if keyOut, ok := in.Type.(SegwitKeyOutput); ok {
			return wire.TxWitness{withSighashByte(sig, in.SighashType), keyOut.PubKey.SerializeCompressed()}, nil
		}
		wscript, err := witnessScript(in.Type)
		if err != nil {
			return nil, err
		}
		w := wire.TxWitness{withSighashByte(sig, in.SighashType)}
		if timelock, ok := in.Type.(TimelockOutput); ok && timelock.RenewKey != nil {
			if mode.TimelockRenewPath {
				w = append(w, []byte{0x01})
			} else {
				w = append(w, []byte{})
			}
		}
		return append(w, wscript), nil

	case KeyOnlySpend:
		sh, err := txscript.CalcTaprootSignatureHash(hashCache, in.SighashType, msg, idx, fetcher)
		if err != nil {
			return nil, err
		}
		hash, err := chainhash.NewHash(sh)
		if err != nil {
			return nil, err
		}
		sig, err := p.signSpec(ctx, mode.KeyPathSign, schemeTaproot, hash)
		if err != nil {
			return nil, &SigningFailed{Tx: "speedup", Input: idx, Variant: Variant{Kind: VariantKeyPath}, Cause: err}
		}
		return wire.TxWitness{withSighashByte(sig, in.SighashType)}, nil

	case ScriptsSpend:
		taproot, ok := in.Type.(TaprootOutput)
		if !ok || in.LeafIndex < 0 || in.LeafIndex >= len(taproot.Leaves) {
			return nil, ErrInconsistentSpendChoice
		}
		tree, err := buildTaprootTree(taproot)
		if err != nil {
			return nil, err
		}
		leaf := taproot.Leaves[in.LeafIndex]
		version := leaf.LeafVersion
		if version == 0 {
			version = txscript.BaseLeafVersion
		}
		tapLeaf := txscript.NewTapLeaf(version, leaf.Script)
		sh, err := txscript.CalcTapscriptSignaturehash(hashCache, in.SighashType, msg, idx, fetcher, tapLeaf)
		if err != nil {
			return nil, err
		}
		hash, err := chainhash.NewHash(sh)
		if err != nil {
			return nil, err
		}
		variant := Variant{Kind: VariantLeaf, LeafIndex: in.LeafIndex}
		sig, err := p.signSpec(ctx, leaf.Sign, schemeTaproot, hash)
		if err != nil {
			return nil, &SigningFailed{Tx: "speedup", Input: idx, Variant: variant, Cause: err}
		}
		witness := wire.TxWitness{}
		if sig != nil {
			witness = append(witness, withSighashByte(sig, in.SighashType))
		}
		witness = append(witness, leaf.Script, tree.controlBlocks[in.LeafIndex])
		return witness, nil

	default:
		return nil, ErrInconsistentSpendChoice
	}
}
