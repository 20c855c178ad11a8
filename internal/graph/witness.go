package graph

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SpendChoice disambiguates which script-path leaf a ScriptsSpend input
// should use at broadcast time, for inputs whose spend mode lists more
// than one candidate leaf. Inputs with a single candidate, or a
// SegwitSpend/KeyOnlySpend mode, need no choice.
type SpendChoice struct {
	Input     int
	LeafIndex int
}

// witnessScript returns the witness script a SegwitSpend input satisfies,
// for the producing output types that carry one.
func witnessScript(t OutputType) ([]byte, error) {
	switch v := t.(type) {
	case SegwitScriptOutput:
		return v.Script, nil
	case TimelockOutput:
		return buildTimelockScript(v.OwnerKey, v.RenewKey, v.Blocks)
	default:
		return nil, ErrInconsistentSpendChoice
	}
}

func withSighashByte(sig []byte, sighashType txscript.SigHashType) []byte {
	if sighashType == txscript.SigHashDefault {
		return sig
	}
	return append(append([]byte{}, sig...), byte(sighashType))
}

// TransactionToSend assembles the complete, broadcastable wire.MsgTx for
// txName (§4.1 component 6): one witness per input, built from its spend
// mode and the signatures Sign collected. choices resolves any
// ScriptsSpend input with more than one listed leaf; inputs that need no
// choice may be omitted.
func (p *Protocol) TransactionToSend(txName string, choices []SpendChoice) (*wire.MsgTx, error) {
	if err := p.requireBuilt(); err != nil {
		return nil, err
	}
	tx, err := p.Transaction(txName)
	if err != nil {
		return nil, err
	}

	chosen := make(map[int]int, len(choices))
	for _, c := range choices {
		chosen[c.Input] = c.LeafIndex
	}

	msg, err := p.materialize(tx)
	if err != nil {
		return nil, err
	}

	for i, in := range tx.Inputs {
		witness, err := p.assembleWitness(txName, i, in, chosen)
		if err != nil {
			return nil, err
		}
		msg.TxIn[i].Witness = witness
	}
	return msg, nil
}

func (p *Protocol) assembleWitness(txName string, inputIdx int, in *Input, chosen map[int]int) (wire.TxWitness, error) {
	switch mode := in.SpendMode.(type) {
	case SegwitSpend:
		variant := Variant{Kind: VariantSegwit}
		sig, ok := in.Signatures[variant]
		if mode.Sign.Mode != SignSkip && !ok {
			return nil, &MissingSignature{Tx: txName, Input: inputIdx, Variant: variant}
		}
		outType, ok := p.prevOutputType(in)
		if !ok {
			if in.PrevTx == "" && mode.Sign.Mode == SignSkip {
				// External input the graph never held signing key material
				// for: the caller supplies the real witness once they have
				// it, since only the spent output's scriptPubKey (not its
				// OutputType) is known here.
				return wire.TxWitness{}, nil
			}
			return nil, transactionError(ErrTransactionMissing, in.PrevTx)
		}
		if keyOut, isKey := outType.(SegwitKeyOutput); isKey {
			return wire.TxWitness{withSighashByte(sig, in.SighashType), keyOut.PubKey.SerializeCompressed()}, nil
		}
		script, err := witnessScript(outType)
		if err != nil {
			return nil, err
		}
		// A TimelockOutput with a RenewKey compiles to a two-branch
		// script (OP_IF renew OP_ELSE owner/CSV OP_ENDIF, matching the
		// teacher's HTLC claim/refund shape): the witness needs an extra
		// selector element choosing which branch OP_IF takes.
		var selector [][]byte
		if timelock, ok := outType.(TimelockOutput); ok && timelock.RenewKey != nil {
			if mode.TimelockRenewPath {
				selector = [][]byte{{0x01}}
			} else {
				selector = [][]byte{{}}
			}
		}
		w := wire.TxWitness{}
		if sig != nil {
			w = append(w, withSighashByte(sig, in.SighashType))
		}
		w = append(w, selector...)
		w = append(w, script)
		return w, nil

	case KeyOnlySpend:
		variant := Variant{Kind: VariantKeyPath}
		sig, ok := in.Signatures[variant]
		if mode.KeyPathSign.Mode != SignSkip && !ok {
			return nil, &MissingSignature{Tx: txName, Input: inputIdx, Variant: variant}
		}
		if sig == nil {
			return wire.TxWitness{}, nil
		}
		return wire.TxWitness{withSighashByte(sig, in.SighashType)}, nil

	case ScriptsSpend:
		leafIdx := mode.Leaves[0]
		if len(mode.Leaves) > 1 {
			chosenIdx, ok := chosen[inputIdx]
			if !ok {
				return nil, ErrInconsistentSpendChoice
			}
			leafIdx = chosenIdx
		}
		outType, ok := p.prevOutputType(in)
		if !ok {
			return nil, transactionError(ErrTransactionMissing, in.PrevTx)
		}
		taproot, ok := outType.(TaprootOutput)
		if !ok {
			return nil, transactionError(ErrOutputIndexOutOfRange, in.PrevTx)
		}
		tree, err := buildTaprootTree(taproot)
		if err != nil {
			return nil, err
		}
		if leafIdx < 0 || leafIdx >= len(taproot.Leaves) {
			return nil, transactionError(ErrOutputIndexOutOfRange, in.PrevTx)
		}
		leaf := taproot.Leaves[leafIdx]
		variant := Variant{Kind: VariantLeaf, LeafIndex: leafIdx}
		sig, ok := in.Signatures[variant]
		if leaf.Sign.Mode != SignSkip && !ok {
			return nil, &MissingSignature{Tx: txName, Input: inputIdx, Variant: variant}
		}

		witness := wire.TxWitness{}
		if sig != nil {
			witness = append(witness, withSighashByte(sig, in.SighashType))
		}
		witness = append(witness, leaf.Script, tree.controlBlocks[leafIdx])
		return witness, nil

	default:
		return nil, ErrInconsistentSpendChoice
	}
}
