package graph

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// p2wpkhScriptCode is the implied scriptCode a BIP-143 sighash uses when
// spending a P2WPKH output: the P2PKH-equivalent script, never the
// output's actual (shorter) scriptPubKey.
func p2wpkhScriptCode(pubKeyHash []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(pubKeyHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

func isP2WPKH(script []byte) bool {
	return len(script) == 22 && script[0] == txscript.OP_0 && script[1] == txscript.OP_DATA_20
}

// segwitScriptCode resolves the BIP-143 scriptCode for a SegwitSpend
// input: for P2WPKH the implied P2PKH-equivalent script, for P2WSH the
// actual witness script (never the scriptPubKey's hash of it — scriptCode
// is the preimage, per BIP-141). When the previous output is internal its
// OutputType resolves this directly; an external input only carries the
// scriptPubKey the caller supplied (§6), so anything that isn't
// recognizably P2WPKH is assumed to already be the intended scriptCode.
func (p *Protocol) segwitScriptCode(in *Input, pkScript []byte) ([]byte, error) {
	if isP2WPKH(pkScript) {
		return p2wpkhScriptCode(pkScript[2:])
	}
	if outType, ok := p.prevOutputType(in); ok {
		if real, err := witnessScript(outType); err == nil {
			return real, nil
		}
	}
	return pkScript, nil
}

// prevOut resolves the value and scriptPubKey of whatever in spends,
// internal or external.
func (p *Protocol) prevOut(in *Input) (value int64, script []byte, err error) {
	if in.PrevTx == "" {
		ext, ok := p.externals[externalOutpointKey(in.PrevTxid, in.PrevVout)]
		if !ok {
			return 0, nil, transactionError(ErrTransactionMissing, in.PrevTxid.String())
		}
		return ext.value, ext.script, nil
	}
	parent, ok := p.txs[in.PrevTx]
	if !ok || int(in.PrevVout) >= len(parent.Outputs) {
		return 0, nil, transactionError(ErrOutputIndexOutOfRange, in.PrevTx)
	}
	out := parent.Outputs[in.PrevVout]
	script, err = scriptPubKey(out.Type)
	if err != nil {
		return 0, nil, err
	}
	return out.Value, script, nil
}

// prevOutputFetcher builds a txscript.PrevOutputFetcher covering every
// input of tx, required because BIP-341 sighashes (absent ANYONECANPAY)
// commit to the amounts and scripts of every other input too.
func (p *Protocol) prevOutputFetcher(tx *Transaction, msg *wire.MsgTx) (txscript.PrevOutputFetcher, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range tx.Inputs {
		value, script, err := p.prevOut(in)
		if err != nil {
			return nil, err
		}
		fetcher.AddPrevOut(msg.TxIn[i].PreviousOutPoint, wire.NewTxOut(value, script))
	}
	return fetcher, nil
}

// deriveSighashes computes every sighash a transaction's inputs need, one
// per (input, variant) per §4.1 component 4: BIP-143 for SegwitSpend,
// BIP-341 ext_flag=0 for KeyOnlySpend, BIP-341 ext_flag=1 (one per leaf)
// for ScriptsSpend.
func (p *Protocol) deriveSighashes(tx *Transaction) error {
	msg, err := p.materialize(tx)
	if err != nil {
		return err
	}
	fetcher, err := p.prevOutputFetcher(tx, msg)
	if err != nil {
		return err
	}
	hashCache := txscript.NewTxSigHashes(msg, fetcher)

	for i, in := range tx.Inputs {
		in.Sighashes = make(map[Variant]*chainhash.Hash)
		value, script, err := p.prevOut(in)
		if err != nil {
			return err
		}

		switch mode := in.SpendMode.(type) {
		case SegwitSpend:
			scriptCode, err := p.segwitScriptCode(in, script)
			if err != nil {
				return err
			}
			sh, err := txscript.CalcWitnessSigHash(scriptCode, hashCache, in.SighashType, msg, i, value)
			if err != nil {
				return err
			}
			hash, err := chainhash.NewHash(sh)
			if err != nil {
				return err
			}
			in.Sighashes[Variant{Kind: VariantSegwit}] = hash

		case KeyOnlySpend:
			sh, err := txscript.CalcTaprootSignatureHash(hashCache, in.SighashType, msg, i, fetcher)
			if err != nil {
				return err
			}
			hash, err := chainhash.NewHash(sh)
			if err != nil {
				return err
			}
			in.Sighashes[Variant{Kind: VariantKeyPath}] = hash

		case ScriptsSpend:
			outType, ok := p.prevOutputType(in)
			if !ok {
				return transactionError(ErrTransactionMissing, in.PrevTx)
			}
			taproot, ok := outType.(TaprootOutput)
			if !ok {
				return transactionError(ErrOutputIndexOutOfRange, in.PrevTx)
			}
			for _, leafIdx := range mode.Leaves {
				if leafIdx < 0 || leafIdx >= len(taproot.Leaves) {
					return transactionError(ErrOutputIndexOutOfRange, in.PrevTx)
				}
				leafSpec := taproot.Leaves[leafIdx]
				version := leafSpec.LeafVersion
				if version == 0 {
					version = txscript.BaseLeafVersion
				}
				leaf := txscript.NewTapLeaf(version, leafSpec.Script)
				sh, err := txscript.CalcTapscriptSignaturehash(hashCache, in.SighashType, msg, i, fetcher, leaf)
				if err != nil {
					return err
				}
				hash, err := chainhash.NewHash(sh)
				if err != nil {
					return err
				}
				in.Sighashes[Variant{Kind: VariantLeaf, LeafIndex: leafIdx}] = hash
			}
		}
	}
	return nil
}
