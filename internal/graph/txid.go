package graph

import (
	"github.com/btcsuite/btcd/wire"
)

// materialize builds the wire-level transaction for tx. Every input's
// PrevTxid must already be resolved (§4.1 component 3 precondition).
// Witness data is intentionally never set here: a SegWit txid is computed
// over the non-witness serialization, so it is stable before signing.
func (p *Protocol) materialize(tx *Transaction) (*wire.MsgTx, error) {
	msg := wire.NewMsgTx(tx.Version)
	msg.LockTime = tx.LockTime

	for _, in := range tx.Inputs {
		if in.PrevTxid == nil {
			return nil, transactionError(ErrTransactionMissing, tx.Name)
		}
		outpoint := wire.NewOutPoint(in.PrevTxid, in.PrevVout)
		txIn := wire.NewTxIn(outpoint, nil, nil)
		txIn.Sequence = in.Sequence
		msg.AddTxIn(txIn)
	}

	for _, out := range tx.Outputs {
		pkScript, err := scriptPubKey(out.Type)
		if err != nil {
			return nil, transactionError(err, tx.Name)
		}
		msg.AddTxOut(wire.NewTxOut(out.Value, pkScript))
	}

	return msg, nil
}

// propagateTxids computes each transaction's txid in dependency order,
// copying a resolved parent txid onto every input that references it
// before computing the child's own (§4.1 component 3, §5 "Cyclic
// identifier dependency").
func (p *Protocol) propagateTxids(order []string) error {
	for _, name := range order {
		tx := p.txs[name]
		for _, in := range tx.Inputs {
			if in.PrevTx == "" {
				continue // external: PrevTxid was given at connection time
			}
			parent, ok := p.txs[in.PrevTx]
			if !ok || parent.Txid == nil {
				return transactionError(ErrTransactionMissing, in.PrevTx)
			}
			in.PrevTxid = parent.Txid
		}

		msg, err := p.materialize(tx)
		if err != nil {
			return err
		}
		hash := msg.TxHash()
		tx.Txid = &hash
	}
	return nil
}
