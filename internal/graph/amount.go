package graph

import "fmt"

// resolveAmounts runs the two-pass back-fill described in §4.1 component 2
// and §4.3, over transactions in dependency order (ancestors before
// descendants, so every input's contribution is already resolved by the
// time its consuming transaction is processed). External inputs carry a
// caller-declared value (§6, see PrevTxid/ConnectExternal) and count toward
// available funds exactly like an internal one.
func (p *Protocol) resolveAmounts(order []string) error {
	if err := p.resolveAutoAmounts(order); err != nil {
		return err
	}
	if err := p.resolveRecoverAmounts(order); err != nil {
		return err
	}
	return p.checkNoSentinelsRemain(order)
}

func (p *Protocol) resolveAutoAmounts(order []string) error {
	for _, name := range order {
		tx := p.txs[name]

		recoverCount := 0
		for _, out := range tx.Outputs {
			if out.Value == RecoverAmount {
				recoverCount++
			}
		}
		if recoverCount > 1 {
			return transactionError(ErrMultipleRecoverOutputs, name)
		}

		reserved := int64(0)
		for _, out := range tx.Outputs {
			if out.Value != AutoAmount && out.Value != RecoverAmount {
				reserved += out.Value
			}
		}

		inputSum := p.resolvedInputSum(tx)

		for idx, out := range tx.Outputs {
			if out.Value != AutoAmount {
				continue
			}
			if out.consumedByTx == "" {
				return fmt.Errorf("graph: auto-amount output %d on %s has no consumer", idx, name)
			}
			consumer, ok := p.txs[out.consumedByTx]
			if !ok {
				return transactionError(ErrTransactionMissing, out.consumedByTx)
			}
			fee := requiredFee(p.txVSize(consumer))

			available := inputSum - reserved
			if fee > available {
				return &AutoAmountUnderflow{Tx: name, Output: idx, Required: fee, Available: available}
			}

			out.Value = fee
			reserved += fee
		}
	}
	return nil
}

func (p *Protocol) resolveRecoverAmounts(order []string) error {
	for _, name := range order {
		tx := p.txs[name]
		for idx, out := range tx.Outputs {
			if out.Value != RecoverAmount {
				continue
			}

			inputSum := p.resolvedInputSum(tx)
			var reserved int64
			for j, other := range tx.Outputs {
				if j == idx {
					continue
				}
				reserved += other.Value
			}
			ownFee := requiredFee(p.txVSize(tx))
			recovered := inputSum - reserved - ownFee

			if recovered < 0 {
				return &AutoAmountUnderflow{Tx: name, Output: idx, Required: reserved + ownFee, Available: inputSum}
			}
			out.Value = recovered
		}
	}
	return nil
}

func (p *Protocol) checkNoSentinelsRemain(order []string) error {
	for _, name := range order {
		tx := p.txs[name]
		for idx, out := range tx.Outputs {
			if out.Value == AutoAmount || out.Value == RecoverAmount {
				return fmt.Errorf("%w: %s output %d", ErrUnresolvedSentinel, name, idx)
			}
		}
	}
	return nil
}

// resolvedInputSum sums the value of every input of tx, internal (must
// already be resolved by dependency order) or external (caller-declared).
func (p *Protocol) resolvedInputSum(tx *Transaction) int64 {
	var sum int64
	for _, in := range tx.Inputs {
		if in.PrevTx == "" {
			if ext, ok := p.externals[externalOutpointKey(in.PrevTxid, in.PrevVout)]; ok {
				sum += ext.value
			}
			continue
		}
		prevTx, ok := p.txs[in.PrevTx]
		if !ok || int(in.PrevVout) >= len(prevTx.Outputs) {
			continue
		}
		sum += prevTx.Outputs[in.PrevVout].Value
	}
	return sum
}
