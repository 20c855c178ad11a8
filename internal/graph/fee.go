package graph

// Size-aware virtual-byte-weight estimator (§4.1 component 1, §4.3).
//
// Constants are approximations of standard Bitcoin Core serialized sizes,
// discounted for witness data per BIP-141 (witness bytes count 1/4 toward
// vsize). They are deliberately coarse: the amount resolver only needs a
// value that is *sufficient*, not byte-exact, and the 5% safety buffer
// applied on top absorbs the slack.
const (
	txOverheadVSize    int64 = 10 // version + locktime + in/out counts, segwit marker amortized
	inputOverheadVSize int64 = 41 // outpoint (36) + sequence (4) + empty scriptSig (1)

	segwitWitnessVSize        int64 = 27 // ECDSA sig (~72) + pubkey (33), witness-discounted
	taprootKeyPathWitnessVSize int64 = 16 // one 64-byte Schnorr signature, witness-discounted
	defaultLeafWitnessVSize   int64 = 20 // fallback when a script-path leaf's byte size is unknown (external previous output)

	segwitKeyOutputVSize    int64 = 31 // 8 (value) + 1 (len) + 22 (P2WPKH script)
	segwitScriptOutputVSize int64 = 43 // 8 + 1 + 34 (P2WSH script)
	taprootOutputVSize      int64 = 43 // 8 + 1 + 34 (P2TR script)
	timelockOutputVSize     int64 = 43 // modeled as a P2WSH output
	speedupOutputVSize      int64 = 43 // modeled as a P2TR anchor
	opReturnOutputBaseVSize int64 = 11 // 8 + 1 + OP_RETURN + pushdata opcode

	autoAmountFeeRateSatPerVByte int64 = 1
	autoAmountSafetyBufferPctNum int64 = 5
	autoAmountSafetyBufferPctDen int64 = 100
)

// requiredFee applies the fixed 1 sat/vB rate plus a 5% safety buffer,
// rounded up (§4.3).
func requiredFee(vsize int64) int64 {
	raw := vsize * autoAmountFeeRateSatPerVByte
	buffer := ceilDiv(raw*autoAmountSafetyBufferPctNum, autoAmountSafetyBufferPctDen)
	return raw + buffer
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// leafWitnessVSize estimates the witness-discounted vsize of spending one
// Taproot script-path leaf: the leaf script plus a control block, plus the
// signature its SignMode requires.
func leafWitnessVSize(leaf TapLeaf) int64 {
	rawBytes := int64(len(leaf.Script)) + 33 // control block: leaf version/parity + internal key, ignoring merkle path depth
	discounted := ceilDiv(rawBytes, 4)

	var sig int64
	switch leaf.Sign.Mode {
	case SignSingle, SignAggregate:
		sig = taprootKeyPathWitnessVSize
	case SignWinternitz:
		sig = winternitzWitnessVSize(leaf.Sign)
	case SignSkip:
		sig = 0
	}
	return discounted + sig
}

// winternitzWitnessVSize estimates the witness-discounted vsize of a
// Winternitz one-time signature over a MessageLen-byte message: one
// 32-byte hash preimage per message byte, the standard w=256 encoding.
func winternitzWitnessVSize(spec SignSpec) int64 {
	n := spec.MessageLen
	if n <= 0 {
		n = 32
	}
	return ceilDiv(int64(n)*32, 4)
}

// prevOutputType looks up the OutputType of the output an internal input
// spends, if resolvable from the graph (external inputs have none).
func (p *Protocol) prevOutputType(in *Input) (OutputType, bool) {
	if in.PrevTx == "" {
		return nil, false
	}
	tx, ok := p.txs[in.PrevTx]
	if !ok || int(in.PrevVout) >= len(tx.Outputs) {
		return nil, false
	}
	return tx.Outputs[in.PrevVout].Type, true
}

func (p *Protocol) inputVSize(in *Input) int64 {
	switch mode := in.SpendMode.(type) {
	case SegwitSpend:
		return inputOverheadVSize + segwitWitnessVSize
	case KeyOnlySpend:
		return inputOverheadVSize + taprootKeyPathWitnessVSize
	case ScriptsSpend:
		total := inputOverheadVSize
		outType, ok := p.prevOutputType(in)
		var leaves []TapLeaf
		if ok {
			if tr, isTaproot := outType.(TaprootOutput); isTaproot {
				leaves = tr.Leaves
			}
		}
		for _, idx := range mode.Leaves {
			if leaves != nil && idx >= 0 && idx < len(leaves) {
				total += leafWitnessVSize(leaves[idx])
			} else {
				total += defaultLeafWitnessVSize
			}
		}
		return total
	default:
		return inputOverheadVSize
	}
}

func outputVSize(o *Output) int64 {
	switch t := o.Type.(type) {
	case SegwitKeyOutput:
		return segwitKeyOutputVSize
	case SegwitScriptOutput:
		return segwitScriptOutputVSize
	case TaprootOutput:
		return taprootOutputVSize
	case TimelockOutput:
		return timelockOutputVSize
	case SpeedupOutput:
		return speedupOutputVSize
	case OpReturnOutput:
		return opReturnOutputBaseVSize + int64(len(t.Data))
	default:
		return 0
	}
}

// txVSize estimates the total virtual size of tx from its input spend
// modes and output set, per §4.3.
func (p *Protocol) txVSize(tx *Transaction) int64 {
	total := txOverheadVSize
	for _, in := range tx.Inputs {
		total += p.inputVSize(in)
	}
	for _, out := range tx.Outputs {
		total += outputVSize(out)
	}
	return total
}
