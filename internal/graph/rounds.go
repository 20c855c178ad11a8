package graph

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
)

// RoundSpec parameterizes one side of one round of a challenge/response
// chain built by AddRounds: the Taproot output the round's transaction
// exposes, and which of its leaves the next hop in the chain spends.
type RoundSpec struct {
	InternalKey *btcec.PublicKey
	Leaves      []TapLeaf
	SpendLeaves []int
	SighashType txscript.SigHashType
}

// AddRounds synthesizes the n-round challenge/response sub-graph described
// in §4.1: transactions named "<aPrefix>_0, <bPrefix>_0, ..., <aPrefix>_{n-1},
// <bPrefix>_{n-1}" and the edges a_i -> b_i (forward, n of them) and
// b_i -> a_{i+1} (reverse, n-1 of them) that keep the flow connected as it
// alternates. specsA must have length n (one per a_i's output, consumed by
// the forward edge); specsB must have length n-1 (one per b_i's output,
// consumed by the reverse edge; b_{n-1} has no reverse successor).
//
// Returns the synthesized a-side names, b-side names, and connection names
// in creation order.
func (p *Protocol) AddRounds(n int, aPrefix, bPrefix string, specsA, specsB []RoundSpec) (aNames, bNames, connNames []string, err error) {
	if n <= 0 {
		return nil, nil, nil, fmt.Errorf("graph: add_rounds requires n > 0, got %d", n)
	}
	if len(specsA) != n {
		return nil, nil, nil, fmt.Errorf("graph: add_rounds requires len(specsA) == n (%d), got %d", n, len(specsA))
	}
	if len(specsB) != n-1 {
		return nil, nil, nil, fmt.Errorf("graph: add_rounds requires len(specsB) == n-1 (%d), got %d", n-1, len(specsB))
	}

	for i := 0; i < n; i++ {
		aName := TxName(aPrefix, i)
		bName := TxName(bPrefix, i)
		if err := p.AddTransaction(aName); err != nil {
			return nil, nil, nil, err
		}
		if err := p.AddTransaction(bName); err != nil {
			return nil, nil, nil, err
		}
		aNames = append(aNames, aName)
		bNames = append(bNames, bName)
	}

	for i := 0; i < n; i++ {
		aName, bName := aNames[i], bNames[i]
		spec := specsA[i]
		connName := fmt.Sprintf("%s_%s_%d", aPrefix, bPrefix, i)
		out := TaprootOutput{InternalKey: spec.InternalKey, Leaves: spec.Leaves}
		in := ScriptsSpend{Leaves: spec.SpendLeaves}
		if err := p.AddConnection(connName, aName, AutoOutput(out), bName, AutoInput(spec.SighashType, in)); err != nil {
			return nil, nil, nil, err
		}
		connNames = append(connNames, connName)

		if i < n-1 {
			spec := specsB[i]
			nextA := aNames[i+1]
			revName := fmt.Sprintf("%s_%s_%d", bPrefix, aPrefix, i)
			out := TaprootOutput{InternalKey: spec.InternalKey, Leaves: spec.Leaves}
			in := ScriptsSpend{Leaves: spec.SpendLeaves}
			if err := p.AddConnection(revName, bName, AutoOutput(out), nextA, AutoInput(spec.SighashType, in)); err != nil {
				return nil, nil, nil, err
			}
			connNames = append(connNames, revName)
		}
	}

	return aNames, bNames, connNames, nil
}
