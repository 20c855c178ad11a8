package graph

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
)

// Helper patterns (§4.1): sugar over the primitive builder calls. Each is
// behaviorally equivalent to direct use of AddOutput/AddInput/AddConnection
// and shares their validation — none of these introduce new mechanism.

// AddTaprootScriptConnection wires a Taproot output with the given leaves
// on fromTx to a script-path spend on toTx, consuming the leaves at
// spendLeaves.
func (p *Protocol) AddTaprootScriptConnection(
	connName, fromTx string,
	internalKey *btcec.PublicKey,
	leaves []TapLeaf,
	toTx string,
	spendLeaves []int,
	sighashType txscript.SigHashType,
) error {
	out := AutoOutput(TaprootOutput{InternalKey: internalKey, Leaves: leaves})
	in := AutoInput(sighashType, ScriptsSpend{Leaves: spendLeaves})
	return p.AddConnection(connName, fromTx, out, toTx, in)
}

// AddKeyPathConnection wires a Taproot output to a key-path spend on toTx.
func (p *Protocol) AddKeyPathConnection(
	connName, fromTx string,
	internalKey *btcec.PublicKey,
	leaves []TapLeaf,
	toTx string,
	keyPathSign SignSpec,
	sighashType txscript.SigHashType,
) error {
	out := AutoOutput(TaprootOutput{InternalKey: internalKey, Leaves: leaves})
	in := AutoInput(sighashType, KeyOnlySpend{KeyPathSign: keyPathSign})
	return p.AddConnection(connName, fromTx, out, toTx, in)
}

// AddSegwitKeyConnection wires a P2WPKH-style output on fromTx to a SegWit
// v0 spend on toTx.
func (p *Protocol) AddSegwitKeyConnection(
	connName, fromTx string,
	pubKey *btcec.PublicKey,
	toTx string,
	sign SignSpec,
	sighashType txscript.SigHashType,
) error {
	out := AutoOutput(SegwitKeyOutput{PubKey: pubKey})
	in := AutoInput(sighashType, SegwitSpend{Sign: sign})
	return p.AddConnection(connName, fromTx, out, toTx, in)
}

// AddTimelockConnection wires a CSV-timelocked output on fromTx to a
// SegWit v0 script-spend of its refund branch on toTx. The consuming
// input's sequence is set to blocks (BIP-68 block-height form, relative
// locktime enabled) so OP_CHECKSEQUENCEVERIFY in the timelock script is
// satisfiable — the max-sequence AddConnection's Auto input path sets
// would disable BIP-68
// entirely and make the CSV branch unspendable.
func (p *Protocol) AddTimelockConnection(
	connName, fromTx string,
	blocks uint32,
	ownerKey, renewKey *btcec.PublicKey,
	toTx string,
	sign SignSpec,
	sighashType txscript.SigHashType,
) error {
	out := AutoOutput(TimelockOutput{Blocks: blocks, OwnerKey: ownerKey, RenewKey: renewKey})
	in := AutoInput(sighashType, SegwitSpend{Sign: sign})
	if err := p.AddConnection(connName, fromTx, out, toTx, in); err != nil {
		return err
	}
	return p.setSequenceOverride(p.connections[connName], blocks)
}

// AddSpeedupOutput appends a CPFP anchor output to tx, for later
// consumption by a speedup child built with BuildSpeedupTx.
func (p *Protocol) AddSpeedupOutput(tx string, pubKey *btcec.PublicKey) (int, error) {
	return p.AddOutput(tx, SpeedupOutput{PubKey: pubKey}, AutoAmount)
}
