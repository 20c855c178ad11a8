package graph

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// taprootTree is the assembled script tree for a TaprootOutput: the
// tweaked output key plus, per leaf, the control block needed to spend it.
type taprootTree struct {
	outputKey     *btcec.PublicKey
	controlBlocks [][]byte // indexed the same as the TaprootOutput's Leaves
}

// buildTaprootTree assembles out's leaves (if any) into a script tree and
// tweaks the internal key with its root, matching BuildTaprootScriptTree's
// approach generalized to an arbitrary leaf count.
func buildTaprootTree(out TaprootOutput) (*taprootTree, error) {
	if out.InternalKey == nil {
		return nil, fmt.Errorf("graph: taproot output requires an internal key")
	}
	if len(out.Leaves) == 0 {
		return &taprootTree{outputKey: txscript.ComputeTaprootKeyNoScript(out.InternalKey)}, nil
	}

	leaves := make([]txscript.TapLeaf, len(out.Leaves))
	for i, l := range out.Leaves {
		version := l.LeafVersion
		if version == 0 {
			version = txscript.BaseLeafVersion
		}
		leaves[i] = txscript.NewTapLeaf(version, l.Script)
	}
	tree := txscript.AssembleTaprootScriptTree(leaves...)
	merkleRoot := tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(out.InternalKey, merkleRoot[:])

	controlBlocks := make([][]byte, len(out.Leaves))
	for i := range out.Leaves {
		cb := tree.LeafMerkleProofs[i].ToControlBlock(out.InternalKey)
		raw, err := cb.ToBytes()
		if err != nil {
			return nil, fmt.Errorf("graph: control block for leaf %d: %w", i, err)
		}
		controlBlocks[i] = raw
	}
	return &taprootTree{outputKey: outputKey, controlBlocks: controlBlocks}, nil
}

// buildTimelockScript is the witness script for a TimelockOutput. With no
// RenewKey it is the single CSV-refund branch: <blocks>
// OP_CHECKSEQUENCEVERIFY OP_DROP <owner> OP_CHECKSIG. With a RenewKey it
// becomes the two-branch form the teacher's own HTLC script uses (claim
// branch / timeout branch), renewal taking the OP_IF slot and the CSV
// refund taking OP_ELSE:
//
//	OP_IF <renew> OP_CHECKSIG
//	OP_ELSE <blocks> OP_CHECKSEQUENCEVERIFY OP_DROP <owner> OP_CHECKSIG
//	OP_ENDIF
//
// Pubkeys are serialized compressed (33 bytes): this is a legacy-style
// OP_CHECKSIG inside a P2WSH script, verified against an ECDSA signature,
// not a Taproot x-only key.
func buildTimelockScript(owner, renew *btcec.PublicKey, blocks uint32) ([]byte, error) {
	if owner == nil {
		return nil, fmt.Errorf("graph: timelock output requires an owner key")
	}
	if blocks == 0 || blocks > 0xffff {
		return nil, fmt.Errorf("graph: timelock blocks out of range: %d", blocks)
	}
	b := txscript.NewScriptBuilder()
	if renew != nil {
		b.AddOp(txscript.OP_IF)
		b.AddData(renew.SerializeCompressed())
		b.AddOp(txscript.OP_CHECKSIG)
		b.AddOp(txscript.OP_ELSE)
	}
	b.AddInt64(int64(blocks))
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(owner.SerializeCompressed())
	b.AddOp(txscript.OP_CHECKSIG)
	if renew != nil {
		b.AddOp(txscript.OP_ENDIF)
	}
	return b.Script()
}

func p2trScript(outputKey *btcec.PublicKey) []byte {
	xOnly := schnorr.SerializePubKey(outputKey)
	script := make([]byte, 34)
	script[0] = txscript.OP_1
	script[1] = txscript.OP_DATA_32
	copy(script[2:], xOnly)
	return script
}

func p2wshScript(witnessScript []byte) []byte {
	hash := sha256.Sum256(witnessScript)
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_0)
	b.AddData(hash[:])
	script, _ := b.Script()
	return script
}

// scriptPubKey derives the output script for any OutputType in the closed
// set (§4.2).
func scriptPubKey(t OutputType) ([]byte, error) {
	switch v := t.(type) {
	case SegwitKeyOutput:
		if v.PubKey == nil {
			return nil, fmt.Errorf("graph: segwit key output requires a public key")
		}
		pkHash := btcutil.Hash160(v.PubKey.SerializeCompressed())
		b := txscript.NewScriptBuilder()
		b.AddOp(txscript.OP_0)
		b.AddData(pkHash)
		return b.Script()
	case SegwitScriptOutput:
		return p2wshScript(v.Script), nil
	case TaprootOutput:
		tree, err := buildTaprootTree(v)
		if err != nil {
			return nil, err
		}
		return p2trScript(tree.outputKey), nil
	case TimelockOutput:
		script, err := buildTimelockScript(v.OwnerKey, v.RenewKey, v.Blocks)
		if err != nil {
			return nil, err
		}
		return p2wshScript(script), nil
	case SpeedupOutput:
		if v.PubKey == nil {
			return nil, fmt.Errorf("graph: speedup output requires a public key")
		}
		return p2trScript(v.PubKey), nil
	case OpReturnOutput:
		b := txscript.NewScriptBuilder()
		b.AddOp(txscript.OP_RETURN)
		if len(v.Data) > 0 {
			b.AddData(v.Data)
		}
		return b.Script()
	default:
		return nil, fmt.Errorf("graph: unknown output type %T", t)
	}
}
