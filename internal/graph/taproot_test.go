package graph

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
)

// TestTaprootScriptPathSingleLeafSpend builds a Taproot output with three
// leaves (Skip, Single, Aggregate) and spends only leaf 1: the built
// protocol must carry exactly one sighash (ext_flag=1, leaf 1), signing must
// produce exactly one Schnorr-shaped signature, and the assembled witness
// must be [sig, script, control_block].
func TestTaprootScriptPathSingleLeafSpend(t *testing.T) {
	p := NewProtocol("taproot-script-path", testKeyManager{})
	if err := p.AddTransaction("parent"); err != nil {
		t.Fatalf("add parent: %v", err)
	}
	if err := p.AddTransaction("child"); err != nil {
		t.Fatalf("add child: %v", err)
	}

	extTxid := newExternalTxid(t)
	if err := p.ConnectExternal("fund", extTxid, 0, 100000, []byte{0x51, 0x20}, "parent",
		AutoInput(txscript.SigHashAll, SegwitSpend{Sign: SignSpec{Mode: SignSkip}})); err != nil {
		t.Fatalf("connect external: %v", err)
	}

	internalKey := newTestKey(t)
	leaves := []TapLeaf{
		{Script: []byte{txscript.OP_TRUE}, Sign: SignSpec{Mode: SignSkip}},
		{Script: []byte{txscript.OP_TRUE, txscript.OP_DROP, txscript.OP_TRUE}, Sign: SignSpec{Mode: SignSingle, KeyIndex: 1}},
		{Script: []byte{txscript.OP_TRUE, txscript.OP_TRUE, txscript.OP_DROP}, Sign: SignSpec{
			Mode:         SignAggregate,
			Participants: []*btcec.PublicKey{newTestKey(t), newTestKey(t)},
		}},
	}
	out := TaprootOutput{InternalKey: internalKey, Leaves: leaves}
	spend := ScriptsSpend{Leaves: []int{1}}
	if err := p.AddConnection("parent-to-child", "parent", AutoOutput(out), "child",
		AutoInput(txscript.SigHashDefault, spend)); err != nil {
		t.Fatalf("connect parent->child: %v", err)
	}
	if _, err := p.AddOutput("child", SegwitKeyOutput{PubKey: newTestKey(t)}, RecoverAmount); err != nil {
		t.Fatalf("add child output: %v", err)
	}

	if err := p.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}

	childTx, err := p.Transaction("child")
	if err != nil {
		t.Fatalf("lookup child: %v", err)
	}
	in := childTx.Inputs[0]
	if len(in.Sighashes) != 1 {
		t.Fatalf("sighash count = %d, want 1", len(in.Sighashes))
	}
	wantVariant := Variant{Kind: VariantLeaf, LeafIndex: 1}
	if _, ok := in.Sighashes[wantVariant]; !ok {
		t.Fatalf("missing sighash for %v; have %v", wantVariant, in.Sighashes)
	}

	if err := p.Sign(context.Background()); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(in.Signatures) != 1 {
		t.Fatalf("signature count = %d, want 1", len(in.Signatures))
	}
	sig, ok := in.Signatures[wantVariant]
	if !ok {
		t.Fatalf("missing signature for %v", wantVariant)
	}
	if len(sig) != 64 {
		t.Fatalf("schnorr-shaped signature length = %d, want 64", len(sig))
	}

	msg, err := p.TransactionToSend("child", nil)
	if err != nil {
		t.Fatalf("transaction_to_send: %v", err)
	}
	witness := msg.TxIn[0].Witness
	if len(witness) != 3 {
		t.Fatalf("witness has %d elements, want 3 ([sig, script, control_block])", len(witness))
	}
	if string(witness[1]) != string(leaves[1].Script) {
		t.Fatalf("witness script mismatch")
	}
}
