package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/txscript"
)

func TestTransactionToSendMissingSignature(t *testing.T) {
	p := simpleTwoTxProtocol(t)
	if err := p.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	// Built but never Signed: "b"'s input requires a signature it doesn't
	// have yet.
	_, err := p.TransactionToSend("b", nil)
	var missing *MissingSignature
	if !errors.As(err, &missing) {
		t.Fatalf("transaction_to_send before sign = %v, want *MissingSignature", err)
	}
}

func TestTransactionToSendRequiresBuilt(t *testing.T) {
	p := simpleTwoTxProtocol(t)
	_, err := p.TransactionToSend("a", nil)
	if !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("transaction_to_send before build = %v, want ErrNotBuilt", err)
	}
}

// TestExternalSkippedInputAssemblesEmptyWitness exercises the external,
// SignSkip SegwitSpend path: the graph never held signing key material for
// it, so the witness slot is left empty for the caller to fill in.
func TestExternalSkippedInputAssemblesEmptyWitness(t *testing.T) {
	p := simpleTwoTxProtocol(t)
	if err := p.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := p.Sign(context.Background()); err != nil {
		t.Fatalf("sign: %v", err)
	}

	msg, err := p.TransactionToSend("a", nil)
	if err != nil {
		t.Fatalf("transaction_to_send: %v", err)
	}
	if len(msg.TxIn) != 1 {
		t.Fatalf("tx a has %d inputs, want 1", len(msg.TxIn))
	}
	if len(msg.TxIn[0].Witness) != 0 {
		t.Fatalf("external skip-signed witness = %v, want empty", msg.TxIn[0].Witness)
	}
}

func TestTransactionToSendSegwitKeyWitness(t *testing.T) {
	p := simpleTwoTxProtocol(t)
	if err := p.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := p.Sign(context.Background()); err != nil {
		t.Fatalf("sign: %v", err)
	}

	msg, err := p.TransactionToSend("b", nil)
	if err != nil {
		t.Fatalf("transaction_to_send: %v", err)
	}
	witness := msg.TxIn[0].Witness
	if len(witness) != 2 {
		t.Fatalf("P2WPKH witness has %d elements, want 2 (sig, pubkey)", len(witness))
	}
}

func TestTransactionToSendScriptChoiceRequired(t *testing.T) {
	p := NewProtocol("multi-leaf", testKeyManager{})
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
	leaves := []TapLeaf{
		{Script: []byte{txscript.OP_TRUE}, Sign: SignSpec{Mode: SignSingle, KeyIndex: 0}},
		{Script: []byte{txscript.OP_TRUE, txscript.OP_TRUE}, Sign: SignSpec{Mode: SignSingle, KeyIndex: 1}},
	}
	out := TaprootOutput{InternalKey: newTestKey(t), Leaves: leaves}
	if err := p.AddConnection("parent-to-child", "parent", AutoOutput(out), "child",
		AutoInput(txscript.SigHashDefault, ScriptsSpend{Leaves: []int{0, 1}})); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := p.AddOutput("child", SegwitKeyOutput{PubKey: newTestKey(t)}, RecoverAmount); err != nil {
		t.Fatalf("add output: %v", err)
	}
	if err := p.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := p.Sign(context.Background()); err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := p.TransactionToSend("child", nil); err == nil {
		t.Fatal("expected an error when a multi-leaf input's spend choice is unresolved")
	}

	msg, err := p.TransactionToSend("child", []SpendChoice{{Input: 0, LeafIndex: 1}})
	if err != nil {
		t.Fatalf("transaction_to_send with choice: %v", err)
	}
	witness := msg.TxIn[0].Witness
	if len(witness) != 3 {
		t.Fatalf("witness has %d elements, want 3", len(witness))
	}
	if string(witness[1]) != string(leaves[1].Script) {
		t.Fatal("witness script does not match the chosen leaf")
	}
}
