package graph

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/txscript"
)

// TestRecoverAmountSweep matches the worked example: a transaction with one
// external SegwitSpend input and two SegwitKeyOutput outputs (one explicit,
// one RECOVER_AMOUNT) has txVSize = 10 + (41+27) + 31 + 31 = 140, so
// requiredFee(140) = 140 + ceil(140*5/100) = 147. With a 100000-satoshi
// input and a 50000-satoshi explicit output, the sweep output must resolve
// to 100000 - 50000 - 147 = 49853.
func TestRecoverAmountSweep(t *testing.T) {
	p := NewProtocol("recover-sweep", nil)
	if err := p.AddTransaction("parent"); err != nil {
		t.Fatalf("add parent: %v", err)
	}

	extTxid := newExternalTxid(t)
	if err := p.ConnectExternal("fund", extTxid, 0, 100000, []byte{0x00, 0x14}, "parent",
		AutoInput(txscript.SigHashAll, SegwitSpend{Sign: SignSpec{Mode: SignSkip}})); err != nil {
		t.Fatalf("connect external: %v", err)
	}

	keyA, keyB := newTestKey(t), newTestKey(t)
	if _, err := p.AddOutput("parent", SegwitKeyOutput{PubKey: keyA}, 50000); err != nil {
		t.Fatalf("add explicit output: %v", err)
	}
	sweepIdx, err := p.AddOutput("parent", SegwitKeyOutput{PubKey: keyB}, RecoverAmount)
	if err != nil {
		t.Fatalf("add sweep output: %v", err)
	}

	if err := p.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}

	parent, err := p.Transaction("parent")
	if err != nil {
		t.Fatalf("lookup parent: %v", err)
	}
	got := parent.Outputs[sweepIdx].Value
	const want = 49853
	if got != want {
		t.Fatalf("recover-amount output = %d, want %d", got, want)
	}
}

func TestMultipleRecoverOutputsRejected(t *testing.T) {
	p := NewProtocol("double-recover", nil)
	if err := p.AddTransaction("tx"); err != nil {
		t.Fatalf("add tx: %v", err)
	}
	extTxid := newExternalTxid(t)
	if err := p.ConnectExternal("fund", extTxid, 0, 100000, []byte{0x00, 0x14}, "tx",
		AutoInput(txscript.SigHashAll, SegwitSpend{Sign: SignSpec{Mode: SignSkip}})); err != nil {
		t.Fatalf("connect external: %v", err)
	}
	key := newTestKey(t)
	if _, err := p.AddOutput("tx", SegwitKeyOutput{PubKey: key}, RecoverAmount); err != nil {
		t.Fatalf("add output 0: %v", err)
	}
	if _, err := p.AddOutput("tx", SegwitKeyOutput{PubKey: key}, RecoverAmount); err != nil {
		t.Fatalf("add output 1: %v", err)
	}

	err := p.Build()
	if !errors.Is(err, ErrMultipleRecoverOutputs) {
		t.Fatalf("build = %v, want ErrMultipleRecoverOutputs", err)
	}
}

func TestAutoAmountUnderflow(t *testing.T) {
	p := NewProtocol("underflow", nil)
	if err := p.AddTransaction("parent"); err != nil {
		t.Fatalf("add parent: %v", err)
	}
	if err := p.AddTransaction("child"); err != nil {
		t.Fatalf("add child: %v", err)
	}

	extTxid := newExternalTxid(t)
	// A 1-satoshi input cannot possibly cover even the smallest required fee.
	if err := p.ConnectExternal("fund", extTxid, 0, 1, []byte{0x00, 0x14}, "parent",
		AutoInput(txscript.SigHashAll, SegwitSpend{Sign: SignSpec{Mode: SignSkip}})); err != nil {
		t.Fatalf("connect external: %v", err)
	}
	key := newTestKey(t)
	if err := p.AddConnection("parent-to-child", "parent", AutoOutput(SegwitKeyOutput{PubKey: key}), "child",
		AutoInput(txscript.SigHashAll, SegwitSpend{Sign: SignSpec{Mode: SignSkip}})); err != nil {
		t.Fatalf("connect parent->child: %v", err)
	}
	if _, err := p.AddOutput("child", OpReturnOutput{Data: nil}, 0); err != nil {
		t.Fatalf("add output on child: %v", err)
	}

	err := p.Build()
	var underflow *AutoAmountUnderflow
	if !errors.As(err, &underflow) {
		t.Fatalf("build = %v, want *AutoAmountUnderflow", err)
	}
	if underflow.Tx != "parent" {
		t.Errorf("underflow.Tx = %s, want parent", underflow.Tx)
	}
}
