package graph

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/txscript"
)

func TestOutputConsumedOnceEnforced(t *testing.T) {
	p := NewProtocol("single-consumer", nil)
	for _, name := range []string{"a", "b", "c"} {
		if err := p.AddTransaction(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	key := newTestKey(t)
	if _, err := p.AddOutput("a", SegwitKeyOutput{PubKey: key}, 1000); err != nil {
		t.Fatalf("add output: %v", err)
	}

	mode := SegwitSpend{Sign: SignSpec{Mode: SignSkip}}
	if err := p.AddConnection("a-to-b", "a", ByIndex(0), "b", AutoInput(txscript.SigHashAll, mode)); err != nil {
		t.Fatalf("first consumer: %v", err)
	}

	err := p.AddConnection("a-to-c", "a", ByIndex(0), "c", AutoInput(txscript.SigHashAll, mode))
	if !errors.Is(err, ErrOutputAlreadyConsumed) {
		t.Fatalf("second consumer = %v, want ErrOutputAlreadyConsumed", err)
	}

	// The graph must be unchanged by the rejected attempt: "c" gets no
	// dangling input appended.
	cTx, err := p.Transaction("c")
	if err != nil {
		t.Fatalf("lookup c: %v", err)
	}
	if len(cTx.Inputs) != 0 {
		t.Fatalf("c has %d inputs, want 0 after rejected connection", len(cTx.Inputs))
	}
}

func TestAddConnectionUnknownTransaction(t *testing.T) {
	p := NewProtocol("missing-tx", nil)
	if err := p.AddTransaction("a"); err != nil {
		t.Fatalf("add a: %v", err)
	}
	key := newTestKey(t)
	err := p.AddConnection("a-to-ghost", "a", AutoOutput(SegwitKeyOutput{PubKey: key}), "ghost",
		AutoInput(txscript.SigHashAll, SegwitSpend{Sign: SignSpec{Mode: SignSkip}}))
	if !errors.Is(err, ErrTransactionMissing) {
		t.Fatalf("connect to missing tx = %v, want ErrTransactionMissing", err)
	}
}

// TestDistinctExternalAnchorsIndependentlyFunded covers two separate external
// UTXOs (same txid, different vouts) feeding the same transaction: each
// must contribute its own declared value to the resolved input sum.
func TestDistinctExternalAnchorsIndependentlyFunded(t *testing.T) {
	p := NewProtocol("two-externals", nil)
	if err := p.AddTransaction("spender"); err != nil {
		t.Fatalf("add spender: %v", err)
	}
	extTxid := newExternalTxid(t)
	mode := SegwitSpend{Sign: SignSpec{Mode: SignSkip}}
	if err := p.ConnectExternal("in0", extTxid, 0, 30000, []byte{0x00, 0x14}, "spender",
		AutoInput(txscript.SigHashAll, mode)); err != nil {
		t.Fatalf("connect external 0: %v", err)
	}
	if err := p.ConnectExternal("in1", extTxid, 1, 70000, []byte{0x00, 0x14}, "spender",
		AutoInput(txscript.SigHashAll, mode)); err != nil {
		t.Fatalf("connect external 1: %v", err)
	}
	key := newTestKey(t)
	idx, err := p.AddOutput("spender", SegwitKeyOutput{PubKey: key}, RecoverAmount)
	if err != nil {
		t.Fatalf("add sweep output: %v", err)
	}

	if err := p.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	tx, err := p.Transaction("spender")
	if err != nil {
		t.Fatalf("lookup spender: %v", err)
	}
	// txVSize = 10 + 2*(41+27) + 31 = 177; requiredFee = 177 + ceil(885/100) = 177+9 = 186
	const want = 30000 + 70000 - 186
	if got := tx.Outputs[idx].Value; got != want {
		t.Fatalf("sweep output = %d, want %d", got, want)
	}
}
