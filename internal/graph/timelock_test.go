package graph

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
)

// timelockProtocol builds "parent" with a single TimelockOutput and
// "child" spending its CSV branch via AddTimelockConnection. withRenew
// controls whether the output carries a RenewKey (two-branch script) or
// not (single CSV/owner branch).
func timelockProtocol(t *testing.T, withRenew bool) (*Protocol, *btcec.PublicKey) {
	t.Helper()
	p := NewProtocol("timelock", testKeyManager{})
	if err := p.AddTransaction("parent"); err != nil {
		t.Fatalf("add parent: %v", err)
	}
	if err := p.AddTransaction("child"); err != nil {
		t.Fatalf("add child: %v", err)
	}
	extTxid := newExternalTxid(t)
	if err := p.ConnectExternal("fund", extTxid, 0, 100000, []byte{0x00, 0x14}, "parent",
		AutoInput(txscript.SigHashAll, SegwitSpend{Sign: SignSpec{Mode: SignSkip}})); err != nil {
		t.Fatalf("connect external: %v", err)
	}

	owner := newTestKey(t)
	var renew *btcec.PublicKey
	if withRenew {
		renew = newTestKey(t)
	}
	if err := p.AddTimelockConnection("parent-to-child", "parent", 144, owner, renew, "child",
		SignSpec{Mode: SignSingle, KeyIndex: 0}, txscript.SigHashAll); err != nil {
		t.Fatalf("add timelock connection: %v", err)
	}
	if _, err := p.AddOutput("child", SegwitKeyOutput{PubKey: owner}, RecoverAmount); err != nil {
		t.Fatalf("add output on child: %v", err)
	}
	return p, owner
}

func timelockSpendMode(p *Protocol, renewPath bool) {
	child, err := p.Transaction("child")
	if err != nil {
		panic(err)
	}
	in := child.Inputs[0]
	segwit := in.SpendMode.(SegwitSpend)
	segwit.TimelockRenewPath = renewPath
	in.SpendMode = segwit
}

// TestTimelockSingleBranchWitness checks a TimelockOutput with no RenewKey
// produces the plain [sig, script] witness, and that the witness script is
// the single-branch timelock script.
func TestTimelockSingleBranchWitness(t *testing.T) {
	p, owner := timelockProtocol(t, false)
	if err := p.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := p.Sign(context.Background()); err != nil {
		t.Fatalf("sign: %v", err)
	}

	msg, err := p.TransactionToSend("child", nil)
	if err != nil {
		t.Fatalf("transaction_to_send: %v", err)
	}
	witness := msg.TxIn[0].Witness
	if len(witness) != 2 {
		t.Fatalf("single-branch timelock witness has %d elements, want 2 (sig, script)", len(witness))
	}
	wantScript, err := buildTimelockScript(owner, nil, 144)
	if err != nil {
		t.Fatalf("build expected script: %v", err)
	}
	if string(witness[1]) != string(wantScript) {
		t.Fatal("witness script does not match the single-branch timelock script")
	}
}

// TestTimelockRenewBranchWitness checks a TimelockOutput with a RenewKey
// compiles to a two-branch script and that the witness carries the right
// OP_IF/OP_ELSE selector for each path.
func TestTimelockRenewBranchWitness(t *testing.T) {
	for _, renewPath := range []bool{false, true} {
		p, owner := timelockProtocol(t, true)
		timelockSpendMode(p, renewPath)
		if err := p.Build(); err != nil {
			t.Fatalf("build: %v", err)
		}
		if err := p.Sign(context.Background()); err != nil {
			t.Fatalf("sign: %v", err)
		}

		msg, err := p.TransactionToSend("child", nil)
		if err != nil {
			t.Fatalf("transaction_to_send (renewPath=%v): %v", renewPath, err)
		}
		witness := msg.TxIn[0].Witness
		if len(witness) != 3 {
			t.Fatalf("two-branch timelock witness has %d elements, want 3 (sig, selector, script)", len(witness))
		}
		if renewPath {
			if len(witness[1]) != 1 || witness[1][0] != 0x01 {
				t.Fatalf("renew-path selector = %v, want {0x01}", witness[1])
			}
		} else if len(witness[1]) != 0 {
			t.Fatalf("owner-path selector = %v, want empty", witness[1])
		}

		parentTx, err := p.Transaction("parent")
		if err != nil {
			t.Fatalf("transaction: %v", err)
		}
		timelock := parentTx.Outputs[0].Type.(TimelockOutput)
		wantScript, err := buildTimelockScript(owner, timelock.RenewKey, 144)
		if err != nil {
			t.Fatalf("build expected script: %v", err)
		}
		if string(witness[2]) != string(wantScript) {
			t.Fatal("witness script does not match the two-branch timelock script")
		}
	}
}
