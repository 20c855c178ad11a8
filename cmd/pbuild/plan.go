package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/bitvmx-labs/protocol-builder/internal/graph"
	"github.com/bitvmx-labs/protocol-builder/pkg/helpers"
)

// plan is the CLI's declarative, JSON-encoded description of a protocol
// graph: a sequence of add-tx/add-output/add-connection/connect-external
// calls, grouped the way a human would write them by hand rather than
// issuing one CLI invocation per primitive call. Loading a plan exercises
// exactly the same graph.Protocol methods a caller of the builder uses.
type plan struct {
	Name            string           `json:"name"`
	Transactions    []string         `json:"transactions"`
	ExplicitOutputs []explicitOutput `json:"explicit_outputs,omitempty"`
	Connections     []connectionSpec `json:"connections"`
}

type explicitOutput struct {
	Tx    string     `json:"tx"`
	Type  outputSpec `json:"type"`
	Value int64      `json:"value"`
}

type connectionSpec struct {
	Name string `json:"name"`

	// From is the source transaction name, or "" for an external anchor.
	From string `json:"from,omitempty"`

	// External* fields are used when From == "".
	ExternalTxid  string `json:"external_txid,omitempty"`
	ExternalVout  uint32 `json:"external_vout,omitempty"`
	ExternalValue int64  `json:"external_value,omitempty"`
	ExternalScript string `json:"external_script,omitempty"`

	// Output selects fromTx's output. Kind is "auto", "index", or "last".
	OutputKind  string     `json:"output_kind,omitempty"`
	OutputType  outputSpec `json:"output_type,omitempty"`
	OutputIndex int        `json:"output_index,omitempty"`

	To string `json:"to"`

	// Input selects toTx's input. Kind is "auto" or "index".
	InputKind   string     `json:"input_kind"`
	InputIndex  int        `json:"input_index,omitempty"`
	SpendMode   spendSpec  `json:"spend_mode,omitempty"`
	SighashType string     `json:"sighash_type,omitempty"`

	// SequenceOverride, when non-nil, replaces the input's default
	// max-sequence after the connection is created — needed for a
	// timelock's CSV branch (BIP-68 relative locktime) built through the
	// generic connection shape rather than AddTimelockConnection.
	SequenceOverride *uint32 `json:"sequence_override,omitempty"`

	// ValueOverride, when non-nil, replaces the value of the source output
	// the connection binds after the connection is created, bypassing the
	// amount resolver for that one output. Not valid on an external
	// connection: loading the plan fails.
	ValueOverride *int64 `json:"value_override,omitempty"`
}

type outputSpec struct {
	Kind        string    `json:"kind"` // segwit_key, segwit_script, taproot, op_return, timelock, speedup
	PubKeyHex   string    `json:"pubkey,omitempty"`
	ScriptHex   string    `json:"script,omitempty"`
	InternalKey string    `json:"internal_key,omitempty"`
	Leaves      []leafSpec `json:"leaves,omitempty"`
	DataHex     string    `json:"data,omitempty"`
	Blocks      uint32    `json:"blocks,omitempty"`
	OwnerKeyHex string    `json:"owner_key,omitempty"`
	RenewKeyHex string    `json:"renew_key,omitempty"`
}

type leafSpec struct {
	ScriptHex   string   `json:"script"`
	LeafVersion uint8    `json:"leaf_version,omitempty"`
	Sign        signSpec `json:"sign"`
}

type signSpec struct {
	Mode               string   `json:"mode"` // skip, single, aggregate, winternitz
	KeyIndex           uint32   `json:"key_index,omitempty"`
	ParticipantsHex    []string `json:"participants,omitempty"`
	CoordinatorHex     string   `json:"coordinator,omitempty"`
	WinternitzHashType string   `json:"winternitz_hash_type,omitempty"`
	MessageLen         int      `json:"message_len,omitempty"`
}

type spendSpec struct {
	Kind        string   `json:"kind"` // segwit, key_path, scripts
	Sign        signSpec `json:"sign,omitempty"`
	KeyPathSign signSpec `json:"key_path_sign,omitempty"`
	Leaves      []int    `json:"leaves,omitempty"`
	// RenewPath selects the OP_IF (renew) branch of a two-branch
	// TimelockOutput script for a "segwit" spend mode; false (default)
	// spends the OP_ELSE owner/CSV branch. Ignored for any other output.
	RenewPath bool `json:"renew_path,omitempty"`
}

func loadPlan(path string) (*plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: read %q: %w", path, err)
	}
	var p plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("plan: parse %q: %w", path, err)
	}
	return &p, nil
}

// buildProtocol constructs a graph.Protocol from p by issuing the same
// AddTransaction/AddOutput/AddConnection/ConnectExternal calls a caller
// scripting the primitive builder surface directly would make.
func buildProtocol(p *plan, km graph.KeyManager) (*graph.Protocol, error) {
	proto := graph.NewProtocol(p.Name, km)

	for _, name := range p.Transactions {
		if err := proto.AddTransaction(name); err != nil {
			return nil, fmt.Errorf("plan: add transaction %q: %w", name, err)
		}
	}

	for _, eo := range p.ExplicitOutputs {
		t, err := decodeOutputType(eo.Type)
		if err != nil {
			return nil, fmt.Errorf("plan: explicit output on %q: %w", eo.Tx, err)
		}
		if _, err := proto.AddOutput(eo.Tx, t, eo.Value); err != nil {
			return nil, fmt.Errorf("plan: add output on %q: %w", eo.Tx, err)
		}
	}

	for _, c := range p.Connections {
		if err := applyConnection(proto, c); err != nil {
			return nil, fmt.Errorf("plan: connection %q: %w", c.Name, err)
		}
	}

	return proto, nil
}

func applyConnection(proto *graph.Protocol, c connectionSpec) error {
	sighash, err := decodeSighash(c.SighashType)
	if err != nil {
		return err
	}

	inSpec, err := decodeInputSpec(c, sighash)
	if err != nil {
		return err
	}

	if c.From == "" {
		txid, err := chainhash.NewHashFromStr(c.ExternalTxid)
		if err != nil {
			return fmt.Errorf("external txid: %w", err)
		}
		script, err := helpers.HexToBytes(c.ExternalScript)
		if err != nil {
			return fmt.Errorf("external script: %w", err)
		}
		if err := proto.ConnectExternal(c.Name, *txid, c.ExternalVout, c.ExternalValue, script, c.To, inSpec); err != nil {
			return err
		}
		if c.SequenceOverride != nil {
			if err := proto.SetSequenceOverride(c.Name, *c.SequenceOverride); err != nil {
				return err
			}
		}
		if c.ValueOverride != nil {
			if err := proto.SetValueOverride(c.Name, *c.ValueOverride); err != nil {
				return err
			}
		}
		return nil
	}

	outSpec, err := decodeOutputSpec(c)
	if err != nil {
		return err
	}
	if err := proto.AddConnection(c.Name, c.From, outSpec, c.To, inSpec); err != nil {
		return err
	}
	if c.SequenceOverride != nil {
		if err := proto.SetSequenceOverride(c.Name, *c.SequenceOverride); err != nil {
			return err
		}
	}
	if c.ValueOverride != nil {
		if err := proto.SetValueOverride(c.Name, *c.ValueOverride); err != nil {
			return err
		}
	}
	return nil
}

func decodeOutputSpec(c connectionSpec) (graph.OutputSpec, error) {
	switch c.OutputKind {
	case "", "auto":
		t, err := decodeOutputType(c.OutputType)
		if err != nil {
			return graph.OutputSpec{}, err
		}
		return graph.AutoOutput(t), nil
	case "last":
		return graph.LastOutput(), nil
	case "index":
		return graph.ByIndex(c.OutputIndex), nil
	default:
		return graph.OutputSpec{}, fmt.Errorf("unknown output_kind %q", c.OutputKind)
	}
}

func decodeInputSpec(c connectionSpec, sighash txscript.SigHashType) (graph.InputSpec, error) {
	switch c.InputKind {
	case "", "auto":
		mode, err := decodeSpendMode(c.SpendMode)
		if err != nil {
			return graph.InputSpec{}, err
		}
		return graph.AutoInput(sighash, mode), nil
	case "index":
		return graph.ByInputIndex(c.InputIndex), nil
	default:
		return graph.InputSpec{}, fmt.Errorf("unknown input_kind %q", c.InputKind)
	}
}

func decodeOutputType(o outputSpec) (graph.OutputType, error) {
	switch o.Kind {
	case "segwit_key":
		pub, err := decodePubKey(o.PubKeyHex)
		if err != nil {
			return nil, err
		}
		return graph.SegwitKeyOutput{PubKey: pub}, nil
	case "segwit_script":
		script, err := helpers.HexToBytes(o.ScriptHex)
		if err != nil {
			return nil, err
		}
		return graph.SegwitScriptOutput{Script: script}, nil
	case "taproot":
		internalKey, err := decodePubKey(o.InternalKey)
		if err != nil {
			return nil, err
		}
		leaves, err := decodeLeaves(o.Leaves)
		if err != nil {
			return nil, err
		}
		return graph.TaprootOutput{InternalKey: internalKey, Leaves: leaves}, nil
	case "op_return":
		data, err := helpers.HexToBytes(o.DataHex)
		if err != nil {
			return nil, err
		}
		return graph.OpReturnOutput{Data: data}, nil
	case "timelock":
		owner, err := decodePubKey(o.OwnerKeyHex)
		if err != nil {
			return nil, err
		}
		var renew *btcec.PublicKey
		if o.RenewKeyHex != "" {
			renew, err = decodePubKey(o.RenewKeyHex)
			if err != nil {
				return nil, err
			}
		}
		return graph.TimelockOutput{Blocks: o.Blocks, OwnerKey: owner, RenewKey: renew}, nil
	case "speedup":
		pub, err := decodePubKey(o.PubKeyHex)
		if err != nil {
			return nil, err
		}
		return graph.SpeedupOutput{PubKey: pub}, nil
	default:
		return nil, fmt.Errorf("unknown output kind %q", o.Kind)
	}
}

func decodeLeaves(specs []leafSpec) ([]graph.TapLeaf, error) {
	leaves := make([]graph.TapLeaf, 0, len(specs))
	for _, l := range specs {
		script, err := helpers.HexToBytes(l.ScriptHex)
		if err != nil {
			return nil, err
		}
		sign, err := decodeSignSpec(l.Sign)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, graph.TapLeaf{
			Script:      script,
			LeafVersion: txscript.TapscriptLeafVersion(l.LeafVersion),
			Sign:        sign,
		})
	}
	return leaves, nil
}

func decodeSpendMode(s spendSpec) (graph.SpendMode, error) {
	switch s.Kind {
	case "segwit":
		sign, err := decodeSignSpec(s.Sign)
		if err != nil {
			return nil, err
		}
		return graph.SegwitSpend{Sign: sign, TimelockRenewPath: s.RenewPath}, nil
	case "key_path":
		sign, err := decodeSignSpec(s.KeyPathSign)
		if err != nil {
			return nil, err
		}
		return graph.KeyOnlySpend{KeyPathSign: sign}, nil
	case "scripts":
		return graph.ScriptsSpend{Leaves: s.Leaves}, nil
	default:
		return nil, fmt.Errorf("unknown spend_mode kind %q", s.Kind)
	}
}

func decodeSignSpec(s signSpec) (graph.SignSpec, error) {
	spec := graph.SignSpec{KeyIndex: s.KeyIndex, MessageLen: s.MessageLen}
	switch s.Mode {
	case "", "skip":
		spec.Mode = graph.SignSkip
	case "single":
		spec.Mode = graph.SignSingle
	case "aggregate":
		spec.Mode = graph.SignAggregate
		for _, hexKey := range s.ParticipantsHex {
			pub, err := decodePubKey(hexKey)
			if err != nil {
				return spec, err
			}
			spec.Participants = append(spec.Participants, pub)
		}
		if s.CoordinatorHex != "" {
			pub, err := decodePubKey(s.CoordinatorHex)
			if err != nil {
				return spec, err
			}
			spec.Coordinator = pub
		}
	case "winternitz":
		spec.Mode = graph.SignWinternitz
		spec.WinternitzHashType = graph.WinternitzSHA256
	default:
		return spec, fmt.Errorf("unknown sign mode %q", s.Mode)
	}
	return spec, nil
}

func decodeSighash(name string) (txscript.SigHashType, error) {
	switch name {
	case "", "default":
		return txscript.SigHashDefault, nil
	case "all":
		return txscript.SigHashAll, nil
	case "none":
		return txscript.SigHashNone, nil
	case "single":
		return txscript.SigHashSingle, nil
	case "all_anyonecanpay":
		return txscript.SigHashAll | txscript.SigHashAnyOneCanPay, nil
	default:
		return 0, fmt.Errorf("unknown sighash type %q", name)
	}
}

func decodePubKey(hexKey string) (*btcec.PublicKey, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("empty public key")
	}
	data, err := helpers.HexToBytes(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	return btcec.ParsePubKey(data)
}
