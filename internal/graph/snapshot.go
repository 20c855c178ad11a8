package graph

// Snapshot is a read-only, exported view of a Protocol's graph structure,
// for consumers outside this package (visualize, persistence) that must
// not reach into its unexported fields. Taking a snapshot never requires
// Build to have run (§4.9: "visualize is permitted in any state").
type Snapshot struct {
	Name         string
	Transactions []TxSnapshot
	Connections  []ConnSnapshot
}

type TxSnapshot struct {
	Name    string
	Txid    string // hex, empty if not yet built
	Outputs []OutputSnapshot
	Inputs  []InputSnapshot
}

type OutputSnapshot struct {
	Index    int
	Value    int64
	TypeName string
}

type InputSnapshot struct {
	Index         int
	PrevTx        string // "" if external
	PrevVout      uint32
	External      bool
	SpendModeName string
}

type ConnSnapshot struct {
	Name string
	From string // "" for the synthetic external source
	Out  int
	To   string
	In   int

	// SequenceOverride and ValueOverride mirror Connection's own fields
	// (§3): nil unless SetSequenceOverride/SetValueOverride was called on
	// this connection.
	SequenceOverride *uint32
	ValueOverride    *int64
}

func outputTypeName(t OutputType) string {
	switch t.(type) {
	case SegwitKeyOutput:
		return "segwit-key"
	case SegwitScriptOutput:
		return "segwit-script"
	case TaprootOutput:
		return "taproot"
	case OpReturnOutput:
		return "op-return"
	case TimelockOutput:
		return "timelock"
	case SpeedupOutput:
		return "speedup"
	default:
		return "unknown"
	}
}

func spendModeName(m SpendMode) string {
	switch m.(type) {
	case SegwitSpend:
		return "segwit"
	case KeyOnlySpend:
		return "key-path"
	case ScriptsSpend:
		return "script-path"
	default:
		return "unknown"
	}
}

// Snapshot captures the current graph structure for external consumers.
func (p *Protocol) Snapshot() Snapshot {
	s := Snapshot{Name: p.Name}
	for _, name := range p.txOrder {
		tx := p.txs[name]
		txSnap := TxSnapshot{Name: tx.Name}
		if tx.Txid != nil {
			txSnap.Txid = tx.Txid.String()
		}
		for i, out := range tx.Outputs {
			txSnap.Outputs = append(txSnap.Outputs, OutputSnapshot{
				Index: i, Value: out.Value, TypeName: outputTypeName(out.Type),
			})
		}
		for i, in := range tx.Inputs {
			external := in.PrevTx == ""
			txSnap.Inputs = append(txSnap.Inputs, InputSnapshot{
				Index: i, PrevTx: in.PrevTx, PrevVout: in.PrevVout,
				External: external, SpendModeName: spendModeName(in.SpendMode),
			})
		}
		s.Transactions = append(s.Transactions, txSnap)
	}
	for _, name := range p.connOrder {
		conn := p.connections[name]
		s.Connections = append(s.Connections, ConnSnapshot{
			Name: conn.Name, From: conn.From, Out: conn.Out, To: conn.To, In: conn.In,
			SequenceOverride: conn.SequenceOverride, ValueOverride: conn.ValueOverride,
		})
	}
	return s
}
