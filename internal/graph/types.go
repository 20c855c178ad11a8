// Package graph implements the BitVMX transaction-graph data model: the
// declarative representation of a DAG of pre-signed Bitcoin transactions,
// the builder surface used to mutate it, and the finalization pipeline
// (resolve → back-fill amounts → propagate txids → derive sighashes).
package graph

import (
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// Amount sentinels. Any output value other than a concrete non-negative
// satoshi amount must be one of these two, and neither may survive amount
// resolution.
const (
	AutoAmount    int64 = -1
	RecoverAmount int64 = -2
)

// SignMode selects how a signature for a given sighash is obtained.
type SignMode int

const (
	// SignSkip means no signature is required for this slot; the witness
	// is satisfied some other way (e.g. a CSV-only branch).
	SignSkip SignMode = iota
	// SignSingle asks the key manager for one signature under one key.
	SignSingle
	// SignAggregate asks the key manager for a MuSig2 aggregate signature.
	SignAggregate
	// SignWinternitz asks the key manager for a one-time hash-based
	// signature over a committed message.
	SignWinternitz
)

func (m SignMode) String() string {
	switch m {
	case SignSkip:
		return "skip"
	case SignSingle:
		return "single"
	case SignAggregate:
		return "aggregate"
	case SignWinternitz:
		return "winternitz"
	default:
		return "unknown"
	}
}

// WinternitzHashType is the digest algorithm committed to by a Winternitz
// one-time signature, per the key manager's derivation contract (§6).
type WinternitzHashType int

const (
	WinternitzSHA256 WinternitzHashType = iota
)

// SignSpec carries everything the signing dispatcher needs to route a
// signature request to the key manager for one slot. Which fields are
// meaningful depends on Mode.
type SignSpec struct {
	Mode SignMode

	// KeyIndex identifies the key to derive for Single and Winternitz modes.
	KeyIndex uint32

	// Participants and Coordinator identify a MuSig2 aggregate session.
	Participants []*btcec.PublicKey
	Coordinator  *btcec.PublicKey

	// WinternitzHashType and MessageLen parameterize Winternitz key
	// derivation and signing.
	WinternitzHashType WinternitzHashType
	MessageLen         int
}

// TapLeaf is one leaf of a Taproot script tree: a script, its leaf version,
// and the sign mode required to satisfy it.
type TapLeaf struct {
	Script      []byte
	LeafVersion txscript.TapscriptLeafVersion
	Sign        SignSpec
}

// OutputType is the closed set of output descriptors the graph understands.
// Implementations are marker types; callers construct one of the concrete
// types below.
type OutputType interface {
	outputType()
}

// SegwitKeyOutput is a P2WPKH-style output paying to a single public key.
type SegwitKeyOutput struct {
	PubKey *btcec.PublicKey
}

// SegwitScriptOutput is a P2WSH output committing to an arbitrary witness
// script (e.g. an HTLC or a CSV timelock expressed as a script).
type SegwitScriptOutput struct {
	Script []byte
}

// TaprootOutput is a P2TR output: an internal key plus an optional set of
// script-path leaves. Leaves may be empty for a key-path-only output.
type TaprootOutput struct {
	InternalKey *btcec.PublicKey
	Leaves      []TapLeaf
}

// OpReturnOutput is an unspendable data-carrier output.
type OpReturnOutput struct {
	Data []byte
}

// TimelockOutput is a P2WSH output spendable by OwnerKey after a relative
// CSV timelock of Blocks and, if RenewKey is provided, by RenewKey through
// a second script branch with no timelock.
type TimelockOutput struct {
	Blocks    uint32
	OwnerKey  *btcec.PublicKey
	RenewKey  *btcec.PublicKey
}

// SpeedupOutput is a CPFP anchor: a minimal-value output any key holder can
// spend together with an external funding UTXO to bump a stuck parent's fee.
type SpeedupOutput struct {
	PubKey *btcec.PublicKey
}

func (SegwitKeyOutput) outputType()    {}
func (SegwitScriptOutput) outputType() {}
func (TaprootOutput) outputType()      {}
func (OpReturnOutput) outputType()     {}
func (TimelockOutput) outputType()     {}
func (SpeedupOutput) outputType()      {}

// SpendMode is the closed set of ways an input can consume its previous
// output.
type SpendMode interface {
	spendMode()
}

// SegwitSpend consumes a SegWit v0 output (BIP-143 sighash). The sign spec
// for the ECDSA signature lives on the spend mode itself, since SegWit
// outputs carry no leaves.
type SegwitSpend struct {
	Sign SignSpec

	// TimelockRenewPath selects which branch of a two-branch
	// TimelockOutput script to satisfy when RenewKey is set: false spends
	// the OwnerKey/CSV branch (OP_ELSE), true spends the RenewKey branch
	// (OP_IF). Meaningless for every other output type, and for a
	// TimelockOutput with no RenewKey (single-branch script, no selector).
	TimelockRenewPath bool
}

// KeyOnlySpend consumes a Taproot output via the key path (BIP-341,
// ext_flag=0).
type KeyOnlySpend struct {
	KeyPathSign SignSpec
}

// ScriptsSpend consumes a Taproot output via one or more script-path
// leaves (BIP-341, ext_flag=1). Each listed leaf index produces its own
// sighash and, per the leaf's own SignMode, its own signature.
type ScriptsSpend struct {
	Leaves []int
}

func (SegwitSpend) spendMode()  {}
func (KeyOnlySpend) spendMode() {}
func (ScriptsSpend) spendMode() {}

// VariantKind discriminates which sighash/signature slot an input's
// derived value belongs to.
type VariantKind int

const (
	VariantSegwit VariantKind = iota
	VariantKeyPath
	VariantLeaf
)

// Variant names one sighash/signature slot of an input. For VariantLeaf,
// LeafIndex selects which script-path leaf it belongs to.
type Variant struct {
	Kind      VariantKind
	LeafIndex int
}

func (v Variant) String() string {
	switch v.Kind {
	case VariantSegwit:
		return "segwit"
	case VariantKeyPath:
		return "key-path"
	case VariantLeaf:
		return "leaf-" + strconv.Itoa(v.LeafIndex)
	default:
		return "unknown"
	}
}

// Output is one output slot of a Transaction.
type Output struct {
	Value int64
	Type  OutputType

	// consumedBy records which (transaction, input) references this
	// output, enforcing the "at most one consumer" invariant. Empty
	// string means unconsumed.
	consumedByTx    string
	consumedByInput int
}

// Input is one input slot of a Transaction.
type Input struct {
	// PrevTx is the name of the upstream transaction inside the graph,
	// or "" if this input is external (PrevTxid is then authoritative
	// and never rewritten by the identifier propagator).
	PrevTx   string
	PrevVout uint32

	// PrevTxid is resolved: given directly for external inputs, computed
	// by the identifier propagator for internal ones.
	PrevTxid *chainhash.Hash

	Sequence    uint32
	SpendMode   SpendMode
	SighashType txscript.SigHashType

	// Sighashes and Signatures are populated by Build and Sign
	// respectively, keyed by slot variant.
	Sighashes  map[Variant]*chainhash.Hash
	Signatures map[Variant][]byte
}

// Transaction is one node of the graph.
type Transaction struct {
	Name     string
	Version  int32
	LockTime uint32
	Inputs   []*Input
	Outputs  []*Output

	// Txid is valid only after a successful Build in the current
	// generation; mutation invalidates it (see Protocol.demote).
	Txid *chainhash.Hash
}

// external is a synthetic source node: an output that exists outside the
// graph, identified by its txid:vout. It has no inputs and never
// participates in sighash derivation itself, but its value and script are
// needed to compute the sighash of whatever internal input spends it.
type external struct {
	txid   *chainhash.Hash
	vout   uint32
	value  int64
	script []byte
}

// OutputSpec selects which output of a connection's source transaction to
// bind to.
type OutputSpec struct {
	kind  specKind
	index int
	auto  OutputType
}

// InputSpec selects which input of a connection's destination transaction
// to bind to, or describes one to create.
type InputSpec struct {
	kind        specKind
	index       int
	sighashType txscript.SigHashType
	spendMode   SpendMode
}

type specKind int

const (
	specIndex specKind = iota
	specLast
	specAuto
)

// ByIndex binds an output/input spec to an existing slot.
func ByIndex(i int) OutputSpec { return OutputSpec{kind: specIndex, index: i} }

// LastOutput binds to the most recently added output of the source
// transaction at the moment the connection is created.
func LastOutput() OutputSpec { return OutputSpec{kind: specLast} }

// AutoOutput creates a new output of the given type as part of the
// connection.
func AutoOutput(t OutputType) OutputSpec { return OutputSpec{kind: specAuto, auto: t} }

// ByInputIndex binds to an existing input slot.
func ByInputIndex(i int) InputSpec { return InputSpec{kind: specIndex, index: i} }

// AutoInput creates a new input as part of the connection.
func AutoInput(sighashType txscript.SigHashType, mode SpendMode) InputSpec {
	return InputSpec{kind: specAuto, sighashType: sighashType, spendMode: mode}
}

// Connection is a named edge binding one output of from to one input of
// to.
type Connection struct {
	Name string
	From string // "" for the synthetic external node
	Out  int
	To   string
	In   int

	// SequenceOverride and ValueOverride, when non-nil, were applied by
	// SetSequenceOverride/SetValueOverride after the connection was
	// created and are already reflected on the bound input/output.
	// Kept for introspection (e.g. visualize, persistence).
	SequenceOverride *uint32
	ValueOverride    *int64
}
