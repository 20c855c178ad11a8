package graph

import (
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/google/uuid"

	"github.com/bitvmx-labs/protocol-builder/pkg/logging"
)

// state is the per-protocol lifecycle state (§4.9).
type state int

const (
	stateMutable state = iota
	stateBuilt
	stateSigned
)

// PrevRef names the previous output an input spends: either an internal
// transaction by name (resolved during identifier propagation) or an
// already-known txid (an external anchor).
type PrevRef struct {
	name       string
	txid       *chainhash.Hash
	value      int64
	script     []byte
	isExternal bool
}

// PrevTx references an internal transaction by name.
func PrevTx(name string) PrevRef { return PrevRef{name: name} }

// PrevTxid references an already-known, externally anchored txid. value and
// script describe the spent output itself (a PSBT witness-utxo equivalent):
// the graph cannot see past its own boundary (§6), so the caller supplies
// whatever a block explorer or the anchoring party already told them.
func PrevTxid(h chainhash.Hash, value int64, script []byte) PrevRef {
	return PrevRef{txid: &h, value: value, script: script, isExternal: true}
}

// Protocol is a named DAG of pre-signed Bitcoin transactions: the graph
// store plus its derived resolver/amount/txid/sighash state.
type Protocol struct {
	Name string

	txs       map[string]*Transaction
	txOrder   []string
	externals map[string]*external

	connections map[string]*Connection
	connOrder   []string

	state state
	// topo is the cached topological order over internal transaction
	// names, valid only while state != stateMutable.
	topo []string

	keyManager KeyManager
	sigStore   map[sigKey][]byte

	log *logging.Logger
}

type sigKey struct {
	tx      string
	input   int
	variant Variant
}

// NewProtocol creates an empty, Mutable protocol bound to the given key
// manager (used only by Sign and BuildSpeedupTx; Build never touches it).
func NewProtocol(name string, km KeyManager) *Protocol {
	return &Protocol{
		Name:        name,
		txs:         make(map[string]*Transaction),
		externals:   make(map[string]*external),
		connections: make(map[string]*Connection),
		keyManager:  km,
		sigStore:    make(map[sigKey][]byte),
		log:         logging.GetDefault().Component("graph"),
	}
}

// demote drops all cached build/sign derivations and returns the protocol
// to Mutable. Called by every mutating operation (§4.9, §8 invariant 6).
func (p *Protocol) demote() {
	if p.state == stateMutable {
		return
	}
	p.log.Debug("mutation after build: discarding cached derivations", "protocol", p.Name)
	p.state = stateMutable
	p.topo = nil
	for _, tx := range p.txs {
		tx.Txid = nil
		for _, in := range tx.Inputs {
			in.Sighashes = nil
			in.Signatures = nil
		}
	}
	p.sigStore = make(map[sigKey][]byte)
}

// IsBuilt reports whether the protocol is in the Built or Signed state.
func (p *Protocol) IsBuilt() bool { return p.state == stateBuilt || p.state == stateSigned }

// IsSigned reports whether the protocol is in the Signed state.
func (p *Protocol) IsSigned() bool { return p.state == stateSigned }

func (p *Protocol) requireBuilt() error {
	if !p.IsBuilt() {
		return ErrNotBuilt
	}
	return nil
}

// AddTransaction creates a new, empty transaction under the given name.
func (p *Protocol) AddTransaction(name string) error {
	if _, exists := p.txs[name]; exists {
		return transactionError(ErrTransactionAlreadyExists, name)
	}
	if _, exists := p.externals[name]; exists {
		return transactionError(ErrTransactionAlreadyExists, name)
	}
	p.demote()
	p.txs[name] = &Transaction{Name: name, Version: 2}
	p.txOrder = append(p.txOrder, name)
	return nil
}

// Transaction returns the named transaction, or ErrTransactionMissing.
func (p *Protocol) Transaction(name string) (*Transaction, error) {
	tx, ok := p.txs[name]
	if !ok {
		return nil, transactionError(ErrTransactionMissing, name)
	}
	return tx, nil
}

// AddOutput appends an output of the given type and value (AutoAmount and
// RecoverAmount are valid placeholders) to tx, returning its index.
func (p *Protocol) AddOutput(tx string, t OutputType, value int64) (int, error) {
	transaction, err := p.Transaction(tx)
	if err != nil {
		return 0, err
	}
	p.demote()
	transaction.Outputs = append(transaction.Outputs, &Output{Value: value, Type: t})
	return len(transaction.Outputs) - 1, nil
}

// AddInput appends an input spending prev:vout to tx, returning its index.
func (p *Protocol) AddInput(tx string, prev PrevRef, vout uint32, sequence uint32, mode SpendMode, sighashType txscript.SigHashType) (int, error) {
	transaction, err := p.Transaction(tx)
	if err != nil {
		return 0, err
	}
	if !prev.isExternal {
		if _, err := p.Transaction(prev.name); err != nil {
			return 0, err
		}
	}
	p.demote()

	in := &Input{
		PrevVout:    vout,
		Sequence:    sequence,
		SpendMode:   mode,
		SighashType: sighashType,
	}
	if prev.isExternal {
		in.PrevTxid = prev.txid
	} else {
		in.PrevTx = prev.name
	}
	transaction.Inputs = append(transaction.Inputs, in)

	if prev.isExternal {
		key := externalOutpointKey(prev.txid, vout)
		if _, ok := p.externals[key]; !ok {
			p.externals[key] = &external{txid: prev.txid, vout: vout, value: prev.value, script: prev.script}
		}
	} else {
		if err := p.markConsumed(prev.name, int(vout), tx, len(transaction.Inputs)-1); err != nil {
			// Roll back the append; the caller gets a clean error and an
			// unmodified graph.
			transaction.Inputs = transaction.Inputs[:len(transaction.Inputs)-1]
			return 0, err
		}
	}

	return len(transaction.Inputs) - 1, nil
}

func externalOutpointKey(h *chainhash.Hash, vout uint32) string {
	return h.String() + ":" + strconv.Itoa(int(vout))
}

// markConsumed enforces the "at most one input references a given output"
// invariant.
func (p *Protocol) markConsumed(txName string, vout int, consumerTx string, consumerInput int) error {
	prevTx, err := p.Transaction(txName)
	if err != nil {
		return err
	}
	if vout < 0 || vout >= len(prevTx.Outputs) {
		return connectionError(ErrOutputIndexOutOfRange, txName)
	}
	out := prevTx.Outputs[vout]
	if out.consumedByTx != "" {
		return connectionError(ErrOutputAlreadyConsumed, txName)
	}
	out.consumedByTx = consumerTx
	out.consumedByInput = consumerInput
	return nil
}

// AddConnection resolves output_spec on fromTx and input_spec on toTx
// (creating an output and/or input if Auto is used), and links them. An
// empty name is replaced with a generated UUID, for callers (like an
// unnamed plan connection) that don't need a human-chosen edge identifier.
// LastOutput resolves to the last output index of fromTx at the moment of
// this call; later AddOutput calls on fromTx do not rebind it.
func (p *Protocol) AddConnection(name, fromTx string, outSpec OutputSpec, toTx string, inSpec InputSpec) error {
	if name == "" {
		name = uuid.NewString()
	}
	if _, exists := p.connections[name]; exists {
		return connectionError(ErrConnectionAlreadyExists, name)
	}
	from, err := p.Transaction(fromTx)
	if err != nil {
		return err
	}
	if _, err := p.Transaction(toTx); err != nil {
		return err
	}

	outIdx, err := p.resolveOutputSpec(fromTx, from, outSpec)
	if err != nil {
		return err
	}

	inIdx, err := p.resolveInputSpec(toTx, inSpec, PrevTx(fromTx), uint32(outIdx))
	if err != nil {
		return err
	}

	conn := &Connection{Name: name, From: fromTx, Out: outIdx, To: toTx, In: inIdx}
	p.connections[name] = conn
	p.connOrder = append(p.connOrder, name)
	return nil
}

// ConnectExternal links an externally anchored txid:vout to an input_spec
// on toTx. value and script describe the spent output (see PrevTxid). The
// external node has no inputs and never participates in sighash derivation.
// An empty name is replaced with a generated UUID, as in AddConnection.
func (p *Protocol) ConnectExternal(name string, prevTxid chainhash.Hash, vout uint32, value int64, script []byte, toTx string, inSpec InputSpec) error {
	if name == "" {
		name = uuid.NewString()
	}
	if _, exists := p.connections[name]; exists {
		return connectionError(ErrConnectionAlreadyExists, name)
	}
	if _, err := p.Transaction(toTx); err != nil {
		return err
	}

	inIdx, err := p.resolveInputSpec(toTx, inSpec, PrevTxid(prevTxid, value, script), vout)
	if err != nil {
		return err
	}

	conn := &Connection{Name: name, From: "", Out: int(vout), To: toTx, In: inIdx}
	p.connections[name] = conn
	p.connOrder = append(p.connOrder, name)
	return nil
}

// SetSequenceOverride rewrites the sequence of the input connName bound
// and records the override on the connection for introspection
// (Connection.SequenceOverride, §3's "optional sequence override"). Needed
// whenever a connection's default max-sequence (set by AddConnection's
// Auto input path) must
// instead encode a BIP-68 relative locktime, as AddTimelockConnection does
// automatically for its own CSV branch.
func (p *Protocol) SetSequenceOverride(connName string, sequence uint32) error {
	conn, ok := p.connections[connName]
	if !ok {
		return connectionError(ErrConnectionMissing, connName)
	}
	return p.setSequenceOverride(conn, sequence)
}

func (p *Protocol) setSequenceOverride(conn *Connection, sequence uint32) error {
	toTx, err := p.Transaction(conn.To)
	if err != nil {
		return err
	}
	if conn.In < 0 || conn.In >= len(toTx.Inputs) {
		return connectionError(ErrInputIndexOutOfRange, conn.To)
	}
	p.demote()
	toTx.Inputs[conn.In].Sequence = sequence
	seq := sequence
	conn.SequenceOverride = &seq
	return nil
}

// SetValueOverride rewrites the value of the output connName's source
// binds to and records the override on the connection for introspection
// (Connection.ValueOverride, §3's "optional value override"). Overriding
// an external connection's value is not possible — its output lives
// outside the graph — and returns an error.
func (p *Protocol) SetValueOverride(connName string, value int64) error {
	conn, ok := p.connections[connName]
	if !ok {
		return connectionError(ErrConnectionMissing, connName)
	}
	if conn.From == "" {
		return fmt.Errorf("graph: cannot override the value of external connection %q", connName)
	}
	fromTx, err := p.Transaction(conn.From)
	if err != nil {
		return err
	}
	if conn.Out < 0 || conn.Out >= len(fromTx.Outputs) {
		return connectionError(ErrOutputIndexOutOfRange, conn.From)
	}
	p.demote()
	fromTx.Outputs[conn.Out].Value = value
	v := value
	conn.ValueOverride = &v
	return nil
}

func (p *Protocol) resolveOutputSpec(txName string, tx *Transaction, spec OutputSpec) (int, error) {
	switch spec.kind {
	case specIndex:
		if spec.index < 0 || spec.index >= len(tx.Outputs) {
			return 0, connectionError(ErrOutputIndexOutOfRange, txName)
		}
		return spec.index, nil
	case specLast:
		if len(tx.Outputs) == 0 {
			return 0, connectionError(ErrOutputIndexOutOfRange, txName)
		}
		return len(tx.Outputs) - 1, nil
	case specAuto:
		return p.AddOutput(txName, spec.auto, AutoAmount)
	default:
		return 0, connectionError(ErrOutputIndexOutOfRange, txName)
	}
}

func (p *Protocol) resolveInputSpec(txName string, spec InputSpec, prev PrevRef, vout uint32) (int, error) {
	switch spec.kind {
	case specIndex:
		tx, err := p.Transaction(txName)
		if err != nil {
			return 0, err
		}
		if spec.index < 0 || spec.index >= len(tx.Inputs) {
			return 0, connectionError(ErrInputIndexOutOfRange, txName)
		}
		return spec.index, nil
	case specAuto:
		return p.AddInput(txName, prev, vout, 0xffffffff, spec.spendMode, spec.sighashType)
	default:
		return 0, connectionError(ErrInputIndexOutOfRange, txName)
	}
}

// TxName returns the synthesized name "<prefix>_<round>" used by AddRounds,
// exposed so callers can refer back into a round without recomputing it.
func TxName(prefix string, round int) string {
	return prefix + "_" + strconv.Itoa(round)
}
