package graph

import "context"

// Build runs the finalization pipeline (§4.1, §4.2): resolve a dependency
// order, back-fill AUTO_AMOUNT/RECOVER_AMOUNT outputs, propagate txids in
// that order, then derive every input's sighash. On success the protocol
// moves from Mutable to Built. Any mutation afterward demotes it back to
// Mutable (Protocol.demote), discarding everything computed here.
func (p *Protocol) Build() error {
	order, err := p.resolve()
	if err != nil {
		return err
	}
	if err := p.resolveAmounts(order); err != nil {
		return err
	}
	if err := p.propagateTxids(order); err != nil {
		return err
	}
	for _, name := range order {
		if err := p.deriveSighashes(p.txs[name]); err != nil {
			return err
		}
	}

	p.topo = order
	p.state = stateBuilt
	p.log.Debug("build complete", "protocol", p.Name, "transactions", len(order))
	return nil
}

// BuildAndSign runs Build followed by Sign, matching the CLI's
// build-and-sign subcommand and the common case of a caller who always
// wants a fully signed graph.
func (p *Protocol) BuildAndSign(ctx context.Context) error {
	if err := p.Build(); err != nil {
		return err
	}
	return p.Sign(ctx)
}
