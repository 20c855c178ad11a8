package graph

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// signScheme distinguishes which signature algorithm family a SignSpec
// resolves to: SegwitSpend always wants ECDSA, every Taproot slot
// (key-path or script-path) wants Schnorr/MuSig2/Winternitz.
type signScheme int

const (
	schemeECDSA signScheme = iota
	schemeTaproot
)

// Sign derives every signature the built protocol's spend modes require,
// routing each sighash to the bound KeyManager (§4.1 component 5), and
// promotes the protocol to Signed. Build must have already run in the
// current generation.
func (p *Protocol) Sign(ctx context.Context) error {
	if err := p.requireBuilt(); err != nil {
		return err
	}
	if p.keyManager == nil {
		return ErrMissingSigningKey
	}

	for _, name := range p.topo {
		tx := p.txs[name]
		for inputIdx, in := range tx.Inputs {
			if err := p.signInput(ctx, name, inputIdx, in); err != nil {
				return err
			}
		}
	}

	p.state = stateSigned
	return nil
}

func (p *Protocol) signInput(ctx context.Context, txName string, inputIdx int, in *Input) error {
	in.Signatures = make(map[Variant][]byte)

	switch mode := in.SpendMode.(type) {
	case SegwitSpend:
		variant := Variant{Kind: VariantSegwit}
		sig, err := p.signSpec(ctx, mode.Sign, schemeECDSA, in.Sighashes[variant])
		if err != nil {
			return &SigningFailed{Tx: txName, Input: inputIdx, Variant: variant, Cause: err}
		}
		if sig != nil {
			in.Signatures[variant] = sig
		}

	case KeyOnlySpend:
		variant := Variant{Kind: VariantKeyPath}
		sig, err := p.signSpec(ctx, mode.KeyPathSign, schemeTaproot, in.Sighashes[variant])
		if err != nil {
			return &SigningFailed{Tx: txName, Input: inputIdx, Variant: variant, Cause: err}
		}
		if sig != nil {
			in.Signatures[variant] = sig
		}

	case ScriptsSpend:
		outType, ok := p.prevOutputType(in)
		if !ok {
			return transactionError(ErrTransactionMissing, in.PrevTx)
		}
		taproot, ok := outType.(TaprootOutput)
		if !ok {
			return transactionError(ErrOutputIndexOutOfRange, in.PrevTx)
		}
		for _, leafIdx := range mode.Leaves {
			if leafIdx < 0 || leafIdx >= len(taproot.Leaves) {
				return transactionError(ErrOutputIndexOutOfRange, in.PrevTx)
			}
			variant := Variant{Kind: VariantLeaf, LeafIndex: leafIdx}
			spec := taproot.Leaves[leafIdx].Sign
			sig, err := p.signSpec(ctx, spec, schemeTaproot, in.Sighashes[variant])
			if err != nil {
				return &SigningFailed{Tx: txName, Input: inputIdx, Variant: variant, Cause: err}
			}
			if sig != nil {
				in.Signatures[variant] = sig
			}
		}
	}
	return nil
}

// signSpec dispatches one signature request to the key manager per the
// slot's SignMode and signing scheme. A nil sighash (SignSkip with no
// sighash computed) or SignSkip itself produces no signature and no error.
func (p *Protocol) signSpec(ctx context.Context, spec SignSpec, scheme signScheme, sighash *chainhash.Hash) ([]byte, error) {
	switch spec.Mode {
	case SignSkip:
		return nil, nil
	case SignSingle:
		if sighash == nil {
			return nil, ErrUnsupportedSignMode
		}
		if scheme == schemeECDSA {
			return p.keyManager.SignECDSA(ctx, spec.KeyIndex, *sighash)
		}
		return p.keyManager.SignSchnorr(ctx, spec.KeyIndex, *sighash)
	case SignAggregate:
		if sighash == nil {
			return nil, ErrUnsupportedSignMode
		}
		if scheme != schemeTaproot {
			return nil, ErrUnsupportedSignMode
		}
		return p.keyManager.SignMuSig2(ctx, spec.Participants, spec.Coordinator, *sighash)
	case SignWinternitz:
		if sighash == nil {
			return nil, ErrUnsupportedSignMode
		}
		return p.keyManager.SignWinternitz(ctx, spec.KeyIndex, spec.WinternitzHashType, sighash[:])
	default:
		return nil, ErrUnsupportedSignMode
	}
}
