package graph

import (
	"errors"
	"fmt"
)

// Structural errors (§7).
var (
	ErrTransactionMissing      = errors.New("graph: transaction missing")
	ErrTransactionAlreadyExists = errors.New("graph: transaction already exists")
	ErrConnectionMissing       = errors.New("graph: connection missing")
	ErrConnectionAlreadyExists = errors.New("graph: connection already exists")
	ErrOutputIndexOutOfRange   = errors.New("graph: output index out of range")
	ErrInputIndexOutOfRange    = errors.New("graph: input index out of range")
	ErrOutputAlreadyConsumed   = errors.New("graph: output already consumed")

	// Amount errors.
	ErrUnresolvedSentinel     = errors.New("graph: unresolved amount sentinel")
	ErrMultipleRecoverOutputs = errors.New("graph: multiple RECOVER_AMOUNT outputs on one transaction")

	// State errors.
	ErrNotBuilt = errors.New("graph: operation requires a built protocol")

	// Signing errors.
	ErrUnsupportedSignMode = errors.New("graph: unsupported sign mode")
	ErrMissingSigningKey   = errors.New("graph: missing signing key")

	// Assembly errors.
	ErrInconsistentSpendChoice = errors.New("graph: spend choice inconsistent with input's spend mode")
)

// CycleDetected reports that the dependency resolver could not order the
// named internal transactions: the members of a cycle plus any transaction
// downstream of one, listed in insertion order.
type CycleDetected struct {
	Names []string
}

func (e *CycleDetected) Error() string {
	return fmt.Sprintf("graph: cycle detected among transactions %v", e.Names)
}

// AutoAmountUnderflow reports that an AUTO_AMOUNT output's computed
// fee-sufficient value exceeds what its parent subtree has available.
type AutoAmountUnderflow struct {
	Tx        string
	Output    int
	Required  int64
	Available int64
}

func (e *AutoAmountUnderflow) Error() string {
	return fmt.Sprintf("graph: auto-amount underflow on %s output %d: need %d, have %d",
		e.Tx, e.Output, e.Required, e.Available)
}

// SigningFailed wraps an error returned by the key-manager collaborator
// with the slot that was being signed.
type SigningFailed struct {
	Tx      string
	Input   int
	Variant Variant
	Cause   error
}

func (e *SigningFailed) Error() string {
	return fmt.Sprintf("graph: signing failed for %s input %d (%s): %v", e.Tx, e.Input, e.Variant, e.Cause)
}

func (e *SigningFailed) Unwrap() error { return e.Cause }

// MissingSignature names the exact witness slot the assembler could not
// find a signature for.
type MissingSignature struct {
	Tx      string
	Input   int
	Variant Variant
}

func (e *MissingSignature) Error() string {
	return fmt.Sprintf("graph: missing signature for %s input %d (%s)", e.Tx, e.Input, e.Variant)
}

// transactionError and connectionError attach a name to a sentinel so
// callers get a useful message while still being able to errors.Is the
// sentinel.
func transactionError(sentinel error, name string) error {
	return fmt.Errorf("%w: %s", sentinel, name)
}

func connectionError(sentinel error, name string) error {
	return fmt.Errorf("%w: %s", sentinel, name)
}
