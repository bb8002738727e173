package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed or missing source fields.
	ErrValidation = errors.New("validation failed")
	// ErrLookup indicates an unresolvable cost center or catalog cross-reference.
	ErrLookup = errors.New("lookup failed")
	// ErrUnmatchedProduct indicates a material with no ledger stock record.
	ErrUnmatchedProduct = errors.New("no ledger product matches material")
	// ErrInsufficientStock indicates a posting that would drive on-hand stock negative.
	ErrInsufficientStock = errors.New("insufficient stock on hand")
	// ErrRemoteCall indicates a non-2xx or transport failure from a remote system.
	ErrRemoteCall = errors.New("remote call failed")
	// ErrStore indicates a persistence failure.
	ErrStore = errors.New("state store failure")
	// ErrParse indicates a display string without a bracketed reference code.
	ErrParse = errors.New("reference code not found")
	// ErrFinalize indicates a journal entry that was created but left in draft.
	ErrFinalize = errors.New("journal entry created but not finalized")
	// ErrNotFound indicates a missing record or remote resource.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates a rejected caller credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// OrderError attaches the order or request identity to a processing failure.
type OrderError struct {
	ID   string
	Type string
	Err  error
}

func (e *OrderError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("order %s: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("%s order %s: %v", e.Type, e.ID, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// WrapOrder returns err annotated with the order context, or nil.
func WrapOrder(id, typ string, err error) error {
	if err == nil {
		return nil
	}
	var existing *OrderError
	if errors.As(err, &existing) && existing.ID == id {
		return err
	}
	return &OrderError{ID: id, Type: typ, Err: err}
}

// RemoteError describes a failed call against the field or ledger system.
type RemoteError struct {
	System  string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.System, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.System, e.Message)
}

// Is lets errors.Is(err, ErrRemoteCall) match every RemoteError.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteCall
}

// Validationf builds an ErrValidation with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Lookupf builds an ErrLookup with a formatted detail.
func Lookupf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLookup, fmt.Sprintf(format, args...))
}

// preLedgerError marks a failure that happened before anything was written
// to the ledger.
type preLedgerError struct {
	err error
}

func (e *preLedgerError) Error() string { return e.err.Error() }
func (e *preLedgerError) Unwrap() error { return e.err }

// BeforeLedger marks err as raised before any ledger write, so the caller may
// restore its mirror and retry the item on the next run. Nil stays nil.
func BeforeLedger(err error) error {
	if err == nil || IsBeforeLedger(err) {
		return err
	}
	return &preLedgerError{err: err}
}

// IsBeforeLedger reports whether err, or anything it wraps, was marked by
// BeforeLedger.
func IsBeforeLedger(err error) bool {
	var marked *preLedgerError
	return errors.As(err, &marked)
}
