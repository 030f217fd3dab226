package domain

import (
	"context"
	"fmt"
)

// LedgerStore is the capability both ledger backends implement. The
// orchestrator composes two independent implementations by explicit
// sequential fallback, never by runtime type inspection.
type LedgerStore interface {
	// Record persists one entry. Primary implementations upsert on EntryID;
	// the fallback appends unconditionally.
	Record(ctx context.Context, entry LedgerEntry) (*StoredEntry, error)

	// ListByBankID returns entries where the bank is either side of the
	// transfer, sender-side matches first.
	ListByBankID(ctx context.Context, bankID int64) (*EntryPage, error)

	// Name identifies the backend in logs and errors.
	Name() string
}

// StoreUnavailableError marks a ledger store that could not serve the call
// (connection failure, timeout, schema trouble). It is what triggers the
// write-side and read-side fallback.
type StoreUnavailableError struct {
	Store string
	Err   error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("ledger store %s unavailable: %v", e.Store, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }
