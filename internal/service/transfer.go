// Package service holds the transfer orchestrator: resolve the receiver
// token, validate both funding sources, execute the rail transfer, then
// record the ledger entry on the primary store with automatic failover to
// the document store. Money has already moved by the time recording
// starts, so the recording steps run detached from the caller's
// cancellation and always reach a terminal state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/railbridge/internal/domain"
	"github.com/punchamoorthee/railbridge/internal/fundsource"
	"github.com/punchamoorthee/railbridge/internal/rail"
	"github.com/punchamoorthee/railbridge/internal/token"
)

// Metrics
var (
	transferOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railbridge_transfer_outcomes_total",
		Help: "Terminal transfer outcomes by kind",
	}, []string{"outcome"})

	fallbackWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "railbridge_ledger_fallback_writes_total",
		Help: "Ledger entries recorded on the fallback store",
	})
)

// Orchestration states. A run moves strictly forward; once a confirmation
// handle exists it can never re-enter stateTransferring.
type runState int

const (
	stateValidating runState = iota
	stateTransferring
	stateRecordingPrimary
	stateRecordingFallback
	stateDone
)

func (s runState) String() string {
	switch s {
	case stateValidating:
		return "validating"
	case stateTransferring:
		return "transferring"
	case stateRecordingPrimary:
		return "recording_primary"
	case stateRecordingFallback:
		return "recording_fallback"
	case stateDone:
		return "done"
	}
	return "unknown"
}

// RecordingFailedError: the transfer is externally committed but neither
// store holds a local trace. Recoverable but urgent; it carries the rail
// confirmation handle so an operator can locate the committed transfer.
type RecordingFailedError struct {
	RailLocation string
	PrimaryErr   error
	FallbackErr  error
}

func (e *RecordingFailedError) Error() string {
	return fmt.Sprintf("transfer committed at %s but recording failed on both stores: primary: %v; fallback: %v",
		e.RailLocation, e.PrimaryErr, e.FallbackErr)
}

// BankDirectory is the lookup collaborator. Absent records come back as
// (nil, nil).
type BankDirectory interface {
	GetByLocalID(ctx context.Context, id int64) (*domain.BankRecord, error)
	GetByAccountID(ctx context.Context, accountID string) (*domain.BankRecord, error)
}

// RailClient executes a single transfer on the external payment rail.
type RailClient interface {
	Transfer(ctx context.Context, sourceURL, destinationURL, amount string) (*rail.TransferResult, error)
}

type Orchestrator struct {
	banks    BankDirectory
	rail     RailClient
	primary  domain.LedgerStore
	fallback domain.LedgerStore
}

func NewOrchestrator(banks BankDirectory, railClient RailClient, primary, fallback domain.LedgerStore) *Orchestrator {
	return &Orchestrator{banks: banks, rail: railClient, primary: primary, fallback: fallback}
}

// InitiateTransfer runs one request through the state machine. The
// returned error is one of: *fundsource.ValidationError, *rail.RejectedError,
// *rail.IndeterminateError, *RecordingFailedError, or an internal error
// from the directory lookups.
func (o *Orchestrator) InitiateTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	state := stateValidating

	// 1. Validate the request before anything leaves the process.
	amount, err := parseAmount(req.Amount)
	if err != nil {
		transferOutcomes.WithLabelValues("validation_rejected").Inc()
		return nil, err
	}

	receiverAccountID, err := token.Decode(req.ReceiverToken)
	if err != nil {
		// Decode failure is user-reachable input, not an internal fault.
		transferOutcomes.WithLabelValues("validation_rejected").Inc()
		return nil, &fundsource.ValidationError{Side: fundsource.SideRequest, Reason: "receiver token invalid", Err: err}
	}

	sender, err := o.banks.GetByLocalID(ctx, req.SenderBankID)
	if err != nil {
		return nil, fmt.Errorf("sender lookup failed: %w", err)
	}
	if sender == nil {
		transferOutcomes.WithLabelValues("validation_rejected").Inc()
		return nil, &fundsource.ValidationError{Side: fundsource.SideSender, Reason: "bank record not found"}
	}

	receiver, err := o.banks.GetByAccountID(ctx, receiverAccountID)
	if err != nil {
		return nil, fmt.Errorf("receiver lookup failed: %w", err)
	}
	if receiver == nil {
		transferOutcomes.WithLabelValues("validation_rejected").Inc()
		return nil, &fundsource.ValidationError{Side: fundsource.SideReceiver, Reason: "no bank record for shareable token"}
	}

	// Both sides are checked before the rail call; a receiver-side
	// problem must not cost an external round trip.
	if err := fundsource.Validate(fundsource.SideSender, sender); err != nil {
		transferOutcomes.WithLabelValues("validation_rejected").Inc()
		return nil, err
	}
	if err := fundsource.Validate(fundsource.SideReceiver, receiver); err != nil {
		transferOutcomes.WithLabelValues("validation_rejected").Inc()
		return nil, err
	}

	senderOwner, _ := sender.Owner.Normalize()
	receiverOwner, _ := receiver.Owner.Normalize()

	// 2. Execute on the rail. No retry at this layer in any direction.
	state = stateTransferring
	railResult, err := o.rail.Transfer(ctx, sender.FundingSourceURL, receiver.FundingSourceURL, amount)
	if err != nil {
		var indeterminate *rail.IndeterminateError
		if errors.As(err, &indeterminate) {
			transferOutcomes.WithLabelValues("indeterminate").Inc()
		} else {
			transferOutcomes.WithLabelValues("rail_rejected").Inc()
		}
		return nil, err
	}

	// Externally committed from here on. The entry id is fixed before any
	// store write so both stores key the same logical transfer, and
	// recording is detached from the caller's cancellation: abandoning it
	// would lose the only local trace.
	entry := domain.LedgerEntry{
		EntryID:         uuid.NewString(),
		SenderOwnerID:   senderOwner,
		ReceiverOwnerID: receiverOwner,
		SenderBankID:    sender.ID,
		ReceiverBankID:  receiver.ID,
		Name:            req.Note,
		Amount:          amount,
		Direction:       domain.DirectionDebit,
		Category:        domain.CategoryTransfer,
		Channel:         domain.ChannelOnline,
		Pending:         false,
		OccurredAt:      time.Now().UTC(),
		InitiatorEmail:  req.InitiatorEmail,
	}
	recordCtx := context.WithoutCancel(ctx)

	state = stateRecordingPrimary
	stored, primaryErr := o.primary.Record(recordCtx, entry)
	if primaryErr == nil {
		transferOutcomes.WithLabelValues("success").Inc()
		return &domain.TransferResult{Entry: stored, RailLocation: railResult.Location, UsedFallback: false}, nil
	}
	log.Printf("primary ledger write failed for entry %s (state=%s): %v", entry.EntryID, state, primaryErr)

	// An ambiguous primary failure (timeout after a possible commit) still
	// falls through: both copies share the entry id, so the worst case is
	// a detectable duplicate in the fallback, not a lost transfer.
	state = stateRecordingFallback
	stored, fallbackErr := o.fallback.Record(recordCtx, entry)
	if fallbackErr == nil {
		fallbackWrites.Inc()
		transferOutcomes.WithLabelValues("success").Inc()
		state = stateDone
		log.Printf("entry %s recorded on fallback store (state=%s)", entry.EntryID, state)
		return &domain.TransferResult{Entry: stored, RailLocation: railResult.Location, UsedFallback: true}, nil
	}

	transferOutcomes.WithLabelValues("recording_failed").Inc()
	return nil, &RecordingFailedError{
		RailLocation: railResult.Location,
		PrimaryErr:   primaryErr,
		FallbackErr:  fallbackErr,
	}
}

// ListByBankID reads entries for a bank record, falling to the document
// store when the primary is unavailable. Entries that only ever reached
// the fallback stay visible during a primary outage; merging across
// stores is left to reconciliation tooling.
func (o *Orchestrator) ListByBankID(ctx context.Context, bankID int64) (*domain.EntryPage, error) {
	page, err := o.primary.ListByBankID(ctx, bankID)
	if err == nil {
		return page, nil
	}
	var unavailable *domain.StoreUnavailableError
	if !errors.As(err, &unavailable) {
		return nil, err
	}
	log.Printf("primary ledger list failed, reading fallback: %v", err)
	return o.fallback.ListByBankID(ctx, bankID)
}

// GetBank exposes directory lookups to the HTTP layer.
func (o *Orchestrator) GetBank(ctx context.Context, id int64) (*domain.BankRecord, error) {
	return o.banks.GetByLocalID(ctx, id)
}

func parseAmount(raw string) (string, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return "", &fundsource.ValidationError{Side: fundsource.SideRequest, Reason: "amount is not a number"}
	}
	if !d.IsPositive() {
		return "", &fundsource.ValidationError{Side: fundsource.SideRequest, Reason: "amount must be positive"}
	}
	return d.StringFixed(2), nil
}
