package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/punchamoorthee/railbridge/internal/domain"
	"github.com/punchamoorthee/railbridge/internal/fundsource"
	"github.com/punchamoorthee/railbridge/internal/rail"
	"github.com/punchamoorthee/railbridge/internal/token"
)

// Fakes

type fakeDirectory struct {
	byID      map[int64]*domain.BankRecord
	byAccount map[string]*domain.BankRecord
}

func (d *fakeDirectory) GetByLocalID(_ context.Context, id int64) (*domain.BankRecord, error) {
	return d.byID[id], nil
}

func (d *fakeDirectory) GetByAccountID(_ context.Context, accountID string) (*domain.BankRecord, error) {
	return d.byAccount[accountID], nil
}

type fakeRail struct {
	calls  int
	result *rail.TransferResult
	err    error
	onCall func()
}

func (r *fakeRail) Transfer(_ context.Context, _, _, _ string) (*rail.TransferResult, error) {
	r.calls++
	if r.onCall != nil {
		r.onCall()
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

type fakeStore struct {
	name     string
	calls    int
	err      error
	recorded []domain.LedgerEntry
	ctxErr   error
}

func (s *fakeStore) Name() string { return s.name }

func (s *fakeStore) Record(ctx context.Context, entry domain.LedgerEntry) (*domain.StoredEntry, error) {
	s.calls++
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return nil, s.err
	}
	s.recorded = append(s.recorded, entry)
	return &domain.StoredEntry{LedgerEntry: entry, RowID: int64(len(s.recorded))}, nil
}

func (s *fakeStore) ListByBankID(_ context.Context, bankID int64) (*domain.EntryPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	var sent, received []domain.StoredEntry
	for i, e := range s.recorded {
		stored := domain.StoredEntry{LedgerEntry: e, RowID: int64(i + 1)}
		switch {
		case e.SenderBankID == bankID:
			sent = append(sent, stored)
		case e.ReceiverBankID == bankID:
			received = append(received, stored)
		}
	}
	return &domain.EntryPage{Total: len(sent) + len(received), Entries: append(sent, received...)}, nil
}

// Fixture

func bank(id int64, accountID, owner string) *domain.BankRecord {
	return &domain.BankRecord{
		ID:               id,
		Owner:            domain.OwnerString(owner),
		AccountID:        accountID,
		FundingSourceURL: fmt.Sprintf("https://rail.example.com/funding-sources/fs-%d", id),
	}
}

type fixture struct {
	orch     *Orchestrator
	rail     *fakeRail
	primary  *fakeStore
	fallback *fakeStore
}

func newFixture() *fixture {
	sender := bank(1, "acct-sender", "user-sender")
	receiver := bank(2, "acct-receiver", "user-receiver")
	dir := &fakeDirectory{
		byID:      map[int64]*domain.BankRecord{1: sender, 2: receiver},
		byAccount: map[string]*domain.BankRecord{"acct-sender": sender, "acct-receiver": receiver},
	}
	r := &fakeRail{result: &rail.TransferResult{Location: "https://rail.example.com/transfers/t-1"}}
	primary := &fakeStore{name: "postgres"}
	fallback := &fakeStore{name: "document"}
	return &fixture{
		orch:     NewOrchestrator(dir, r, primary, fallback),
		rail:     r,
		primary:  primary,
		fallback: fallback,
	}
}

func validRequest() domain.TransferRequest {
	return domain.TransferRequest{
		SenderBankID:   1,
		ReceiverToken:  token.Encode("acct-receiver"),
		Amount:         "25.5",
		Note:           "lunch money",
		InitiatorEmail: "sender@example.com",
	}
}

// Scenario A: everything works, primary records.
func TestTransferSuccessPrimary(t *testing.T) {
	f := newFixture()

	res, err := f.orch.InitiateTransfer(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedFallback {
		t.Fatal("primary succeeded yet fallback flagged")
	}
	if res.RailLocation != "https://rail.example.com/transfers/t-1" {
		t.Fatalf("rail location=%q", res.RailLocation)
	}
	if f.fallback.calls != 0 {
		t.Fatalf("fallback called %d times", f.fallback.calls)
	}

	entry := res.Entry
	if entry.EntryID == "" {
		t.Fatal("entry id missing")
	}
	if entry.Amount != "25.50" {
		t.Fatalf("amount=%q want fixed-point 25.50", entry.Amount)
	}
	if entry.Direction != domain.DirectionDebit || entry.Category != domain.CategoryTransfer || entry.Channel != domain.ChannelOnline {
		t.Fatalf("defaults wrong: %+v", entry)
	}
	if entry.Pending {
		t.Fatal("rail confirmed, entry must not be pending")
	}
	if entry.SenderOwnerID != "user-sender" || entry.ReceiverOwnerID != "user-receiver" {
		t.Fatalf("owners: %+v", entry)
	}

	// The entry is visible from both sides' histories.
	for _, bankID := range []int64{1, 2} {
		page, err := f.orch.ListByBankID(context.Background(), bankID)
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 1 {
			t.Fatalf("bank %d: total=%d", bankID, page.Total)
		}
	}
}

// Scenario B: primary down, fallback records.
func TestTransferFallsBackOnPrimaryFailure(t *testing.T) {
	f := newFixture()
	f.primary.err = &domain.StoreUnavailableError{Store: "postgres", Err: errors.New("connection refused")}

	res, err := f.orch.InitiateTransfer(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if !res.UsedFallback {
		t.Fatal("fallback write must be flagged for reconciliation")
	}
	if len(f.fallback.recorded) != 1 {
		t.Fatalf("fallback recorded %d entries", len(f.fallback.recorded))
	}

	// Read side mirrors the write fallback while the primary is down.
	page, err := f.orch.ListByBankID(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 {
		t.Fatalf("total=%d", page.Total)
	}
}

// Scenario C: rail rejects the destination; nothing is recorded.
func TestTransferRailRejection(t *testing.T) {
	f := newFixture()
	f.rail.err = &rail.RejectedError{Kind: rail.KindDestination, Detail: "funding source not verified"}

	_, err := f.orch.InitiateTransfer(context.Background(), validRequest())

	var rejected *rail.RejectedError
	if !errors.As(err, &rejected) || rejected.Kind != rail.KindDestination {
		t.Fatalf("want destination rejection, got %v", err)
	}
	if f.primary.calls != 0 || f.fallback.calls != 0 {
		t.Fatalf("stores touched: primary=%d fallback=%d", f.primary.calls, f.fallback.calls)
	}
}

// Scenario D: rail outcome unknown; surfaced distinctly, nothing recorded.
func TestTransferIndeterminate(t *testing.T) {
	f := newFixture()
	f.rail.err = &rail.IndeterminateError{Detail: "no response from rail"}

	_, err := f.orch.InitiateTransfer(context.Background(), validRequest())

	var indeterminate *rail.IndeterminateError
	if !errors.As(err, &indeterminate) {
		t.Fatalf("want IndeterminateError, got %v", err)
	}
	var rejected *rail.RejectedError
	if errors.As(err, &rejected) {
		t.Fatal("indeterminate must never look like a rejection")
	}
	if f.primary.calls != 0 || f.fallback.calls != 0 {
		t.Fatal("stores must not be touched on an indeterminate rail outcome")
	}
}

// Scenario E: rail commits, both stores fail.
func TestTransferRecordingFailed(t *testing.T) {
	f := newFixture()
	f.primary.err = &domain.StoreUnavailableError{Store: "postgres", Err: errors.New("down")}
	f.fallback.err = &domain.StoreUnavailableError{Store: "document", Err: errors.New("disk full")}

	_, err := f.orch.InitiateTransfer(context.Background(), validRequest())

	var recording *RecordingFailedError
	if !errors.As(err, &recording) {
		t.Fatalf("want RecordingFailedError, got %v", err)
	}
	if recording.RailLocation != "https://rail.example.com/transfers/t-1" {
		t.Fatalf("confirmation handle lost: %q", recording.RailLocation)
	}
}

func TestTransferAmountValidation(t *testing.T) {
	f := newFixture()

	for _, amount := range []string{"0", "-5", "0.00", "not-a-number", ""} {
		req := validRequest()
		req.Amount = amount
		_, err := f.orch.InitiateTransfer(context.Background(), req)

		var verr *fundsource.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("amount %q: want ValidationError, got %v", amount, err)
		}
	}
	if f.rail.calls != 0 {
		t.Fatalf("rail invoked %d times for invalid amounts", f.rail.calls)
	}
}

func TestTransferMalformedToken(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.ReceiverToken = "definitely-not-a-token"

	_, err := f.orch.InitiateTransfer(context.Background(), req)
	if !errors.Is(err, token.ErrMalformedToken) {
		t.Fatalf("want ErrMalformedToken in chain, got %v", err)
	}
	var verr *fundsource.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("decode failure is request validation, got %v", err)
	}
	if f.rail.calls != 0 {
		t.Fatal("rail invoked on malformed token")
	}
}

func TestTransferUnknownBanks(t *testing.T) {
	f := newFixture()

	req := validRequest()
	req.SenderBankID = 99
	_, err := f.orch.InitiateTransfer(context.Background(), req)
	var verr *fundsource.ValidationError
	if !errors.As(err, &verr) || verr.Side != fundsource.SideSender {
		t.Fatalf("want sender validation error, got %v", err)
	}

	req = validRequest()
	req.ReceiverToken = token.Encode("acct-unknown")
	_, err = f.orch.InitiateTransfer(context.Background(), req)
	if !errors.As(err, &verr) || verr.Side != fundsource.SideReceiver {
		t.Fatalf("want receiver validation error, got %v", err)
	}
	if f.rail.calls != 0 {
		t.Fatal("rail invoked for unknown banks")
	}
}

func TestTransferIneligibleReceiverSkipsRail(t *testing.T) {
	f := newFixture()
	receiver := bank(2, "acct-receiver", "user-receiver")
	receiver.FundingSourceURL = "https://rail.example.com/customers/c-2" // outside namespace
	dir := &fakeDirectory{
		byID:      map[int64]*domain.BankRecord{1: bank(1, "acct-sender", "user-sender"), 2: receiver},
		byAccount: map[string]*domain.BankRecord{"acct-receiver": receiver},
	}
	f.orch = NewOrchestrator(dir, f.rail, f.primary, f.fallback)

	_, err := f.orch.InitiateTransfer(context.Background(), validRequest())
	var verr *fundsource.ValidationError
	if !errors.As(err, &verr) || verr.Side != fundsource.SideReceiver {
		t.Fatalf("want receiver validation, got %v", err)
	}
	if f.rail.calls != 0 {
		t.Fatal("ineligible record reached the rail")
	}
}

func TestRecordingDetachedFromCallerCancellation(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	// The caller goes away while the rail call is in flight; the transfer
	// is externally committed so recording must still happen.
	f.rail.onCall = cancel

	res, err := f.orch.InitiateTransfer(ctx, validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedFallback {
		t.Fatal("unexpected fallback")
	}
	if f.primary.calls != 1 {
		t.Fatalf("primary calls=%d", f.primary.calls)
	}
	if f.primary.ctxErr != nil {
		t.Fatalf("recording context carried cancellation: %v", f.primary.ctxErr)
	}
}

func TestFallbackReceivesSameEntryID(t *testing.T) {
	f := newFixture()
	f.primary.err = errors.New("ambiguous timeout")

	res, err := f.orch.InitiateTransfer(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if !res.UsedFallback {
		t.Fatal("expected fallback write")
	}
	if len(f.fallback.recorded) != 1 {
		t.Fatalf("fallback recorded %d", len(f.fallback.recorded))
	}
	if f.fallback.recorded[0].EntryID != res.Entry.EntryID {
		t.Fatal("fallback must reuse the entry id generated before recording")
	}
}

func TestListFallsBackOnlyOnUnavailable(t *testing.T) {
	f := newFixture()
	f.primary.err = errors.New("syntax error") // not a StoreUnavailableError

	if _, err := f.orch.ListByBankID(context.Background(), 1); err == nil {
		t.Fatal("non-availability errors must propagate, not fall back")
	}
}
