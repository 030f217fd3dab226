package domain

import "time"

// Transfer direction from the perspective of the initiating side.
const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

// Defaults applied to every ledger entry written by the transfer flow.
const (
	CategoryTransfer = "Transfer"
	ChannelOnline    = "online"
)

// BankRecord is a linked bank account capable of sending or receiving funds.
// Records are created by the account-linking flow and are read-only here.
type BankRecord struct {
	ID               int64    `json:"id"`
	Owner            OwnerRef `json:"owner"`
	AccountID        string   `json:"account_id"`
	FundingSourceURL string   `json:"funding_source_url"`
	ShareableToken   string   `json:"shareable_token"`
}

// TransferRequest is the input to one orchestration run. It is consumed
// once and never persisted.
type TransferRequest struct {
	SenderBankID   int64  `json:"sender_bank_id"`
	ReceiverToken  string `json:"receiver_token"`
	Amount         string `json:"amount"`
	Note           string `json:"note"`
	InitiatorEmail string `json:"email"`
}

// LedgerEntry is the durable record of a transfer, independent of which
// store holds it. EntryID is generated before any store write so the same
// logical transfer lands under the same key everywhere.
type LedgerEntry struct {
	EntryID         string    `json:"entry_id"`
	SenderOwnerID   string    `json:"sender_id"`
	ReceiverOwnerID string    `json:"receiver_id"`
	SenderBankID    int64     `json:"sender_bank_id"`
	ReceiverBankID  int64     `json:"receiver_bank_id"`
	Name            string    `json:"name"`
	Amount          string    `json:"amount"`
	Direction       string    `json:"type"`
	Category        string    `json:"category"`
	Channel         string    `json:"channel"`
	Pending         bool      `json:"pending"`
	OccurredAt      time.Time `json:"date"`
	InitiatorEmail  string    `json:"email"`
}

// StoredEntry is a LedgerEntry as persisted, with store-assigned metadata.
type StoredEntry struct {
	LedgerEntry
	RowID     int64     `json:"row_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryPage is the result of listing entries for a bank record. Total is
// the sum of sender-side and receiver-side matches; a transfer is
// intentionally visible from both histories, so no deduplication happens.
type EntryPage struct {
	Total   int           `json:"total"`
	Entries []StoredEntry `json:"documents"`
}

// TransferResult is the success outcome of one orchestration run.
// UsedFallback marks entries that bypassed the primary store so
// reconciliation tooling can pick them up.
type TransferResult struct {
	Entry        *StoredEntry `json:"entry"`
	RailLocation string       `json:"rail_location"`
	UsedFallback bool         `json:"used_fallback"`
}

// CategorySummary is the bucket shape the reporting layer consumes.
type CategorySummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SummarizeCategories counts entries per category. Entries written by this
// core always carry a category, but anything blank is folded into the
// Transfer bucket so the consumer never sees an unnamed slice.
func SummarizeCategories(entries []StoredEntry) []CategorySummary {
	counts := map[string]int{}
	order := []string{}
	for _, e := range entries {
		name := e.Category
		if name == "" {
			name = CategoryTransfer
		}
		if _, ok := counts[name]; !ok {
			order = append(order, name)
		}
		counts[name]++
	}
	out := make([]CategorySummary, 0, len(order))
	for _, name := range order {
		out = append(out, CategorySummary{Name: name, Count: counts[name]})
	}
	return out
}
