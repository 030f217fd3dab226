package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/railbridge/internal/domain"
)

// PostgresStore is the primary ledger backend: append-only transaction
// rows with a natural uniqueness constraint on entry_id, which makes
// Record an idempotent upsert under concurrent retries.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, timeout time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, timeout: timeout}
}

func (s *PostgresStore) Name() string { return "postgres" }

const entryColumns = `id, entry_id, sender_id, receiver_id, sender_bank_id, receiver_bank_id,
	name, amount, type, category, channel, pending, date, email, created_at, updated_at`

// Record upserts the entry on its entry_id. On conflict only the
// balance-relevant fields and the modification timestamp change; the
// original row's creation metadata stays untouched. Two concurrent runs
// carrying the same entry_id converge to one row.
func (s *PostgresStore) Record(ctx context.Context, entry domain.LedgerEntry) (*domain.StoredEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (
			entry_id, sender_id, receiver_id, sender_bank_id, receiver_bank_id,
			name, amount, type, category, channel, pending, date, email
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (entry_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			pending = EXCLUDED.pending,
			updated_at = now()
		RETURNING `+entryColumns,
		entry.EntryID, entry.SenderOwnerID, entry.ReceiverOwnerID,
		entry.SenderBankID, entry.ReceiverBankID, entry.Name, entry.Amount,
		entry.Direction, entry.Category, entry.Channel, entry.Pending,
		entry.OccurredAt, entry.InitiatorEmail,
	)

	stored, err := scanEntry(row)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Store: s.Name(), Err: err}
	}
	return stored, nil
}

// ListByBankID unions sender-side and receiver-side matches. The two
// directions are queried separately and concatenated so the reported
// total is the sum of both result sets; a transfer shows up in both the
// sender's and the receiver's history by design.
func (s *PostgresStore) ListByBankID(ctx context.Context, bankID int64) (*domain.EntryPage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sent, err := s.queryByColumn(ctx, "sender_bank_id", bankID)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Store: s.Name(), Err: err}
	}
	received, err := s.queryByColumn(ctx, "receiver_bank_id", bankID)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Store: s.Name(), Err: err}
	}

	entries := append(sent, received...)
	return &domain.EntryPage{Total: len(sent) + len(received), Entries: entries}, nil
}

func (s *PostgresStore) queryByColumn(ctx context.Context, column string, bankID int64) ([]domain.StoredEntry, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM transactions WHERE %s = $1 ORDER BY date DESC, created_at DESC`,
		entryColumns, column), bankID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.StoredEntry
	for rows.Next() {
		stored, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *stored)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.StoredEntry, error) {
	var e domain.StoredEntry
	err := row.Scan(
		&e.RowID, &e.EntryID, &e.SenderOwnerID, &e.ReceiverOwnerID,
		&e.SenderBankID, &e.ReceiverBankID, &e.Name, &e.Amount, &e.Direction,
		&e.Category, &e.Channel, &e.Pending, &e.OccurredAt, &e.InitiatorEmail,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
