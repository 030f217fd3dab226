package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/punchamoorthee/railbridge/internal/domain"
)

// DocumentStore is the fallback ledger backend: a schemaless, append-only
// document table used only when the primary store is unreachable. It
// enforces no uniqueness on entry_id — a failover after an ambiguous
// primary write can leave a duplicate, which is accepted as a bounded,
// visible inconsistency for reconciliation rather than hidden.
type DocumentStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewDocumentStore opens (creating if needed) the sqlite-backed document
// store at path and ensures its schema.
func NewDocumentStore(path string, timeout time.Duration) (*DocumentStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	s := &DocumentStore{db: db, timeout: timeout}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DocumentStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			doc_id INTEGER PRIMARY KEY AUTOINCREMENT,
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
	`)
	return err
}

func (s *DocumentStore) Close() error { return s.db.Close() }

func (s *DocumentStore) Name() string { return "document" }

// Record always inserts; duplicates are the reconciliation layer's concern.
func (s *DocumentStore) Record(ctx context.Context, entry domain.LedgerEntry) (*domain.StoredEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(entry)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Store: s.Name(), Err: err}
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (body, created_at) VALUES (?, ?)`, string(body), now)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Store: s.Name(), Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, &domain.StoreUnavailableError{Store: s.Name(), Err: err}
	}

	return &domain.StoredEntry{
		LedgerEntry: entry,
		RowID:       id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ListByBankID scans the document table and filters in Go; the store is
// schemaless and holds only failover traffic, so a table scan is fine.
// Like the primary, the total is sender-side plus receiver-side matches.
func (s *DocumentStore) ListByBankID(ctx context.Context, bankID int64) (*domain.EntryPage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, body, created_at FROM documents ORDER BY doc_id DESC`)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Store: s.Name(), Err: err}
	}
	defer rows.Close()

	var sent, received []domain.StoredEntry
	for rows.Next() {
		var (
			id        int64
			body      string
			createdAt time.Time
		)
		if err := rows.Scan(&id, &body, &createdAt); err != nil {
			return nil, &domain.StoreUnavailableError{Store: s.Name(), Err: err}
		}
		var entry domain.LedgerEntry
		if err := json.Unmarshal([]byte(body), &entry); err != nil {
			// A corrupt document must not make the whole history
			// unreadable; skip it.
			continue
		}
		stored := domain.StoredEntry{LedgerEntry: entry, RowID: id, CreatedAt: createdAt, UpdatedAt: createdAt}
		switch {
		case entry.SenderBankID == bankID:
			sent = append(sent, stored)
		case entry.ReceiverBankID == bankID:
			received = append(received, stored)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreUnavailableError{Store: s.Name(), Err: err}
	}

	return &domain.EntryPage{Total: len(sent) + len(received), Entries: append(sent, received...)}, nil
}
