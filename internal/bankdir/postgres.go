// Package bankdir looks up linked bank records. Records are written by
// the account-linking flow; this directory is read-only and returns
// absence as nil, never as an error.
package bankdir

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/railbridge/internal/domain"
	"github.com/punchamoorthee/railbridge/internal/token"
)

type Directory struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewDirectory(pool *pgxpool.Pool, timeout time.Duration) *Directory {
	return &Directory{pool: pool, timeout: timeout}
}

// GetByLocalID fetches a bank record by its store-assigned id.
func (d *Directory) GetByLocalID(ctx context.Context, id int64) (*domain.BankRecord, error) {
	return d.get(ctx, `SELECT id, account_id, owner, funding_source_url FROM banks WHERE id = $1`, id)
}

// GetByAccountID fetches a bank record by its identifier in the rail's
// account space, the value shareable tokens decode to.
func (d *Directory) GetByAccountID(ctx context.Context, accountID string) (*domain.BankRecord, error) {
	return d.get(ctx, `SELECT id, account_id, owner, funding_source_url FROM banks WHERE account_id = $1`, accountID)
}

func (d *Directory) get(ctx context.Context, query string, arg any) (*domain.BankRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		rec   domain.BankRecord
		owner json.RawMessage
	)
	err := d.pool.QueryRow(ctx, query, arg).Scan(&rec.ID, &rec.AccountID, &owner, &rec.FundingSourceURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Owner = domain.NewOwnerRef(owner)
	rec.ShareableToken = token.Encode(rec.AccountID)
	return &rec, nil
}
