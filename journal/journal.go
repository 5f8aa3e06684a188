// Package journal keeps a durable sqlite audit trail of settled pool
// transactions and order fills. The key-value state layer is the source of
// truth; the journal exists for reconciliation and operator queries, so
// engines treat write failures as log-worthy rather than fatal.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"fusiond/native/pool"
	"fusiond/native/solver"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("journal: sqlite path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS pool_transactions (
    id          TEXT PRIMARY KEY,
    pool_id     TEXT NOT NULL,
    account     TEXT NOT NULL,
    kind        TEXT NOT NULL,
    amount      TEXT NOT NULL,
    shares      TEXT,
    created_at  INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pool_transactions_pool ON pool_transactions(pool_id, created_at);

CREATE TABLE IF NOT EXISTS order_fills (
    order_id    TEXT PRIMARY KEY,
    quote_id    TEXT NOT NULL,
    requester   TEXT NOT NULL,
    solver      TEXT NOT NULL,
    pool_id     TEXT NOT NULL,
    from_token  TEXT NOT NULL,
    to_token    TEXT NOT NULL,
    from_amount TEXT NOT NULL,
    to_amount   TEXT NOT NULL,
    fee_bps     INTEGER NOT NULL,
    proof       TEXT,
    created_at  INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_fills_solver ON order_fills(solver, created_at);
`

// Journal wraps the sqlite persistence layer.
type Journal struct {
	db *sql.DB
}

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Journal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases database resources.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordPoolTransaction implements pool.Journal.
func (j *Journal) RecordPoolTransaction(ctx context.Context, tx pool.Transaction) error {
	if j == nil || j.db == nil {
		return errors.New("journal: not configured")
	}
	var shares any
	if tx.Shares != nil {
		shares = tx.Shares.String()
	}
	_, err := j.db.ExecContext(ctx, `
        INSERT INTO pool_transactions(id, pool_id, account, kind, amount, shares, created_at, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?)
    `, tx.ID, tx.PoolID, tx.Account, tx.Kind, tx.Amount.String(), shares, tx.CreatedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("journal: insert pool transaction: %w", err)
	}
	return nil
}

// RecordFill implements solver.Journal.
func (j *Journal) RecordFill(ctx context.Context, order solver.Order) error {
	if j == nil || j.db == nil {
		return errors.New("journal: not configured")
	}
	_, err := j.db.ExecContext(ctx, `
        INSERT INTO order_fills(order_id, quote_id, requester, solver, pool_id, from_token, to_token,
                                from_amount, to_amount, fee_bps, proof, created_at, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, order.ID, order.QuoteID, order.Requester, order.Solver, order.PoolID, order.FromToken, order.ToToken,
		order.FromAmount.String(), order.ToAmount.String(), order.FeeBps, order.Proof, order.UpdatedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("journal: insert fill: %w", err)
	}
	return nil
}

// PoolTransactions returns the most recent journal entries for a pool.
func (j *Journal) PoolTransactions(ctx context.Context, poolID string, limit int) ([]pool.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
        SELECT id, pool_id, account, kind, amount, shares, created_at
        FROM pool_transactions WHERE pool_id = ?
        ORDER BY created_at DESC LIMIT ?
    `, poolID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query pool transactions: %w", err)
	}
	defer rows.Close()
	var entries []pool.Transaction
	for rows.Next() {
		var (
			tx     pool.Transaction
			amount string
			shares sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.PoolID, &tx.Account, &tx.Kind, &amount, &shares, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan pool transaction: %w", err)
		}
		tx.Amount, err = parseAmount(amount)
		if err != nil {
			return nil, err
		}
		if shares.Valid {
			tx.Shares, err = parseAmount(shares.String)
			if err != nil {
				return nil, err
			}
		}
		entries = append(entries, tx)
	}
	return entries, rows.Err()
}

// FillsBySolver returns the most recent fills attributed to a solver.
func (j *Journal) FillsBySolver(ctx context.Context, solverAccount string, limit int) ([]solver.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
        SELECT order_id, quote_id, requester, solver, pool_id, from_token, to_token,
               from_amount, to_amount, fee_bps, proof, created_at
        FROM order_fills WHERE solver = ?
        ORDER BY created_at DESC LIMIT ?
    `, solverAccount, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query fills: %w", err)
	}
	defer rows.Close()
	var fills []solver.Order
	for rows.Next() {
		var (
			order      solver.Order
			fromAmount string
			toAmount   string
			proof      sql.NullString
		)
		if err := rows.Scan(&order.ID, &order.QuoteID, &order.Requester, &order.Solver, &order.PoolID,
			&order.FromToken, &order.ToToken, &fromAmount, &toAmount, &order.FeeBps, &proof, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan fill: %w", err)
		}
		if order.FromAmount, err = parseAmount(fromAmount); err != nil {
			return nil, err
		}
		if order.ToAmount, err = parseAmount(toAmount); err != nil {
			return nil, err
		}
		if proof.Valid {
			order.Proof = proof.String
		}
		order.Status = solver.OrderFilled
		fills = append(fills, order)
	}
	return fills, rows.Err()
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("journal: malformed amount %q", raw)
	}
	return value, nil
}
