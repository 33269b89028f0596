package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/transaction"
)

const transactionColumns = `id, amount::text, currency, status, provider, provider_transaction_id,
	checkout_url, description, success_url, cancel_url, metadata, created_at, updated_at`

// TransactionRepository implements transaction.Repository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts a new transaction. A second row with the same provider
// reference fails with ErrDuplicateProviderReference.
func (r *TransactionRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var providerRef *string
	if tx.ProviderTransactionID != "" {
		providerRef = &tx.ProviderTransactionID
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO transactions
		 (id, amount, currency, status, provider, provider_transaction_id,
		  checkout_url, description, success_url, cancel_url, metadata, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		tx.ID, amountToNumeric(tx.Amount), tx.Amount.Currency, string(tx.Status), tx.Provider, providerRef,
		tx.CheckoutURL, tx.Description, tx.SuccessURL, tx.CancelURL, metadata, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s %s", domainErrors.ErrDuplicateProviderReference, tx.Provider, tx.ProviderTransactionID)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (r *TransactionRepository) GetByProviderRef(ctx context.Context, provider, providerTxID string) (*transaction.Transaction, error) {
	return scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE provider = $1 AND provider_transaction_id = $2`, provider, providerTxID))
}

// UpdateStatus writes status and updated_at only. Nothing else on a
// transaction changes after creation.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *transaction.Transaction) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(tx.Status), tx.UpdatedAt, tx.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrTransactionNotFound
	}
	return nil
}

// List returns transactions newest first.
func (r *TransactionRepository) List(ctx context.Context, f transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Provider != nil {
		query += fmt.Sprintf(" AND provider = $%d", argIdx)
		args = append(args, *f.Provider)
		argIdx++
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, statuses)
		argIdx++
	}
	if f.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, *f.CreatedBefore)
		argIdx++
	}
	if f.CreatedAfter != nil {
		query += fmt.Sprintf(" AND created_at > $%d", argIdx)
		args = append(args, *f.CreatedAfter)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*transaction.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(s scanner) (*transaction.Transaction, error) {
	tx := &transaction.Transaction{}
	var (
		amount      string
		st          string
		providerRef *string
		metadata    []byte
	)
	err := s.Scan(
		&tx.ID, &amount, &tx.Amount.Currency, &st, &tx.Provider, &providerRef,
		&tx.CheckoutURL, &tx.Description, &tx.SuccessURL, &tx.CancelURL, &metadata, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	tx.Amount, err = numericToAmount(amount, tx.Amount.Currency)
	if err != nil {
		return nil, err
	}
	tx.Status = status.Status(st)
	if providerRef != nil {
		tx.ProviderTransactionID = *providerRef
	}
	tx.Metadata = make(map[string]any)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return tx, nil
}
