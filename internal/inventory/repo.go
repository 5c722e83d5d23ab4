package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the pgx-backed Store. Mutate takes the row with FOR UPDATE so two
// replicas cannot both observe the same available count and over-reserve.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const recordCols = `product_id, quantity, reserved, available, low_stock_threshold, is_tracked, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ProductID, &rec.Quantity, &rec.Reserved, &rec.Available,
		&rec.LowStockThreshold, &rec.IsTracked, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (r *Repo) Get(ctx context.Context, productID string) (Record, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+recordCols+` FROM product_inventory WHERE product_id=$1`, productID)
	return scanRecord(row)
}

func (r *Repo) Mutate(ctx context.Context, productID string, fn func(rec *Record) (*Transaction, error)) (Record, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+recordCols+` FROM product_inventory WHERE product_id=$1 FOR UPDATE`, productID)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, err
	}

	trec, err := fn(&rec)
	if err != nil {
		return Record{}, err // rollback via defer
	}
	rec.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx, `
		UPDATE product_inventory
		SET quantity=$2, reserved=$3, available=$4, low_stock_threshold=$5, is_tracked=$6, updated_at=$7
		WHERE product_id=$1`,
		rec.ProductID, rec.Quantity, rec.Reserved, rec.Available,
		rec.LowStockThreshold, rec.IsTracked, rec.UpdatedAt,
	); err != nil {
		return Record{}, err
	}

	if trec != nil {
		trec.ID = uuid.NewString()
		trec.ProductID = rec.ProductID
		trec.CreatedAt = rec.UpdatedAt
		if _, err := tx.Exec(ctx, `
			INSERT INTO inventory_transactions(id, product_id, type, quantity, reason, reference, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			trec.ID, trec.ProductID, trec.Type, trec.Quantity, trec.Reason, trec.Reference, trec.CreatedAt,
		); err != nil {
			return Record{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *Repo) ListTransactions(ctx context.Context, productID string, page, limit int) ([]Transaction, error) {
	if page < 1 {
		page = 1
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, type, quantity, reason, reference, created_at
		FROM inventory_transactions
		WHERE product_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		productID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transaction, 0, limit)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.ProductID, &t.Type, &t.Quantity, &t.Reason, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) ListLowStock(ctx context.Context, override *int) ([]Record, error) {
	// Same predicate as BelowThreshold: the override narrows, the row's own
	// threshold always applies.
	rows, err := r.DB.Query(ctx, `
		SELECT `+recordCols+`
		FROM product_inventory
		WHERE is_tracked = TRUE
		  AND available <= low_stock_threshold
		  AND ($1::int IS NULL OR available <= $1)
		ORDER BY available ASC`, override)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ProductID, &rec.Quantity, &rec.Reserved, &rec.Available,
			&rec.LowStockThreshold, &rec.IsTracked, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
