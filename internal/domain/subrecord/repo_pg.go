package subrecord

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/eyeexam/internal/domain/examination"
	"github.com/ehr/eyeexam/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// InTx runs fn in a transaction on the request connection, or on a pooled
// one outside a request. Nested calls join the open transaction.
func (r *repoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var (
		txCtx context.Context
		tx    pgx.Tx
		err   error
	)
	if db.ConnFromContext(ctx) != nil {
		txCtx, tx, err = db.WithTx(ctx)
	} else if tx, err = r.pool.Begin(ctx); err == nil {
		txCtx = context.WithValue(ctx, db.DBTxKey, tx)
	}
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const recCols = `id, visit_id, kind, payload, created_by, created_at, updated_at`

// searchClause matches the search term anywhere in the payload text.
const searchClause = `($3 = '' OR payload::text ILIKE '%' || $3 || '%')`

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO exam_sub_record (id, visit_id, kind, payload, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		rec.ID, rec.VisitID, rec.Kind, rec.Payload, rec.CreatedBy,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert %s: %w", rec.Kind, err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, kind string, visitID, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recCols+` FROM exam_sub_record WHERE id = $1 AND visit_id = $2 AND kind = $3`,
		id, visitID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &examination.NotFoundError{Kind: kind, ID: id.String()}
	}
	return rec, err
}

func (r *repoPG) Update(ctx context.Context, rec *Record) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE exam_sub_record SET payload = $4, updated_at = NOW()
		WHERE id = $1 AND visit_id = $2 AND kind = $3
		RETURNING created_at, updated_at, created_by`,
		rec.ID, rec.VisitID, rec.Kind, rec.Payload,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt, &rec.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return &examination.NotFoundError{Kind: rec.Kind, ID: rec.ID.String()}
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", rec.Kind, err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, kind string, visitID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM exam_sub_record WHERE id = $1 AND visit_id = $2 AND kind = $3`,
		id, visitID, kind)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return &examination.NotFoundError{Kind: kind, ID: id.String()}
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, kind string, visitID uuid.UUID, limit, offset int, search string) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sub_record WHERE visit_id = $1 AND kind = $2 AND `+searchClause,
		visitID, kind, search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", kind, err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+recCols+` FROM exam_sub_record
		WHERE visit_id = $1 AND kind = $2 AND `+searchClause+`
		ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5`,
		visitID, kind, search, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var payload map[string]any
	err := row.Scan(&rec.ID, &rec.VisitID, &rec.Kind, &payload, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Payload = Payload(payload)
	if rec.Payload == nil {
		rec.Payload = Payload{}
	}
	return &rec, nil
}
