package repository

import (
	"context"
	"database/sql"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// execQuerier is satisfied by *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type base struct {
	db      *sql.DB
	dialect string
}

func newBase(drv *entsql.Driver) base {
	return base{db: drv.DB(), dialect: drv.Dialect()}
}

func (b base) builder() *entsql.DialectBuilder {
	return entsql.Dialect(b.dialect)
}

func (b base) exec(ctx context.Context, q execQuerier, query string, args []any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// exists reports whether table has a row with the given id.
func (b base) exists(ctx context.Context, table string, id any) (bool, error) {
	query, args := b.builder().Select("id").From(b.builder().Table(table)).Where(entsql.EQ("id", id)).Limit(1).Query()
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	found := rows.Next()
	return found, rows.Err()
}

func now() time.Time { return time.Now().UTC() }

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
