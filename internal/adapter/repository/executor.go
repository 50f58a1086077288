package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// executor is satisfied by both *pgxpool.Pool and pgx.Tx so repositories
// run inside an ambient transaction when one is on the context.
type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func executorFrom(ctx context.Context, pool *pgxpool.Pool) executor {
	if tx := ExtractTx(ctx); tx != nil {
		return tx
	}
	return pool
}
