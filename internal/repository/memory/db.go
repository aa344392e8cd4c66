package memory

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tdminh/storecore/internal/storage/db"
)

var _ db.DB = DB{}

// DB is a db.DB stand-in for services wired against the memory store.
// WithTx runs the closure directly; the memory store has no transactions,
// so composition degrades to plain sequential calls. Raw SQL access panics:
// nothing wired to the memory store should reach it.
type DB struct{}

func (d DB) WithTx(_ context.Context, txFunc func(db.DB) error) error {
	return txFunc(d)
}

func (DB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("memory.DB does not support raw SQL")
}

func (DB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("memory.DB does not support raw SQL")
}

func (DB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("memory.DB does not support raw SQL")
}

func (DB) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("memory.DB does not support raw SQL")
}

func (DB) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("memory.DB does not support raw SQL")
}
