// Package db holds the hand-written SQL layer in the same shape sqlc emits:
// one Queries value over a DBTX, params structs and row models.
package db

import (
	"context"
	"database/sql"
	"strings"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

// expandSlice replaces the /*SLICE:name*/? marker with one placeholder per value.
func expandSlice(query, name string, n int) string {
	marker := "/*SLICE:" + name + "*/?"
	if n == 0 {
		return strings.Replace(query, marker, "NULL", 1)
	}
	return strings.Replace(query, marker, strings.Repeat(",?", n)[1:], 1)
}
