package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// NoTX marks the non-transactional path explicitly at call sites.
var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function within
// a database transaction, passing the underlying transaction handle via `tx`.
//
// Repositories accept a Tx handle and MUST gracefully accept nil (the
// non-transactional path). Inside a transaction they may use
// SELECT ... FOR UPDATE and tx-bound Exec/Query. The concrete type of `tx` is
// infra-defined (pgx.Tx for Postgres).
//
// Keep this interface small and stable.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
