// internal/store/store.go

package store

import "context"

// TxManager abstracts the database transaction.
// Repositories pick the active transaction up from the context, so every
// call made inside fn shares one connection and one commit.
// Implementations must release the connection on every exit path and must
// join an already running transaction instead of opening a nested one.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
