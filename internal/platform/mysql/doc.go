// Package mysql provides the bounded blocking connection pool and the
// transaction-scoped sessions that execute translated statements against it.
//
// The pool meters physical connections: at most MaxConns are open at once,
// and when the pool is exhausted Acquire parks the caller instead of failing,
// applying backpressure. A Session borrows exactly one connection for its
// whole scope, runs everything inside one transaction, and finishes with
// commit-or-rollback followed by an unconditional return of the connection.
package mysql
