// Copyright (c) 2021 6 River Systems
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// Package compat translates failures from neighboring ecosystems into and out
// of the document store error taxonomy, so applications mixing dockv with
// relational storage or gRPC surfaces handle one error vocabulary. The SQL
// half also drives transaction retries with the same strategies the data
// service uses.
package compat

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"go.6river.tech/dockv/core"
	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/retry"
)

// SQLError is the shape most SQL drivers give their server errors.
type SQLError interface {
	error
	// commonly implemented pattern
	SQLState() string
}

// reference: https://www.postgresql.org/docs/current/errcodes-appendix.html

type PostgreSQLErrorCode string

var (
	SerializationFailure PostgreSQLErrorCode = "40001"
	DeadlockDetected     PostgreSQLErrorCode = "40P01"
	UniqueViolation      PostgreSQLErrorCode = "23505"
	ForeignKeyViolation  PostgreSQLErrorCode = "23503"
	// InvalidCatalogName often indicates attempting to connect to a database
	// that does not exist
	InvalidCatalogName PostgreSQLErrorCode = "3D000"
	// CannotConnectNow often indicates the server is still starting up
	CannotConnectNow                  PostgreSQLErrorCode = "57P03"
	TooManyConnections                PostgreSQLErrorCode = "53300"
	AdminShutdown                     PostgreSQLErrorCode = "57P01"
	InsufficientPrivilege             PostgreSQLErrorCode = "42501"
	InvalidPassword                   PostgreSQLErrorCode = "28P01"
	InvalidAuthorizationSpecification PostgreSQLErrorCode = "28000"
	QueryCanceled                     PostgreSQLErrorCode = "57014"
)

// IsPostgreSQLErrorCode reports whether err carries the given PostgreSQL
// error code, returning the server error when it does.
func IsPostgreSQLErrorCode(err error, code PostgreSQLErrorCode) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	match := errors.As(err, &pgErr) && pgErr.Code == string(code)
	return pgErr, match
}

// sqlState extracts the five character SQLSTATE from anything in err's chain
// implementing the common pattern. pgx's PgError qualifies.
func sqlState(err error) (string, bool) {
	var stater SQLError
	if errors.As(err, &stater) {
		return stater.SQLState(), true
	}
	return "", false
}

// MapSQLState translates a database/sql or driver failure into the error
// taxonomy, or nil when it has no equivalent. Conditions without a SQLSTATE
// are unmapped except sql.ErrNoRows.
func MapSQLState(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errdefs.ErrDocumentNotFound
	}
	state, ok := sqlState(err)
	if !ok {
		return nil
	}
	switch PostgreSQLErrorCode(state) {
	case SerializationFailure, DeadlockDetected, TooManyConnections:
		return errdefs.ErrTemporaryFailure
	case UniqueViolation:
		return errdefs.ErrDocumentExists
	case InvalidAuthorizationSpecification, InvalidPassword, InsufficientPrivilege:
		return errdefs.ErrAuthenticationFailure
	case InvalidCatalogName:
		return errdefs.ErrBucketNotFound
	case CannotConnectNow, AdminShutdown:
		return errdefs.ErrServiceNotAvailable
	case QueryCanceled:
		return errdefs.ErrRequestCanceled
	}
	return nil
}

// SQLRetryReason reports whether a SQL failure is worth retrying and with
// which reason. An explicit retry.RetriableError mark anywhere in the chain
// wins in both directions; otherwise connection loss and the
// serialization/deadlock and server-availability SQLSTATE classes qualify.
func SQLRetryReason(err error) (retry.Reason, bool) {
	var marked retry.RetriableError
	if errors.As(err, &marked) {
		if !marked.IsRetriable() {
			return retry.Reason{}, false
		}
		return retry.ReasonServiceResponseCodeIndicated, true
	}
	// database/sql only surfaces ErrBadConn when the server cannot have
	// executed the operation
	if errors.Is(err, driver.ErrBadConn) {
		return retry.ReasonSocketNotAvailable, true
	}
	state, ok := sqlState(err)
	if !ok {
		return retry.Reason{}, false
	}
	switch PostgreSQLErrorCode(state) {
	case SerializationFailure, DeadlockDetected:
		return retry.ReasonServiceResponseCodeIndicated, true
	case CannotConnectNow, AdminShutdown, TooManyConnections:
		return retry.ReasonServiceNotAvailable, true
	}
	return retry.Reason{}, false
}

// sqlTxRequest carries one transaction loop's retry bookkeeping.
type sqlTxRequest struct {
	strategy retry.Strategy
	attempts uint32
	reasons  []retry.Reason
	began    bool
}

func (r *sqlTxRequest) Operation() string { return "sql/tx" }

// Idempotent is always true: every failed attempt rolls back before the next
// one begins, so repeating the loop applies the work at most once.
func (r *sqlTxRequest) Idempotent() bool { return true }

func (r *sqlTxRequest) Attempts() uint32 { return r.attempts }

func (r *sqlTxRequest) RetryStrategy() retry.Strategy { return r.strategy }

func (r *sqlTxRequest) Dispatched() bool { return r.began }

func (r *sqlTxRequest) RecordRetry(reason retry.Reason) {
	r.attempts++
	for _, prev := range r.reasons {
		if prev == reason {
			return
		}
	}
	r.reasons = append(r.reasons, reason)
}

// RunSQLTx runs fn inside a transaction, retrying the whole body per the
// strategy when it fails for a retriable reason: serialization failures,
// deadlocks, connection loss, server-availability states, and explicit
// retry.AsRetriable marks. Every failed attempt is rolled back first, so fn
// must tolerate running more than once but never sees partial state. The
// returned error carries the taxonomy classification of the final failure
// when one applies.
func RunSQLTx(ctx context.Context, db *sqlx.DB, opts *sql.TxOptions, strategy retry.Strategy, fn func(*sqlx.Tx) error) error {
	if db == nil {
		return fmt.Errorf("%w: transaction loop requires a database", errdefs.ErrInvalidArgument)
	}
	if fn == nil {
		return fmt.Errorf("%w: transaction loop requires a body", errdefs.ErrInvalidArgument)
	}
	logger := logging.GetLogger("compat/sql")
	req := &sqlTxRequest{strategy: strategy}

	_, err := core.Orchestrate(ctx, logger, req,
		func(ctx context.Context) (struct{}, retry.Reason, error) {
			tx, err := db.BeginTxx(ctx, opts)
			if err != nil {
				reason, _ := SQLRetryReason(err)
				return struct{}{}, reason, err
			}
			req.began = true
			if err := fn(tx); err != nil {
				if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
					logger.Warn().AnErr("rollback", rbErr).
						Msg("Rollback failed after transaction error")
				}
				reason, _ := SQLRetryReason(err)
				return struct{}{}, reason, err
			}
			if err := tx.Commit(); err != nil {
				reason, _ := SQLRetryReason(err)
				return struct{}{}, reason, err
			}
			return struct{}{}, retry.Reason{}, nil
		})
	if err == nil {
		return nil
	}
	if mapped := MapSQLState(err); mapped != nil && !errors.Is(err, mapped) {
		return fmt.Errorf("%w: %w", mapped, err)
	}
	return err
}
