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

package errdefs

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/retry"
)

// Errors specific to the query service.
var (
	ErrPlanningFailure          = errors.New("planning failure")
	ErrIndexFailure             = errors.New("index failure")
	ErrPreparedStatementFailure = errors.New("prepared statement failure")
	// ErrDMLFailure means a mutating statement failed part way; the count of
	// mutations the server reports should be consulted before retrying.
	ErrDMLFailure = errors.New("dml failure")
)

// ErrorDesc is one error descriptor from a query service response body.
type ErrorDesc struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"msg"`
	Retry   bool      `json:"retry,omitempty"`
}

// QueryError carries the full context of a failed query. The inner error is
// the taxonomy classification of the first mapped error descriptor.
type QueryError struct {
	InnerError       error
	Statement        string
	ClientContextID  string
	Errors           []ErrorDesc
	Endpoint         string
	HTTPResponseCode int
	RetryReasons     []retry.Reason
	RetryAttempts    uint32
}

type queryErrorBody struct {
	Msg             string      `json:"msg,omitempty"`
	Statement       string      `json:"statement,omitempty"`
	ClientContextID string      `json:"client_context_id,omitempty"`
	Errors          []ErrorDesc `json:"errors,omitempty"`
	Endpoint        string      `json:"endpoint,omitempty"`
	HTTPStatus      int         `json:"http_status,omitempty"`
	RetryReasons    []string    `json:"retry_reasons,omitempty"`
	RetryAttempts   uint32      `json:"retry_attempts,omitempty"`
}

func (e *QueryError) body() queryErrorBody {
	b := queryErrorBody{
		ClientContextID: e.ClientContextID,
		Errors:          e.Errors,
		HTTPStatus:      e.HTTPResponseCode,
		RetryReasons:    reasonStrings(e.RetryReasons),
		RetryAttempts:   e.RetryAttempts,
	}
	if e.InnerError != nil {
		b.Msg = e.InnerError.Error()
	}
	if e.Statement != "" {
		b.Statement = logging.UserData(e.Statement)
	}
	if e.Endpoint != "" {
		b.Endpoint = logging.MetaData(e.Endpoint)
	}
	return b
}

func (e *QueryError) Error() string {
	msg := "query error"
	if e.InnerError != nil {
		msg = e.InnerError.Error()
	}
	ctx, err := json.Marshal(e.body())
	if err != nil {
		return msg
	}
	return msg + " | " + string(ctx)
}

func (e *QueryError) Unwrap() error {
	return e.InnerError
}

func (e *QueryError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.body())
}

func (e *QueryError) MarshalZerologObject(ev *zerolog.Event) {
	b := e.body()
	ev.Str("msg", b.Msg)
	if b.Statement != "" {
		ev.Str("statement", b.Statement)
	}
	if b.ClientContextID != "" {
		ev.Str("client_context_id", b.ClientContextID)
	}
	if len(b.Errors) > 0 {
		descs := zerolog.Arr()
		for _, d := range b.Errors {
			descs = descs.Interface(d)
		}
		ev.Array("error_descs", descs)
	}
	if b.Endpoint != "" {
		ev.Str("endpoint", b.Endpoint)
	}
	if b.HTTPStatus != 0 {
		ev.Int("http_status", b.HTTPStatus)
	}
	if len(b.RetryReasons) > 0 {
		ev.Strs("retry_reasons", b.RetryReasons).Uint32("retry_attempts", b.RetryAttempts)
	}
}
