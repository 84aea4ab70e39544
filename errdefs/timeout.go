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
	"time"

	"github.com/rs/zerolog"

	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/retry"
)

// TimeoutError reports how far an operation got before its deadline. The
// inner error is ErrAmbiguousTimeout or ErrUnambiguousTimeout depending on
// whether a non-idempotent operation had already been dispatched.
type TimeoutError struct {
	InnerError       error
	Operation        string
	OperationID      string
	TimeObserved     time.Duration
	RetryReasons     []retry.Reason
	RetryAttempts    uint32
	LastDispatchedTo string
}

type timeoutErrorBody struct {
	Msg              string   `json:"msg,omitempty"`
	Operation        string   `json:"operation,omitempty"`
	OperationID      string   `json:"operation_id,omitempty"`
	TimeObserved     string   `json:"time_observed,omitempty"`
	RetryReasons     []string `json:"retry_reasons,omitempty"`
	RetryAttempts    uint32   `json:"retry_attempts,omitempty"`
	LastDispatchedTo string   `json:"last_dispatched_to,omitempty"`
}

func (e *TimeoutError) body() timeoutErrorBody {
	b := timeoutErrorBody{
		Operation:     e.Operation,
		OperationID:   e.OperationID,
		RetryReasons:  reasonStrings(e.RetryReasons),
		RetryAttempts: e.RetryAttempts,
	}
	if e.InnerError != nil {
		b.Msg = e.InnerError.Error()
	}
	if e.TimeObserved > 0 {
		b.TimeObserved = e.TimeObserved.String()
	}
	if e.LastDispatchedTo != "" {
		b.LastDispatchedTo = logging.MetaData(e.LastDispatchedTo)
	}
	return b
}

func (e *TimeoutError) Error() string {
	msg := ErrTimeout.Error()
	if e.InnerError != nil {
		msg = e.InnerError.Error()
	}
	ctx, err := json.Marshal(e.body())
	if err != nil {
		return msg
	}
	return msg + " | " + string(ctx)
}

func (e *TimeoutError) Unwrap() error {
	return e.InnerError
}

func (e *TimeoutError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.body())
}

func (e *TimeoutError) MarshalZerologObject(ev *zerolog.Event) {
	b := e.body()
	ev.Str("msg", b.Msg).Str("operation", b.Operation)
	if b.OperationID != "" {
		ev.Str("operation_id", b.OperationID)
	}
	if b.TimeObserved != "" {
		ev.Str("time_observed", b.TimeObserved)
	}
	if len(b.RetryReasons) > 0 {
		ev.Strs("retry_reasons", b.RetryReasons).Uint32("retry_attempts", b.RetryAttempts)
	}
	if b.LastDispatchedTo != "" {
		ev.Str("last_dispatched_to", b.LastDispatchedTo)
	}
}
