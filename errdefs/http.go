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

	"github.com/rs/zerolog"

	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/retry"
)

// HTTPError carries the context of a failed HTTP level exchange with a
// service, used when the response never reached a service specific decoder.
type HTTPError struct {
	InnerError    error
	UniqueID      string
	Endpoint      string
	RetryReasons  []retry.Reason
	RetryAttempts uint32
}

type httpErrorBody struct {
	Msg           string   `json:"msg,omitempty"`
	UniqueID      string   `json:"unique_id,omitempty"`
	Endpoint      string   `json:"endpoint,omitempty"`
	RetryReasons  []string `json:"retry_reasons,omitempty"`
	RetryAttempts uint32   `json:"retry_attempts,omitempty"`
}

func (e *HTTPError) body() httpErrorBody {
	b := httpErrorBody{
		UniqueID:      e.UniqueID,
		RetryReasons:  reasonStrings(e.RetryReasons),
		RetryAttempts: e.RetryAttempts,
	}
	if e.InnerError != nil {
		b.Msg = e.InnerError.Error()
	}
	if e.Endpoint != "" {
		b.Endpoint = logging.MetaData(e.Endpoint)
	}
	return b
}

func (e *HTTPError) Error() string {
	msg := "http error"
	if e.InnerError != nil {
		msg = e.InnerError.Error()
	}
	ctx, err := json.Marshal(e.body())
	if err != nil {
		return msg
	}
	return msg + " | " + string(ctx)
}

func (e *HTTPError) Unwrap() error {
	return e.InnerError
}

func (e *HTTPError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.body())
}

func (e *HTTPError) MarshalZerologObject(ev *zerolog.Event) {
	b := e.body()
	ev.Str("msg", b.Msg)
	if b.UniqueID != "" {
		ev.Str("unique_id", b.UniqueID)
	}
	if b.Endpoint != "" {
		ev.Str("endpoint", b.Endpoint)
	}
	if len(b.RetryReasons) > 0 {
		ev.Strs("retry_reasons", b.RetryReasons).Uint32("retry_attempts", b.RetryAttempts)
	}
}
