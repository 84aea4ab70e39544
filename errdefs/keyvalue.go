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
	"time"

	"github.com/rs/zerolog"

	"go.6river.tech/dockv/logging"
	"go.6river.tech/dockv/retry"
)

// Errors specific to the data (key-value) service.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document exists")

	// ErrDocumentLocked means the document is write locked via GetAndLock
	// and the mutation did not supply the lock's CAS.
	ErrDocumentLocked = errors.New("document locked")

	ErrValueTooLarge = errors.New("value too large")

	ErrDurabilityLevelNotAvailable = errors.New("durability level not available")
	// ErrDurabilityImpossible means the bucket topology cannot satisfy the
	// requested level at all, e.g. fewer replicas than votes required.
	ErrDurabilityImpossible = errors.New("durability impossible")
	// ErrDurabilityAmbiguous means a durable write may or may not have taken
	// effect; the client must not blindly retry it.
	ErrDurabilityAmbiguous            = errors.New("durability ambiguous")
	ErrDurableWriteInProgress         = errors.New("durable write in progress")
	ErrDurableWriteReCommitInProgress = errors.New("durable write re-commit in progress")

	ErrPathNotFound    = errors.New("path not found")
	ErrPathExists      = errors.New("path exists")
	ErrPathMismatch    = errors.New("path mismatch")
	ErrDocumentNotJSON = errors.New("document not json")
	ErrValueTooDeep    = errors.New("value too deep")
	ErrNumberTooBig    = errors.New("number too big")
	ErrDeltaInvalid    = errors.New("delta invalid")
)

// KeyValueError carries the full context of a failed data service operation.
// The inner error is always one of the taxonomy sentinels, so errors.Is
// keeps working through this wrapper.
type KeyValueError struct {
	InnerError       error
	StatusCode       StatusCode
	DocumentID       string
	BucketName       string
	ScopeName        string
	CollectionName   string
	Opaque           uint32
	OperationID      string
	RetryReasons     []retry.Reason
	RetryAttempts    uint32
	LastDispatchedTo string
	TimeObserved     time.Duration
}

// kvErrorBody is the wire/log projection of a KeyValueError. The document id
// honors log redaction; the rest is infrastructure metadata. Status fields
// are omitted when no wire status was observed, e.g. transport failures.
type kvErrorBody struct {
	Msg              string   `json:"msg,omitempty"`
	StatusCode       uint16   `json:"status_code,omitempty"`
	StatusName       string   `json:"status_name,omitempty"`
	DocumentID       string   `json:"document_id,omitempty"`
	Bucket           string   `json:"bucket,omitempty"`
	Scope            string   `json:"scope,omitempty"`
	Collection       string   `json:"collection,omitempty"`
	Opaque           uint32   `json:"opaque,omitempty"`
	OperationID      string   `json:"operation_id,omitempty"`
	RetryReasons     []string `json:"retry_reasons,omitempty"`
	RetryAttempts    uint32   `json:"retry_attempts,omitempty"`
	LastDispatchedTo string   `json:"last_dispatched_to,omitempty"`
	TimeObserved     string   `json:"time_observed,omitempty"`
}

func (e *KeyValueError) body() kvErrorBody {
	b := kvErrorBody{
		Bucket:        e.BucketName,
		Scope:         e.ScopeName,
		Collection:    e.CollectionName,
		Opaque:        e.Opaque,
		OperationID:   e.OperationID,
		RetryReasons:  reasonStrings(e.RetryReasons),
		RetryAttempts: e.RetryAttempts,
	}
	if e.StatusCode != StatusSuccess {
		b.StatusCode = uint16(e.StatusCode)
		b.StatusName = e.StatusCode.String()
	}
	if e.InnerError != nil {
		b.Msg = e.InnerError.Error()
	}
	if e.DocumentID != "" {
		b.DocumentID = logging.UserData(e.DocumentID)
	}
	if e.LastDispatchedTo != "" {
		b.LastDispatchedTo = logging.MetaData(e.LastDispatchedTo)
	}
	if e.TimeObserved > 0 {
		b.TimeObserved = e.TimeObserved.String()
	}
	return b
}

// Error renders the inner error followed by the JSON context, so that even
// naive %v formatting captures everything needed to diagnose a failure.
func (e *KeyValueError) Error() string {
	msg := "key value error"
	if e.InnerError != nil {
		msg = e.InnerError.Error()
	}
	ctx, err := json.Marshal(e.body())
	if err != nil {
		return msg
	}
	return msg + " | " + string(ctx)
}

func (e *KeyValueError) Unwrap() error {
	return e.InnerError
}

func (e *KeyValueError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.body())
}

// MarshalZerologObject lets a bare logger.Err(err) emit the whole context as
// structured fields.
func (e *KeyValueError) MarshalZerologObject(ev *zerolog.Event) {
	b := e.body()
	ev.Str("msg", b.Msg)
	if b.StatusName != "" {
		ev.Uint16("status_code", b.StatusCode).Str("status_name", b.StatusName)
	}
	if b.DocumentID != "" {
		ev.Str("document_id", b.DocumentID)
	}
	if b.Bucket != "" {
		ev.Str("bucket", b.Bucket).Str("scope", b.Scope).Str("collection", b.Collection)
	}
	if b.OperationID != "" {
		ev.Str("operation_id", b.OperationID)
	}
	if len(b.RetryReasons) > 0 {
		ev.Strs("retry_reasons", b.RetryReasons).Uint32("retry_attempts", b.RetryAttempts)
	}
	if b.LastDispatchedTo != "" {
		ev.Str("last_dispatched_to", b.LastDispatchedTo)
	}
	if b.TimeObserved != "" {
		ev.Str("time_observed", b.TimeObserved)
	}
}
