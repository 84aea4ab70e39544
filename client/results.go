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

package client

import (
	"encoding/json"
	"fmt"

	"go.6river.tech/dockv/errdefs"
)

// Documents carry common flags in the top byte of the flags field describing
// how the value bytes are encoded. The remaining bits are left alone so
// applications can smuggle their own metadata.
const (
	jsonFlags   uint32 = 2 << 24
	binaryFlags uint32 = 3 << 24
	formatMask  uint32 = 0xff << 24
)

// encodeValue serializes an operation's value and picks the matching common
// flags. []byte and json.RawMessage pass through untouched; everything else
// goes through encoding/json.
func encodeValue(value interface{}) ([]byte, uint32, error) {
	switch v := value.(type) {
	case []byte:
		return v, binaryFlags, nil
	case json.RawMessage:
		return v, jsonFlags, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", errdefs.ErrEncodingFailure, err)
	}
	return data, jsonFlags, nil
}

// decodeValue reverses encodeValue into the pointer the caller provided.
func decodeValue(data []byte, flags uint32, valuePtr interface{}) error {
	if valuePtr == nil {
		return fmt.Errorf("%w: decode target must not be nil", errdefs.ErrInvalidArgument)
	}
	if flags&formatMask == binaryFlags {
		target, ok := valuePtr.(*[]byte)
		if !ok {
			return fmt.Errorf("%w: binary document content requires a *[]byte target",
				errdefs.ErrDecodingFailure)
		}
		*target = append([]byte(nil), data...)
		return nil
	}
	if err := json.Unmarshal(data, valuePtr); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrDecodingFailure, err)
	}
	return nil
}

// GetResult holds a document read from a collection.
type GetResult struct {
	cas      Cas
	flags    uint32
	contents []byte
}

// Cas returns the document version the read observed.
func (r *GetResult) Cas() Cas { return r.cas }

// Content decodes the document into valuePtr. Decoding problems surface as
// ErrDecodingFailure.
func (r *GetResult) Content(valuePtr interface{}) error {
	return decodeValue(r.contents, r.flags, valuePtr)
}

// ExistsResult reports whether a document was present.
type ExistsResult struct {
	exists bool
	cas    Cas
}

// Exists is true when the document was found.
func (r *ExistsResult) Exists() bool { return r.exists }

// Cas returns the version of the document when it exists, zero otherwise.
func (r *ExistsResult) Cas() Cas { return r.cas }

// MutationResult reports the outcome of a successful mutation.
type MutationResult struct {
	cas Cas
}

// Cas returns the version the document carries after the mutation.
func (r *MutationResult) Cas() Cas { return r.cas }

// CounterResult reports the outcome of an Increment or Decrement.
type CounterResult struct {
	cas     Cas
	content uint64
}

// Cas returns the version the counter document carries after the operation.
func (r *CounterResult) Cas() Cas { return r.cas }

// Content returns the counter value after the operation applied.
func (r *CounterResult) Content() uint64 { return r.content }
