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
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapQueryCode(t *testing.T) {
	tests := []struct {
		name    string
		code    ErrorCode
		message string
		want    error
	}{
		{"syntax error", 3000, "syntax error - at SELEC", ErrParsingFailure},
		{"planner generic", 4010, "no covering index", ErrPlanningFailure},
		{"prepared not found", 4040, "no such prepared statement", ErrPreparedStatementFailure},
		{"prepared unrecognized", 4050, "unrecognizable prepared statement", ErrPreparedStatementFailure},
		{"prepared decode", 4060, "unable to decode prepared statement", ErrPreparedStatementFailure},
		{"prepared mismatch", 4070, "encoded plan mismatch", ErrPreparedStatementFailure},
		{"prepared context", 4090, "query context mismatch", ErrPreparedStatementFailure},
		{"index exists", 4300, "the index idx_name already exists", ErrIndexExists},
		{"internal", 5000, "panic inside execution", ErrInternalServerFailure},
		{"internal index not found", 5000, "gsi index idx_foo not found", ErrIndexNotFound},
		{"internal index exists", 5000, "the index idx_foo already exists", ErrIndexExists},
		{"internal document not found", 5000, "key not found during fetch", ErrDocumentNotFound},
		{"keyspace missing", 12003, "keyspace not found travel.inventory.airline", ErrCollectionNotFound},
		{"index not found", 12004, "gsi index not found", ErrIndexNotFound},
		{"index not found during scan", 12016, "index not found", ErrIndexNotFound},
		{"dml generic", 12009, "dml error", ErrDMLFailure},
		{"dml cas mismatch", 12009, "DML Error, possible causes include CAS mismatch", ErrCasMismatch},
		{"dml duplicate key", 12009, "duplicate key in insert", ErrDocumentExists},
		{"index service range", 12100, "scan failed", ErrIndexFailure},
		{"index service alt range", 14021, "scan coordinator failure", ErrIndexFailure},
		{"datastore auth", 13014, "insufficient credentials", ErrAuthenticationFailure},
		{"server timeout", 1080, "timeout 75000ms exceeded", ErrUnambiguousTimeout},
		{"readonly violation", 1000, "delete statement is not allowed with readonly", ErrInvalidArgument},
		{"unrecognized parameter", 1065, "unrecognized parameter in request: queri_context", ErrInvalidArgument},
		{"unknown code", 999, "mystery", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapQueryCode(tt.code, tt.message)
			if tt.want == nil {
				assert.NoError(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLookupCode(t *testing.T) {
	d, ok := LookupCode(4040)
	require.True(t, ok)
	assert.Equal(t, "plan.prepared.not_found", d.Name)
	assert.True(t, d.Retriable)
	assert.Equal(t, ErrPreparedStatementFailure, d.Err)

	_, ok = LookupCode(31337)
	assert.False(t, ok)
}

func TestAllCodes_Sorted(t *testing.T) {
	all := AllCodes()
	require.NotEmpty(t, all)
	assert.True(t, sort.SliceIsSorted(all, func(i, j int) bool {
		return all[i].Code < all[j].Code
	}))
}

func TestSearchCodes(t *testing.T) {
	// regexp match over names and descriptions
	prepared := SearchCodes("prepared\\.(not_found|unrecognized)")
	require.Len(t, prepared, 2)
	assert.Equal(t, ErrorCode(4040), prepared[0].Code)
	assert.Equal(t, ErrorCode(4050), prepared[1].Code)

	// case insensitive
	assert.NotEmpty(t, SearchCodes("KEYSPACE"))

	// broken regexp falls back to substring matching instead of failing
	assert.NotPanics(t, func() { SearchCodes("prepared.not_found(") })
	assert.Empty(t, SearchCodes("prepared.not_found("))

	assert.Empty(t, SearchCodes("no such thing anywhere"))
}

func TestRetriableCode(t *testing.T) {
	assert.True(t, RetriableCode(ErrorDesc{Code: 4040}))
	assert.False(t, RetriableCode(ErrorDesc{Code: 3000}))
	assert.True(t, RetriableCode(ErrorDesc{Code: 3000, Retry: true}),
		"the server's own retry flag wins")
	assert.False(t, RetriableCode(ErrorDesc{Code: 31337}))
}
