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

package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type testContextKey string

var testFromContextKey testContextKey = testContextKey(uuid.NewString())

func ContextForTest(t testing.TB) context.Context {
	ctx := context.Background()
	if tt, ok := t.(*testing.T); ok {
		if d, ok := tt.Deadline(); ok {
			var cancel func()
			ctx, cancel = context.WithDeadline(ctx, d)
			ctx = context.WithValue(ctx, testFromContextKey, t)
			t.Cleanup(cancel)
		}
	}
	return ctx
}

func DeadlineForTest(t testing.TB) time.Time {
	if tt, ok := t.(*testing.T); ok {
		if deadline, ok := tt.Deadline(); ok {
			return deadline
		}
	}
	return time.Now().Add(time.Minute)
}

func TestForContext(ctx context.Context) testing.TB {
	return ctx.Value(testFromContextKey).(testing.TB)
}
