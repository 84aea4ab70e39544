// Copyright (c) 2022 6 River Systems
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

//go:build ruleguard
// +build ruleguard

// Custom lint rules consumed by gocritic's ruleguard checker.
package gorules

import (
	"github.com/quasilyte/go-ruleguard/dsl"
)

// errCompare flags direct comparisons against sentinel errors; wrapped
// contexts make these silently wrong.
func errCompare(m dsl.Matcher) {
	m.Match(`$err == $sentinel`, `$err != $sentinel`).
		Where(m["err"].Type.Is("error") && m["sentinel"].Text.Matches(`^errdefs\.Err`)).
		Report(`use errors.Is($err, $sentinel) so wrapped errors still match`)
}

// sleepInLoop flags bare sleeps in retry-ish loops; backoff must go through
// the retry strategies so deadlines are honored.
func sleepInLoop(m dsl.Matcher) {
	m.Match(`for $*_ { $*_; time.Sleep($d); $*_ }`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report(`sleeping in a loop: use a retry.Strategy or a context-aware timer`)
}
