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

package logging

import (
	"fmt"
	"sync/atomic"
)

// RedactionLevel controls how much potentially sensitive data is masked in
// log output and marshaled error contexts.
type RedactionLevel int32

const (
	// RedactNone emits all values unmasked.
	RedactNone RedactionLevel = iota
	// RedactPartial masks user data (document keys, statement text) but
	// leaves infrastructure metadata (endpoints, error codes) readable.
	RedactPartial
	// RedactFull masks user data and infrastructure metadata.
	RedactFull
)

func (l RedactionLevel) String() string {
	switch l {
	case RedactNone:
		return "none"
	case RedactPartial:
		return "partial"
	case RedactFull:
		return "full"
	default:
		return fmt.Sprintf("redaction(%d)", int32(l))
	}
}

// ParseRedactionLevel converts the wire/config spelling of a redaction level.
func ParseRedactionLevel(s string) (RedactionLevel, error) {
	switch s {
	case "none", "":
		return RedactNone, nil
	case "partial":
		return RedactPartial, nil
	case "full":
		return RedactFull, nil
	default:
		return RedactNone, fmt.Errorf("unknown redaction level %q", s)
	}
}

var redaction atomic.Int32

// SetRedactionLevel configures redaction process wide. Like component levels,
// this takes effect for events logged after the call.
func SetRedactionLevel(level RedactionLevel) {
	redaction.Store(int32(level))
}

// GetRedactionLevel reports the active redaction level.
func GetRedactionLevel() RedactionLevel {
	return RedactionLevel(redaction.Load())
}

// UserData renders a user supplied value (document key, statement text) for
// logging. At partial redaction or above the value is wrapped in <ud> markers
// so downstream log tooling can scrub it.
func UserData(v interface{}) string {
	s := stringify(v)
	if GetRedactionLevel() >= RedactPartial {
		return "<ud>" + s + "</ud>"
	}
	return s
}

// MetaData renders infrastructure metadata (endpoints, connection ids) for
// logging. It is masked only at full redaction.
func MetaData(v interface{}) string {
	s := stringify(v)
	if GetRedactionLevel() >= RedactFull {
		return "<md>" + s + "</md>"
	}
	return s
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
