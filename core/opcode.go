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

package core

import "fmt"

// OpCode identifies a data service operation on the wire.
type OpCode uint8

const (
	OpGet         OpCode = 0x00
	OpSet         OpCode = 0x01
	OpAdd         OpCode = 0x02
	OpReplace     OpCode = 0x03
	OpDelete      OpCode = 0x04
	OpIncrement   OpCode = 0x05
	OpDecrement   OpCode = 0x06
	OpTouch       OpCode = 0x1c
	OpGetAndTouch OpCode = 0x1d

	OpGetLocked OpCode = 0x94
	OpUnlock    OpCode = 0x95
)

func (o OpCode) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpAdd:
		return "add"
	case OpReplace:
		return "replace"
	case OpDelete:
		return "delete"
	case OpIncrement:
		return "increment"
	case OpDecrement:
		return "decrement"
	case OpTouch:
		return "touch"
	case OpGetAndTouch:
		return "get-and-touch"
	case OpGetLocked:
		return "get-locked"
	case OpUnlock:
		return "unlock"
	default:
		return fmt.Sprintf("op 0x%02x", uint8(o))
	}
}

// IsIdempotent reports whether dispatching the operation a second time is
// always safe. Touch and GetAndTouch qualify because expiry is absolute, so
// applying it twice is the same as once. GetLocked does not: a repeat of a
// successful lock acquisition fails with Locked until the lock expires.
func (o OpCode) IsIdempotent() bool {
	switch o {
	case OpGet, OpTouch, OpGetAndTouch:
		return true
	default:
		return false
	}
}

// IsMutation reports whether the operation can change document content or
// CAS. Lock operations count: they bump the CAS.
func (o OpCode) IsMutation() bool {
	switch o {
	case OpGet:
		return false
	default:
		return true
	}
}
