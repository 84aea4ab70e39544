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

import "fmt"

// StatusCode is a data service wire status. The classification tables in the
// core package translate these into taxonomy errors; they appear here so
// KeyValueError can carry the raw status alongside the classified error.
type StatusCode uint16

const (
	StatusSuccess        StatusCode = 0x00
	StatusKeyNotFound    StatusCode = 0x01
	StatusKeyExists      StatusCode = 0x02
	StatusTooBig         StatusCode = 0x03
	StatusInvalidArgs    StatusCode = 0x04
	StatusNotStored      StatusCode = 0x05
	StatusBadDelta       StatusCode = 0x06
	StatusNotMyVBucket   StatusCode = 0x07
	StatusNoBucket       StatusCode = 0x08
	StatusLocked         StatusCode = 0x09
	StatusAuthError      StatusCode = 0x20
	StatusRangeError     StatusCode = 0x22
	StatusAccessError    StatusCode = 0x24
	StatusNotInitialized StatusCode = 0x25
	StatusUnknownCommand StatusCode = 0x81
	StatusOutOfMemory    StatusCode = 0x82
	StatusNotSupported   StatusCode = 0x83
	StatusInternalError  StatusCode = 0x84
	StatusBusy           StatusCode = 0x85
	StatusTmpFail        StatusCode = 0x86

	StatusUnknownCollection StatusCode = 0x88
	StatusUnknownScope      StatusCode = 0x8c

	StatusDurabilityInvalidLevel      StatusCode = 0xa0
	StatusDurabilityImpossible        StatusCode = 0xa1
	StatusSyncWriteInProgress         StatusCode = 0xa2
	StatusSyncWriteAmbiguous          StatusCode = 0xa3
	StatusSyncWriteReCommitInProgress StatusCode = 0xa4

	StatusSubDocPathNotFound StatusCode = 0xc0
	StatusSubDocPathMismatch StatusCode = 0xc1
	StatusSubDocPathInvalid  StatusCode = 0xc2
	StatusSubDocPathTooBig   StatusCode = 0xc3
	StatusSubDocDocTooDeep   StatusCode = 0xc4
	StatusSubDocCantInsert   StatusCode = 0xc5
	StatusSubDocNotJSON      StatusCode = 0xc6
	StatusSubDocBadRange     StatusCode = 0xc7
	StatusSubDocBadDelta     StatusCode = 0xc8
	StatusSubDocPathExists   StatusCode = 0xc9
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusKeyNotFound:
		return "key not found"
	case StatusKeyExists:
		return "key exists"
	case StatusTooBig:
		return "value too big"
	case StatusInvalidArgs:
		return "invalid arguments"
	case StatusNotStored:
		return "not stored"
	case StatusBadDelta:
		return "bad delta"
	case StatusNotMyVBucket:
		return "not my vbucket"
	case StatusNoBucket:
		return "no bucket selected"
	case StatusLocked:
		return "locked"
	case StatusAuthError:
		return "authentication error"
	case StatusRangeError:
		return "range error"
	case StatusAccessError:
		return "access error"
	case StatusNotInitialized:
		return "not initialized"
	case StatusUnknownCommand:
		return "unknown command"
	case StatusOutOfMemory:
		return "out of memory"
	case StatusNotSupported:
		return "not supported"
	case StatusInternalError:
		return "internal error"
	case StatusBusy:
		return "busy"
	case StatusTmpFail:
		return "temporary failure"
	case StatusUnknownCollection:
		return "unknown collection"
	case StatusUnknownScope:
		return "unknown scope"
	case StatusDurabilityInvalidLevel:
		return "invalid durability level"
	case StatusDurabilityImpossible:
		return "durability impossible"
	case StatusSyncWriteInProgress:
		return "sync write in progress"
	case StatusSyncWriteAmbiguous:
		return "sync write ambiguous"
	case StatusSyncWriteReCommitInProgress:
		return "sync write re-commit in progress"
	case StatusSubDocPathNotFound:
		return "subdoc path not found"
	case StatusSubDocPathMismatch:
		return "subdoc path mismatch"
	case StatusSubDocPathInvalid:
		return "subdoc path invalid"
	case StatusSubDocPathTooBig:
		return "subdoc path too big"
	case StatusSubDocDocTooDeep:
		return "subdoc document too deep"
	case StatusSubDocCantInsert:
		return "subdoc cannot insert"
	case StatusSubDocNotJSON:
		return "subdoc document not json"
	case StatusSubDocBadRange:
		return "subdoc number out of range"
	case StatusSubDocBadDelta:
		return "subdoc bad delta"
	default:
		return fmt.Sprintf("status 0x%02x", uint16(s))
	}
}
