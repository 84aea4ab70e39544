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

import (
	"fmt"

	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/retry"
)

// MapKvStatus translates a data service wire status into the error taxonomy.
// The mapping is operation dependent in one place: KeyExists means the CAS
// check failed on the CAS carrying operations, but "already there" on Add.
// Success maps to nil.
func MapKvStatus(op OpCode, status errdefs.StatusCode) error {
	switch status {
	case errdefs.StatusSuccess:
		return nil
	case errdefs.StatusKeyNotFound:
		return errdefs.ErrDocumentNotFound
	case errdefs.StatusKeyExists:
		switch op {
		case OpReplace, OpDelete, OpUnlock:
			return errdefs.ErrCasMismatch
		}
		return errdefs.ErrDocumentExists
	case errdefs.StatusTooBig:
		return errdefs.ErrValueTooLarge
	case errdefs.StatusInvalidArgs:
		return errdefs.ErrInvalidArgument
	case errdefs.StatusNotStored:
		if op == OpAdd {
			return errdefs.ErrDocumentExists
		}
		return errdefs.ErrTemporaryFailure
	case errdefs.StatusBadDelta, errdefs.StatusRangeError:
		return errdefs.ErrDeltaInvalid
	case errdefs.StatusNotMyVBucket:
		// the retry reason keeps this from surfacing; if it does, the
		// topology never settled within the deadline
		return errdefs.ErrTemporaryFailure
	case errdefs.StatusNoBucket:
		return errdefs.ErrBucketNotFound
	case errdefs.StatusLocked:
		return errdefs.ErrDocumentLocked
	case errdefs.StatusAuthError, errdefs.StatusAccessError:
		return errdefs.ErrAuthenticationFailure
	case errdefs.StatusNotInitialized:
		return errdefs.ErrTemporaryFailure
	case errdefs.StatusUnknownCommand, errdefs.StatusNotSupported:
		return errdefs.ErrUnsupportedOperation
	case errdefs.StatusOutOfMemory, errdefs.StatusBusy, errdefs.StatusTmpFail:
		return errdefs.ErrTemporaryFailure
	case errdefs.StatusInternalError:
		return errdefs.ErrInternalServerFailure
	case errdefs.StatusUnknownCollection:
		return errdefs.ErrCollectionNotFound
	case errdefs.StatusUnknownScope:
		return errdefs.ErrScopeNotFound
	case errdefs.StatusDurabilityInvalidLevel:
		return errdefs.ErrDurabilityLevelNotAvailable
	case errdefs.StatusDurabilityImpossible:
		return errdefs.ErrDurabilityImpossible
	case errdefs.StatusSyncWriteInProgress:
		return errdefs.ErrDurableWriteInProgress
	case errdefs.StatusSyncWriteAmbiguous:
		return errdefs.ErrDurabilityAmbiguous
	case errdefs.StatusSyncWriteReCommitInProgress:
		return errdefs.ErrDurableWriteReCommitInProgress
	case errdefs.StatusSubDocPathNotFound:
		return errdefs.ErrPathNotFound
	case errdefs.StatusSubDocPathMismatch:
		return errdefs.ErrPathMismatch
	case errdefs.StatusSubDocPathInvalid, errdefs.StatusSubDocCantInsert:
		return errdefs.ErrInvalidArgument
	case errdefs.StatusSubDocPathTooBig, errdefs.StatusSubDocDocTooDeep:
		return errdefs.ErrValueTooDeep
	case errdefs.StatusSubDocNotJSON:
		return errdefs.ErrDocumentNotJSON
	case errdefs.StatusSubDocBadRange:
		return errdefs.ErrNumberTooBig
	case errdefs.StatusSubDocBadDelta:
		return errdefs.ErrDeltaInvalid
	case errdefs.StatusSubDocPathExists:
		return errdefs.ErrPathExists
	default:
		return fmt.Errorf("%w: unhandled %v", errdefs.ErrInternalServerFailure, status)
	}
}

// RetryReasonForStatus reports the retry reason for statuses that describe a
// transient condition. Statuses describing a definite outcome, including the
// ambiguous durability one which must never be blindly retried, return false.
func RetryReasonForStatus(status errdefs.StatusCode) (retry.Reason, bool) {
	switch status {
	case errdefs.StatusLocked:
		return retry.ReasonKVLocked, true
	case errdefs.StatusTmpFail, errdefs.StatusBusy, errdefs.StatusOutOfMemory,
		errdefs.StatusNotInitialized:
		return retry.ReasonKVTemporaryFailure, true
	case errdefs.StatusNotMyVBucket:
		return retry.ReasonKVNotMyVBucket, true
	case errdefs.StatusUnknownCollection:
		return retry.ReasonKVCollectionOutdated, true
	case errdefs.StatusSyncWriteInProgress:
		return retry.ReasonKVSyncWriteInProgress, true
	case errdefs.StatusSyncWriteReCommitInProgress:
		return retry.ReasonKVSyncWriteReCommitInProgress, true
	}
	return retry.Reason{}, false
}
