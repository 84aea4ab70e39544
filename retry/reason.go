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

package retry

// Reason identifies why an operation is being considered for retry. Reasons
// carry the two properties the orchestration cares about: whether a
// non-idempotent operation may be retried for this reason, and whether the
// reason forces a retry regardless of the configured strategy.
type Reason struct {
	description         string
	allowsNonIdempotent bool
	alwaysRetry         bool
}

// AllowsNonIdempotentRetry reports whether an operation that cannot safely be
// applied twice may still be retried for this reason. This is true for
// reasons where the previous attempt is known not to have reached the server.
func (r Reason) AllowsNonIdempotentRetry() bool {
	return r.allowsNonIdempotent
}

// AlwaysRetry reports whether the operation must be retried for this reason
// even under a fail-fast strategy. Only reasons that reflect topology
// housekeeping rather than real failures set this.
func (r Reason) AlwaysRetry() bool {
	return r.alwaysRetry
}

func (r Reason) String() string {
	if r.description == "" {
		return "unknown"
	}
	return r.description
}

var (
	// ReasonUnknown covers errors with no more specific classification.
	ReasonUnknown = Reason{"unknown", false, false}
	// ReasonSocketNotAvailable occurs when the connection to dispatch on
	// could not be established.
	ReasonSocketNotAvailable = Reason{"socket-not-available", true, false}
	// ReasonServiceNotAvailable occurs when no endpoint for the service type
	// is known.
	ReasonServiceNotAvailable = Reason{"service-not-available", true, false}
	// ReasonNodeNotAvailable occurs when the node targeted by the operation
	// is not currently reachable.
	ReasonNodeNotAvailable = Reason{"node-not-available", true, false}
	// ReasonKVNotMyVBucket occurs when the data service reports the vbucket
	// has moved; the attempt never touched data, so it always retries.
	ReasonKVNotMyVBucket = Reason{"kv-not-my-vbucket", true, true}
	// ReasonKVCollectionOutdated occurs when the collection id needs to be
	// refreshed from the manifest; always retried.
	ReasonKVCollectionOutdated = Reason{"kv-collection-outdated", true, true}
	// ReasonKVErrorMapRetry occurs when the server error map flags a status
	// as retryable.
	ReasonKVErrorMapRetry = Reason{"kv-error-map-retry", true, false}
	// ReasonKVLocked occurs when the document is write locked.
	ReasonKVLocked = Reason{"kv-locked", true, false}
	// ReasonKVTemporaryFailure occurs when the data service is briefly
	// overloaded or out of resources.
	ReasonKVTemporaryFailure = Reason{"kv-temporary-failure", true, false}
	// ReasonKVSyncWriteInProgress occurs when another durable write to the
	// same document has not yet completed.
	ReasonKVSyncWriteInProgress = Reason{"kv-sync-write-in-progress", true, false}
	// ReasonKVSyncWriteReCommitInProgress occurs while a durable write is
	// being re-committed after a failover.
	ReasonKVSyncWriteReCommitInProgress = Reason{"kv-sync-write-re-commit-in-progress", true, false}
	// ReasonServiceResponseCodeIndicated occurs when a service level response
	// body marks the failure as retryable.
	ReasonServiceResponseCodeIndicated = Reason{"service-response-code-indicated", true, false}
	// ReasonSocketCloseInFlight occurs when the connection dropped while the
	// operation was in flight; the attempt may have executed, so
	// non-idempotent operations must not retry.
	ReasonSocketCloseInFlight = Reason{"socket-close-in-flight", false, false}
	// ReasonCircuitBreakerOpen occurs when the client side circuit breaker
	// rejected the dispatch before it was sent.
	ReasonCircuitBreakerOpen = Reason{"circuit-breaker-open", true, false}
	// ReasonQueryPreparedStatementFailure occurs when a cached prepared
	// statement is no longer valid and must be re-prepared.
	ReasonQueryPreparedStatementFailure = Reason{"query-prepared-statement-failure", true, false}
)
