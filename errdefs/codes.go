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
	"regexp"
	"sort"
	"strings"
)

// ErrorCode is a numeric error code from a query service response body.
// Codes group by range: 1xxx service, 3xxx parser, 4xxx planner, 5xxx
// execution, 12xxx and 14xxx index service, 13xxx datastore authorization.
type ErrorCode uint32

// ErrorData describes one query service error code: what it means, what the
// caller should do about it, which taxonomy error it maps to and whether the
// failed request can be retried verbatim.
type ErrorData struct {
	Code        ErrorCode `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Action      string    `json:"action,omitempty"`
	Err         error     `json:"-"`
	Retriable   bool      `json:"retriable"`
}

var errorCodes = map[ErrorCode]ErrorData{
	1000: {
		Code:        1000,
		Name:        "service.request.readonly_violation",
		Description: "A mutating statement was submitted with the readonly flag set.",
		Action:      "Clear the readonly flag or use a non-mutating statement.",
		Err:         ErrInvalidArgument,
	},
	1065: {
		Code:        1065,
		Name:        "service.request.unrecognized_parameter",
		Description: "The request contained a parameter this server version does not recognize.",
		Action:      "Remove the parameter or upgrade the cluster.",
		Err:         ErrInvalidArgument,
	},
	1080: {
		Code:        1080,
		Name:        "service.request.timeout",
		Description: "The request ran past its server side timeout and was stopped before executing.",
		Action:      "Raise the timeout or reduce the statement's work.",
		Err:         ErrUnambiguousTimeout,
	},
	3000: {
		Code:        3000,
		Name:        "parse.syntax_error",
		Description: "The statement could not be parsed.",
		Action:      "Fix the statement text; retrying will not help.",
		Err:         ErrParsingFailure,
	},
	4000: {
		Code:        4000,
		Name:        "plan.build_error",
		Description: "The planner could not build a plan for the statement.",
		Action:      "Check that the referenced keyspaces and indexes exist.",
		Err:         ErrPlanningFailure,
	},
	4040: {
		Code:        4040,
		Name:        "plan.prepared.not_found",
		Description: "No prepared statement with the given name exists on this node.",
		Action:      "Re-prepare and retry; the client does this automatically.",
		Err:         ErrPreparedStatementFailure,
		Retriable:   true,
	},
	4050: {
		Code:        4050,
		Name:        "plan.prepared.unrecognized",
		Description: "The prepared statement name is not in a recognized format.",
		Action:      "Re-prepare and retry; the client does this automatically.",
		Err:         ErrPreparedStatementFailure,
		Retriable:   true,
	},
	4060: {
		Code:        4060,
		Name:        "plan.prepared.unable_to_decode",
		Description: "The encoded prepared statement could not be decoded.",
		Action:      "Re-prepare and retry; the client does this automatically.",
		Err:         ErrPreparedStatementFailure,
		Retriable:   true,
	},
	4070: {
		Code:        4070,
		Name:        "plan.prepared.encoding_mismatch",
		Description: "The prepared statement's encoded plan no longer matches its name.",
		Action:      "Re-prepare and retry; the client does this automatically.",
		Err:         ErrPreparedStatementFailure,
		Retriable:   true,
	},
	4090: {
		Code:        4090,
		Name:        "plan.prepared.context_mismatch",
		Description: "The prepared statement was created under a different query context.",
		Action:      "Re-prepare and retry; the client does this automatically.",
		Err:         ErrPreparedStatementFailure,
		Retriable:   true,
	},
	4300: {
		Code:        4300,
		Name:        "plan.new_index_already_exists",
		Description: "An index with the requested name already exists.",
		Action:      "Use a different index name or drop the existing index.",
		Err:         ErrIndexExists,
	},
	5000: {
		Code:        5000,
		Name:        "execution.internal_error",
		Description: "The statement failed inside the execution engine.",
		Action:      "Inspect the message text; many conditions carry a more specific cause.",
		Err:         ErrInternalServerFailure,
	},
	12003: {
		Code:        12003,
		Name:        "datastore.keyspace_not_found",
		Description: "The keyspace named in the statement does not exist.",
		Action:      "Check bucket, scope and collection names.",
		Err:         ErrCollectionNotFound,
	},
	12004: {
		Code:        12004,
		Name:        "datastore.index_not_found",
		Description: "No index matching the statement was found.",
		Action:      "Create the required index.",
		Err:         ErrIndexNotFound,
	},
	12009: {
		Code:        12009,
		Name:        "datastore.dml_error",
		Description: "A mutation inside the statement failed.",
		Action:      "Inspect the mutation count before retrying a partially applied statement.",
		Err:         ErrDMLFailure,
	},
	12016: {
		Code:        12016,
		Name:        "datastore.index_not_found_during_scan",
		Description: "An index disappeared while the statement was being served.",
		Action:      "Create the required index or retry once rebalance completes.",
		Err:         ErrIndexNotFound,
	},
	13014: {
		Code:        13014,
		Name:        "datastore.insufficient_credentials",
		Description: "The authenticated user may not access a keyspace the statement uses.",
		Action:      "Grant the user access or use different credentials.",
		Err:         ErrAuthenticationFailure,
	},
}

// LookupCode returns the registry entry for an exact code.
func LookupCode(code ErrorCode) (ErrorData, bool) {
	d, ok := errorCodes[code]
	return d, ok
}

// AllCodes returns every registry entry ordered by code.
func AllCodes() []ErrorData {
	out := make([]ErrorData, 0, len(errorCodes))
	for _, d := range errorCodes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// SearchCodes returns entries whose name, description or action matches the
// pattern, treated as a case insensitive regular expression. A pattern that
// does not compile falls back to substring matching.
func SearchCodes(pattern string) []ErrorData {
	match := func(s string) bool {
		return strings.Contains(strings.ToLower(s), strings.ToLower(pattern))
	}
	if re, err := regexp.Compile("(?i)" + pattern); err == nil {
		match = re.MatchString
	}
	var out []ErrorData
	for _, d := range AllCodes() {
		if match(d.Name) || match(d.Description) || match(d.Action) {
			out = append(out, d)
		}
	}
	return out
}

// MapQueryCode translates a query error descriptor into a taxonomy error.
// Message text disambiguates a few codes the server overloads. A nil return
// means the code is unmapped and the caller should fall back to a generic
// classification.
func MapQueryCode(code ErrorCode, message string) error {
	lower := strings.ToLower(message)
	switch code {
	case 12009:
		// DML errors wrap several more specific conditions in message text
		switch {
		case strings.Contains(lower, "cas mismatch"):
			return ErrCasMismatch
		case strings.Contains(lower, "duplicate key"):
			return ErrDocumentExists
		default:
			return ErrDMLFailure
		}
	case 5000:
		if strings.Contains(lower, "index") && strings.Contains(lower, "not found") {
			return ErrIndexNotFound
		}
		if strings.Contains(lower, "index") && strings.Contains(lower, "already exist") {
			return ErrIndexExists
		}
		if strings.Contains(lower, "not found") {
			return ErrDocumentNotFound
		}
		return ErrInternalServerFailure
	}
	if d, ok := errorCodes[code]; ok && d.Err != nil {
		return d.Err
	}
	switch {
	case code >= 4000 && code < 5000:
		return ErrPlanningFailure
	case code >= 5000 && code < 6000:
		return ErrInternalServerFailure
	case (code >= 12000 && code < 13000) || (code >= 14000 && code < 15000):
		return ErrIndexFailure
	case code >= 13000 && code < 14000:
		return ErrAuthenticationFailure
	default:
		return nil
	}
}

// RetriableCode reports whether a query error descriptor permits retrying
// the request verbatim, either via the registry or the descriptor's own
// retry flag.
func RetriableCode(desc ErrorDesc) bool {
	if desc.Retry {
		return true
	}
	if d, ok := errorCodes[desc.Code]; ok {
		return d.Retriable
	}
	return false
}
