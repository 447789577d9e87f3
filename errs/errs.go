// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs implements the tagged-sum error taxonomy shared by every
// layer of the compute core. Retry/skip policy is a function of the Kind,
// never of the originating package.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of retry/skip policy.
type Kind int

const (
	// NotFound indicates an entity is missing in storage.
	NotFound Kind = iota
	// Validation indicates bad input; never retried.
	Validation
	// DbFailure indicates a storage fault; the caller continues with the next item.
	DbFailure
	// ExternalProvider indicates an upstream price/news/filing failure.
	ExternalProvider
	// RateLimited indicates a 429 or token-bucket exhaustion within the caller's deadline.
	RateLimited
	// Timeout indicates a per-portfolio compute budget was exceeded.
	Timeout
	// FailureCached indicates the ticker is in the provider's negative-result cache.
	FailureCached
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case DbFailure:
		return "db_failure"
	case ExternalProvider:
		return "external_provider"
	case RateLimited:
		return "rate_limited"
	case Timeout:
		return "timeout"
	case FailureCached:
		return "failure_cached"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carrying a Kind, an optional wrapped
// cause, and a free-form message. Use Is/As or Kind-comparison via
// errors.As to recover the classification across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	// Fields carries structured context (ticker, portfolio id, job name, ...)
	// for logging; it is not part of the error's identity.
	Fields map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithField returns a copy of e with an added structured field.
func (e *Error) WithField(key string, value any) *Error {
	cp := *e
	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	cp.Fields = fields
	return &cp
}

// Is reports whether the first *Error in err's chain has the given Kind;
// an *Error wrapped inside another *Error is not consulted.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to DbFailure for
// unclassified errors so callers always have a safe retry/skip decision.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return DbFailure
}
