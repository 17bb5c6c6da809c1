// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so callers can react without parsing messages.
type ErrorKind string

const (
	KindInput      ErrorKind = "input_error"
	KindAssetFetch ErrorKind = "asset_fetch_error"
	KindRender     ErrorKind = "render_error"
	KindCompose    ErrorKind = "compose_error"
	KindPublish    ErrorKind = "publish_error"
	KindInternal   ErrorKind = "internal_error"
)

// Error is the domain error carried through the render workflow.
//
// Diagnostic holds operator-only detail (for example the encoder's stderr tail).
// It is logged but never part of Error() so it cannot leak into API responses.
type Error struct {
	Kind       ErrorKind
	Op         string
	Err        error
	Diagnostic string
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// InputErrorf builds a caller-fixable error.
func InputErrorf(op string, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInput, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error found in err's chain,
// KindInternal for any other non-nil error and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DiagnosticOf returns the operator diagnostic attached to err, if any.
func DiagnosticOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Diagnostic
	}
	return ""
}
