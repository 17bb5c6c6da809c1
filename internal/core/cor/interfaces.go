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

// Package cor (Chain of Responsibility) provides the building blocks the
// render workflow is assembled from: commands, chains of commands and the
// context that carries state and errors between them.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are constant keys used to manage the primary data flow
// within a BaseChain.
const (
	// CtxIn is the default key for the primary input of a command. The BaseChain
	// populates it with the output of the previous command.
	CtxIn = "__IN__"
	// CtxOut is the default key where a command places its primary output.
	CtxOut = "__OUT__"
)

// Context is the shared state of one workflow execution. Implementations
// must be safe for use by concurrent commands.
type Context interface {
	// SetContext sets the standard Go context carrying cancellation and the
	// current trace span.
	SetContext(context context.Context)

	// GetContext retrieves the standard Go `context.Context`.
	GetContext() context.Context

	// Add stores a key-value pair and returns the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records an error, keyed by the command that produced it.
	AddError(key string, err error)

	// GetErrors returns all errors collected during the workflow.
	GetErrors() map[string]error

	// FirstError returns the earliest recorded error, or nil.
	FirstError() error

	// Get retrieves a value from the context by its key.
	Get(key string) interface{}

	// Remove deletes a key-value pair from the context.
	Remove(key string)

	// HasErrors checks if any errors have been recorded in the context.
	HasErrors() bool

	// AddTempFile tracks a file or directory to delete on Close.
	AddTempFile(file string)

	// GetTempFiles returns a list of all tracked temporary paths.
	GetTempFiles() []string

	// Close removes every tracked temporary path.
	Close()
}

// Executable is anything that can run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a single step of a workflow.
type Command interface {
	Executable

	GetName() string

	GetInputParam() string

	GetOutputParam() string

	// IsExecutable reports whether the command's inputs are present. Chains
	// skip commands that are not executable.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer

	GetMeter() metric.Meter

	GetSuccessCounter() metric.Int64Counter

	GetErrorCounter() metric.Int64Counter

	// GetDurationHistogram may return nil when the instrument could not be
	// created.
	GetDurationHistogram() metric.Float64Histogram
}

// Chain is a Command made of an ordered list of commands.
type Chain interface {
	Command

	ContinueOnFailure(bool) Chain

	AddCommand(command Command) Chain
}
