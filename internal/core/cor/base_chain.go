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

package cor

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// BaseChain runs its commands in order, each inside its own span, and pipes
// CtxOut of one command into CtxIn of the next. Unless ContinueOnFailure is
// set it stops at the first recorded error or when the Go context is done.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
}

// NewBaseChain creates an empty chain.
//
// Inputs:
//   - name: The chain name. It names the chain's own span and metrics.
//
// Outputs:
//   - *BaseChain: A chain that stops at the first failure. Use
//     ContinueOnFailure to run every command regardless.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

// ContinueOnFailure makes the chain run every command even after one fails.
func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

// AddCommand appends command to the chain.
func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// Commands returns the chain's commands in execution order.
func (c *BaseChain) Commands() []Command {
	return append([]Command(nil), c.commands...)
}

// IsExecutable only requires a Go context; each command checks its own inputs.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context.GetContext() != nil
}

func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()

	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	defer chCtx.SetContext(parentCtx)

	for _, command := range c.commands {
		if !c.continueOnFailure {
			if chCtx.HasErrors() {
				break
			}
			if err := outerCtx.Err(); err != nil {
				chCtx.AddError(c.GetName(), fmt.Errorf("%s cancelled before %s: %w", c.GetName(), command.GetName(), err))
				break
			}
		}

		commandContext, commandSpan := c.Tracer.Start(outerCtx, command.GetName())

		if command.IsExecutable(chCtx) {
			start := time.Now()
			chCtx.SetContext(commandContext)
			command.Execute(chCtx)
			chCtx.SetContext(outerCtx)

			failed := chCtx.HasErrors()
			if failed {
				commandSpan.SetStatus(codes.Error, "error during or after command execution")
			} else {
				commandSpan.SetStatus(codes.Ok, "command completed successfully")
			}
			if h := command.GetDurationHistogram(); h != nil {
				h.Record(outerCtx, time.Since(start).Seconds(), metric.WithAttributes(attribute.Bool("failed", failed)))
			}
		} else {
			commandSpan.AddEvent("skipped: inputs not present")
		}
		commandSpan.End()

		outputValue := chCtx.Get(CtxOut)
		if outputValue != nil {
			chCtx.Add(CtxIn, outputValue)
		}
		chCtx.Remove(CtxOut)
	}

	if !chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Ok, "chain completed successfully")
	} else {
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
	}
}
