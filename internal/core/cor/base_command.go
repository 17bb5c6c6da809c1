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
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MeterName is the instrumentation scope of every command counter.
const MeterName = "github.com/jaycherian/gcp-go-video-render"

// BaseCommand provides naming, input/output keys, a tracer, success/error
// counters and a duration histogram. Concrete commands embed it and
// implement Execute.
type BaseCommand struct {
	Name            string                  // Unique within a workflow; names spans and metrics.
	InputParamName  string                  // Context key of the primary input, CtxIn when empty.
	OutputParamName string                  // Context key of the primary output, CtxOut when empty.
	Tracer          trace.Tracer            // Tracer named after the command.
	Meter           metric.Meter            // Meter of the MeterName scope.
	SuccessCounter  metric.Int64Counter     // "<name>.counter.success"
	ErrorCounter    metric.Int64Counter     // "<name>.counter.error"
	Duration        metric.Float64Histogram // "<name>.duration" in seconds, recorded by the enclosing chain.
}

// NewBaseCommand creates the shared state embedded by every command.
//
// Inputs:
//   - name: The command name. Spans are named after it and its instruments are
//     "<name>.counter.success", "<name>.counter.error" and "<name>.duration".
//
// Outputs:
//   - *BaseCommand: Reads CtxIn and writes CtxOut unless the embedding
//     command changes InputParamName or OutputParamName. An instrument that
//     cannot be created is left nil and skipped.
func NewBaseCommand(name string) *BaseCommand {
	meter := otel.Meter(MeterName)
	out := &BaseCommand{Name: name, Tracer: otel.Tracer(name), Meter: meter}

	var err error
	if out.SuccessCounter, err = meter.Int64Counter(name + ".counter.success"); err != nil {
		slog.Warn("error creating success counter", "command", name, "error", err)
	}
	if out.ErrorCounter, err = meter.Int64Counter(name + ".counter.error"); err != nil {
		slog.Warn("error creating error counter", "command", name, "error", err)
	}
	if out.Duration, err = meter.Float64Histogram(name+".duration",
		metric.WithUnit("s"),
		metric.WithDescription(fmt.Sprintf("Wall time of %s", name)),
	); err != nil {
		slog.Warn("error creating duration histogram", "command", name, "error", err)
	}
	return out
}

func (c *BaseCommand) GetName() string {
	return c.Name
}

// IsExecutable requires the input key to be set and a Go context to be present.
func (c *BaseCommand) IsExecutable(context Context) bool {
	return context != nil && context.Get(c.GetInputParam()) != nil && context.GetContext() != nil
}

func (c *BaseCommand) GetInputParam() string {
	if len(c.InputParamName) == 0 {
		return CtxIn
	}
	return c.InputParamName
}

func (c *BaseCommand) GetOutputParam() string {
	if len(c.OutputParamName) == 0 {
		return CtxOut
	}
	return c.OutputParamName
}

func (c *BaseCommand) GetTracer() trace.Tracer {
	return c.Tracer
}

func (c *BaseCommand) GetMeter() metric.Meter {
	return c.Meter
}

func (c *BaseCommand) GetSuccessCounter() metric.Int64Counter {
	return c.SuccessCounter
}

func (c *BaseCommand) GetErrorCounter() metric.Int64Counter {
	return c.ErrorCounter
}

func (c *BaseCommand) GetDurationHistogram() metric.Float64Histogram {
	return c.Duration
}

// Fail records err against the command and bumps its error counter.
func (c *BaseCommand) Fail(context Context, err error) {
	if c.ErrorCounter != nil {
		c.ErrorCounter.Add(context.GetContext(), 1)
	}
	context.AddError(c.GetName(), err)
}

// Succeed bumps the command's success counter.
func (c *BaseCommand) Succeed(context Context) {
	if c.SuccessCounter != nil {
		c.SuccessCounter.Add(context.GetContext(), 1)
	}
}
