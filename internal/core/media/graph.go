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

package media

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// PadKind is the media type flowing through a pad.
type PadKind int

const (
	VideoPad PadKind = iota
	AudioPad
)

func (k PadKind) String() string {
	if k == AudioPad {
		return "audio"
	}
	return "video"
}

// Pad is a named stream endpoint in a Graph: either a stream of an input
// file or the output of a filter chain.
type Pad struct {
	label string
	kind  PadKind
	input bool
}

// Kind returns the pad's media type.
func (p Pad) Kind() PadKind { return p.kind }

// Ref is the pad as written inside a filtergraph, e.g. "[bg]" or "[0:v]".
func (p Pad) Ref() string { return "[" + p.label + "]" }

// MapArg is the pad as passed to -map.
func (p Pad) MapArg() string {
	if p.input {
		return p.label
	}
	return p.Ref()
}

// Input is one input file of the graph. Its position on the command line is
// assigned when it is added and never written by hand.
type Input struct {
	Name    string
	Path    string
	Options []string
	index   int
}

func (in *Input) Video() Pad {
	return Pad{label: fmt.Sprintf("%d:v", in.index), kind: VideoPad, input: true}
}

func (in *Input) Audio() Pad {
	return Pad{label: fmt.Sprintf("%d:a", in.index), kind: AudioPad, input: true}
}

var labelPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Graph builds a -filter_complex description from named nodes. Every filter
// output label is unique and consumed at most once; violations are recorded
// and reported by Err.
type Graph struct {
	inputs   []*Input
	byName   map[string]*Input
	chains   []string
	labels   map[string]bool
	consumed map[string]bool
	errs     []error
}

// NewGraph returns an empty graph.
//
// Outputs:
//   - *Graph: A graph with no inputs or filters. Add inputs with AddInput and
//     filters with Chain, Split or Overlay, then check Err before reading
//     InputArgs and String.
func NewGraph() *Graph {
	return &Graph{
		byName:   make(map[string]*Input),
		labels:   make(map[string]bool),
		consumed: make(map[string]bool),
	}
}

// AddInput registers an input file under name. Options are placed before
// its -i flag.
func (g *Graph) AddInput(name, path string, options ...string) *Input {
	if _, ok := g.byName[name]; ok {
		g.errs = append(g.errs, fmt.Errorf("input %q added twice", name))
	}
	in := &Input{Name: name, Path: path, Options: options, index: len(g.inputs)}
	g.inputs = append(g.inputs, in)
	g.byName[name] = in
	return in
}

// Lookup returns the input registered under name.
func (g *Graph) Lookup(name string) (*Input, bool) {
	in, ok := g.byName[name]
	return in, ok
}

// Chain adds "[in...]f1,f2[out]" and returns the new pad.
func (g *Graph) Chain(out string, kind PadKind, inputs []Pad, filters ...string) Pad {
	pad := Pad{label: out, kind: kind}
	if !labelPattern.MatchString(out) {
		g.errs = append(g.errs, fmt.Errorf("invalid pad label %q", out))
		return pad
	}
	if g.labels[out] {
		g.errs = append(g.errs, fmt.Errorf("pad %q defined twice", out))
		return pad
	}
	if len(filters) == 0 {
		g.errs = append(g.errs, fmt.Errorf("pad %q has no filters", out))
		return pad
	}
	var b strings.Builder
	for _, in := range inputs {
		g.consume(in)
		b.WriteString(in.Ref())
	}
	b.WriteString(strings.Join(filters, ","))
	b.WriteString(pad.Ref())
	g.labels[out] = true
	g.chains = append(g.chains, b.String())
	return pad
}

// Split duplicates a video pad into len(outs) pads.
func (g *Graph) Split(in Pad, outs ...string) []Pad {
	if in.kind != VideoPad {
		g.errs = append(g.errs, fmt.Errorf("split of %s pad %s", in.kind, in.Ref()))
	}
	g.consume(in)
	var b strings.Builder
	b.WriteString(in.Ref())
	fmt.Fprintf(&b, "split=%d", len(outs))
	pads := make([]Pad, 0, len(outs))
	for _, o := range outs {
		p := Pad{label: o, kind: VideoPad}
		if g.labels[o] || !labelPattern.MatchString(o) {
			g.errs = append(g.errs, fmt.Errorf("invalid or duplicate pad %q", o))
		}
		g.labels[o] = true
		b.WriteString(p.Ref())
		pads = append(pads, p)
	}
	g.chains = append(g.chains, b.String())
	return pads
}

// Overlay places top over base. enable, when set, is the timeline
// expression that gates the overlay.
func (g *Graph) Overlay(out string, base, top Pad, x, y, enable string) Pad {
	if base.kind != VideoPad || top.kind != VideoPad {
		g.errs = append(g.errs, fmt.Errorf("overlay %q needs two video pads", out))
	}
	f := fmt.Sprintf("overlay=%s:%s", x, y)
	if enable != "" {
		f += fmt.Sprintf(":enable='%s'", enable)
	}
	return g.Chain(out, VideoPad, []Pad{base, top}, f)
}

func (g *Graph) consume(p Pad) {
	if p.input {
		return
	}
	if !g.labels[p.label] {
		g.errs = append(g.errs, fmt.Errorf("pad %s used before it is defined", p.Ref()))
	}
	if g.consumed[p.label] {
		g.errs = append(g.errs, fmt.Errorf("pad %s consumed twice", p.Ref()))
	}
	g.consumed[p.label] = true
}

// Err reports every structural problem found while building.
func (g *Graph) Err() error {
	return errors.Join(g.errs...)
}

// String is the -filter_complex argument.
func (g *Graph) String() string {
	return strings.Join(g.chains, ";")
}

// InputArgs expands every input to its options followed by -i path.
func (g *Graph) InputArgs() []string {
	var args []string
	for _, in := range g.inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}
	return args
}
