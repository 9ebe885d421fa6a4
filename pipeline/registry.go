// classpipe: a pipeline for ancient-DNA damage-pattern analysis.
// Copyright (c) 2023-2026 the classpipe authors.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/classpipe/classpipe/blob/master/LICENSE.txt>.

package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/exascience/pargo/parallel"
	"github.com/willf/bitset"

	"github.com/classpipe/classpipe/internal"
	"github.com/classpipe/classpipe/process"
)

// An Analysis adapts one external damage-pattern tool.
//
// Run consumes the prepared alignment and the reference, both of which
// it must treat as read-only, and writes only into outDir, which is
// empty when Run is called. It returns the results of all invocations
// it made; a non-nil error reports a failure outside of those
// invocations.
type Analysis interface {
	Name() string
	Run(ctx context.Context, r process.Runner, prepared Prepared, reference, outDir string) ([]process.Result, error)
}

type registryEntry struct {
	analysis          Analysis
	continueOnFailure bool
}

// A Registry maps tool names to analysis adapters. Registration order
// defines the bit position of each tool in a selection.
type Registry struct {
	entries []registryEntry
	index   map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a to the registry. If continueOnFailure is false, a
// failure of a stops the scheduling of selected tools that have not yet
// started.
func (reg *Registry) Register(a Analysis, continueOnFailure bool) error {
	name := a.Name()
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid analysis tool name %q", name)
	}
	if name == AlignmentDirName {
		return fmt.Errorf("analysis tool name %q is reserved", name)
	}
	if _, ok := reg.index[name]; ok {
		return fmt.Errorf("analysis tool %q registered twice", name)
	}
	reg.index[name] = len(reg.entries)
	reg.entries = append(reg.entries, registryEntry{analysis: a, continueOnFailure: continueOnFailure})
	return nil
}

// Len returns the number of registered tools.
func (reg *Registry) Len() int {
	return len(reg.entries)
}

// Names returns the registered tool names in registration order.
func (reg *Registry) Names() []string {
	names := make([]string, len(reg.entries))
	for i, e := range reg.entries {
		names[i] = e.analysis.Name()
	}
	return names
}

// Lookup returns the analysis registered under name.
func (reg *Registry) Lookup(name string) (Analysis, bool) {
	i, ok := reg.index[name]
	if !ok {
		return nil, false
	}
	return reg.entries[i].analysis, true
}

// Selection turns a list of tool names into a selection. Duplicates are
// ignored; unknown names are an error.
func (reg *Registry) Selection(names []string) (*bitset.BitSet, error) {
	sel := bitset.New(uint(len(reg.entries)))
	var unknown []string
	for _, name := range names {
		i, ok := reg.index[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		sel.Set(uint(i))
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown analysis tool(s): %v (known: %v)",
			strings.Join(unknown, ", "), strings.Join(reg.Names(), ", "))
	}
	return sel, nil
}

// Selected returns the names in a selection, in registration order.
func (reg *Registry) Selected(sel *bitset.BitSet) []string {
	var names []string
	if sel == nil {
		return nil
	}
	for i, ok := sel.NextSet(0); ok && int(i) < len(reg.entries); i, ok = sel.NextSet(i + 1) {
		names = append(names, reg.entries[i].analysis.Name())
	}
	return names
}

// ToolOutcome is what happened to one selected tool.
type ToolOutcome struct {
	Tool    string
	Dir     string
	State   ToolState
	Results []process.Result

	// Err is an *AnalysisError if the tool failed.
	Err error
}

// Failed reports whether the tool ran and failed.
func (o ToolOutcome) Failed() bool {
	return o.State == ToolFailed
}

// AnalysisEnv is the shared, read-only input of all analysis tools of
// a run.
type AnalysisEnv struct {
	Runner    process.Runner
	Prepared  Prepared
	Reference string

	// Root is the output root; each tool gets its own reset
	// subdirectory named after the tool.
	Root string

	// MaxParallel bounds the number of tools running at the same time.
	MaxParallel int

	Report *Report
}

// Run runs the selected tools, at most env.MaxParallel at a time, and
// returns their outcomes in registration order. Tools never see each
// other's output, so the order in which they run does not matter. A
// failing tool is recorded and reported and does not keep the others
// from running, unless it was registered without continueOnFailure.
func (reg *Registry) Run(ctx context.Context, sel *bitset.BitSet, env AnalysisEnv) []ToolOutcome {
	var positions []int
	if sel == nil {
		return nil
	}
	for i, ok := sel.NextSet(0); ok && int(i) < len(reg.entries); i, ok = sel.NextSet(i + 1) {
		positions = append(positions, int(i))
	}
	outcomes := make([]ToolOutcome, len(positions))
	if len(positions) == 0 {
		return outcomes
	}
	if env.Report == nil {
		env.Report = NewReport("", nil)
	}
	states := newToolStates(reg.Selected(sel))

	var halted int32
	workers := env.MaxParallel
	if workers < 1 {
		workers = 1
	}
	if workers > len(positions) {
		workers = len(positions)
	}
	parallel.Range(0, len(positions), workers, func(low, high int) {
		for k := low; k < high; k++ {
			e := reg.entries[positions[k]]
			name := e.analysis.Name()
			if atomic.LoadInt32(&halted) != 0 || ctx.Err() != nil {
				_ = states.transition(name, ToolPending, ToolSkipped)
				outcomes[k] = ToolOutcome{Tool: name, State: ToolSkipped}
				continue
			}
			outcomes[k] = reg.runOne(ctx, e, states, env)
			if outcomes[k].Failed() && !e.continueOnFailure {
				atomic.StoreInt32(&halted, 1)
			}
		}
	})
	for k := range outcomes {
		if st, ok := states.get(outcomes[k].Tool); ok {
			outcomes[k].State = st
		}
	}
	return outcomes
}

func (reg *Registry) runOne(ctx context.Context, e registryEntry, states toolStates, env AnalysisEnv) (outcome ToolOutcome) {
	name := e.analysis.Name()
	outcome.Tool = name
	if err := states.transition(name, ToolPending, ToolRunning); err != nil {
		outcome.State = ToolFailed
		outcome.Err = &AnalysisError{Tool: name, Err: err}
		return outcome
	}
	env.Report.Running(name)
	defer env.Report.Finished(name)

	finish := func(err error) {
		outcome.State = ToolSucceeded
		if err != nil {
			outcome.State = ToolFailed
			outcome.Err = err
			log.Println(err)
			env.Report.ToolFailed(name, err)
		}
		_ = states.transition(name, ToolRunning, outcome.State)
	}

	dir, err := ResetSubdirectory(env.Root, name)
	if err != nil {
		finish(&AnalysisError{Tool: name, Err: err})
		return outcome
	}
	outcome.Dir = dir

	results, err := runIsolated(ctx, e.analysis, env, dir)
	outcome.Results = results
	for _, res := range results {
		env.Report.Record(res)
	}
	if err != nil {
		finish(&AnalysisError{Tool: name, Err: err})
		return outcome
	}
	for i := range results {
		if !results[i].Succeeded() {
			res := results[i]
			finish(&AnalysisError{Tool: name, Result: &res})
			return outcome
		}
	}
	if names, err := internal.Directory(dir); err == nil {
		log.Printf("%v wrote %v", name, names)
	}
	finish(nil)
	return outcome
}

// runIsolated runs a and turns a panic into an error, so that one
// misbehaving adapter cannot take the other tools down.
func runIsolated(ctx context.Context, a Analysis, env AnalysisEnv, dir string) (results []process.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return a.Run(ctx, env.Runner, env.Prepared, env.Reference, dir)
}
