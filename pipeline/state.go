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
	"fmt"

	psync "github.com/exascience/pargo/sync"

	"github.com/classpipe/classpipe/internal"
)

// RunState is the state of a whole run.
type RunState int

// The run states.
const (
	RunInit RunState = iota
	RunResolving
	RunAligning
	RunPreparing
	RunAnalyzing
	RunFinished
	RunAborted
)

func (s RunState) String() string {
	switch s {
	case RunInit:
		return "init"
	case RunResolving:
		return "resolving"
	case RunAligning:
		return "aligning"
	case RunPreparing:
		return "preparing"
	case RunAnalyzing:
		return "analyzing"
	case RunFinished:
		return "finished"
	case RunAborted:
		return "aborted"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

func allowedRunTransition(from, to RunState) bool {
	switch from {
	case RunInit:
		return to == RunResolving
	case RunResolving:
		return to == RunAligning || to == RunPreparing || to == RunAborted
	case RunAligning:
		return to == RunPreparing || to == RunAborted
	case RunPreparing:
		return to == RunAnalyzing || to == RunAborted
	case RunAnalyzing:
		return to == RunFinished || to == RunAborted
	default:
		return false
	}
}

// runMachine tracks the state of a run and the states it went through.
type runMachine struct {
	history []RunState
}

func newRunMachine() *runMachine {
	return &runMachine{history: []RunState{RunInit}}
}

func (m *runMachine) state() RunState {
	return m.history[len(m.history)-1]
}

func (m *runMachine) to(next RunState) error {
	if cur := m.state(); !allowedRunTransition(cur, next) {
		return fmt.Errorf("disallowed run transition: %v -> %v", cur, next)
	}
	m.history = append(m.history, next)
	return nil
}

// ToolState is the state of one analysis tool within a run.
type ToolState int

// The tool states.
const (
	ToolPending ToolState = iota
	ToolRunning
	ToolSucceeded
	ToolFailed
	ToolSkipped
)

func (s ToolState) String() string {
	switch s {
	case ToolPending:
		return "pending"
	case ToolRunning:
		return "running"
	case ToolSucceeded:
		return "succeeded"
	case ToolFailed:
		return "failed"
	case ToolSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("ToolState(%d)", int(s))
	}
}

func allowedToolTransition(from, to ToolState) bool {
	switch from {
	case ToolPending:
		return to == ToolRunning || to == ToolSkipped
	case ToolRunning:
		return to == ToolSucceeded || to == ToolFailed
	default:
		return false
	}
}

type toolKey string

func (k toolKey) Hash() uint64 {
	return internal.StringHash(string(k))
}

// toolStates is the state table of the tools of one run. Workers of
// the analysis registry update it concurrently; each tool's entry is
// only ever written by the worker that runs it.
type toolStates struct {
	m *psync.Map
}

func newToolStates(names []string) toolStates {
	m := psync.NewMap(0)
	for _, name := range names {
		m.LoadOrStore(toolKey(name), ToolPending)
	}
	return toolStates{m: m}
}

func (s toolStates) get(name string) (ToolState, bool) {
	v, ok := s.m.Load(toolKey(name))
	if !ok {
		return 0, false
	}
	return v.(ToolState), true
}

// transition moves name from one state to another. The check of the
// current state and the update happen under the lock of one map split.
func (s toolStates) transition(name string, from, to ToolState) (err error) {
	if !allowedToolTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %v -> %v", name, from, to)
	}
	s.m.Modify(toolKey(name), func(value interface{}, ok bool) (interface{}, bool) {
		if !ok {
			err = fmt.Errorf("unknown tool in state table: %q", name)
			return nil, false
		}
		if cur := value.(ToolState); cur != from {
			err = fmt.Errorf("invalid transition for %q: expected %v, got %v", name, from, cur)
			return cur, true
		}
		return to, true
	})
	return err
}
