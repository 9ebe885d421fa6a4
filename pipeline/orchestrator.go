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
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/classpipe/classpipe/format"
	"github.com/classpipe/classpipe/process"
)

// An Orchestrator runs one pipeline: resolve the input format, align if
// needed, prepare, and run the selected analysis tools.
type Orchestrator struct {
	Config   RunConfiguration
	Runner   process.Runner
	Registry *Registry

	// Banners receives the human-facing progress messages.
	Banners io.Writer
}

// Summary describes a completed or aborted run.
type Summary struct {
	RunID    string
	State    RunState
	History  []RunState
	Input    format.Input
	Prepared Prepared
	Outcomes []ToolOutcome

	// Invocations holds every external invocation, in order of completion.
	Invocations []process.Result
}

// FailedTools returns the outcomes of the tools that failed.
func (s *Summary) FailedTools() []ToolOutcome {
	var failed []ToolOutcome
	for _, o := range s.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Run executes the pipeline. A non-nil error means the run was aborted
// before the analysis stage: it wraps format.ErrUnrecognizedInputFormat,
// ErrPreparationFailed, ErrOutputLocked, or an environment error.
// Failures of individual analysis tools are reported in the summary
// only.
//
// Nothing is created on disk before the input has been classified.
func (o *Orchestrator) Run(ctx context.Context) (summary *Summary, err error) {
	cfg := o.Config
	summary = &Summary{RunID: uuid.New().String()}
	report := NewReport(summary.RunID, o.Banners)
	machine := newRunMachine()
	defer func() {
		if err != nil {
			report.Error(err)
			_ = machine.to(RunAborted)
		}
		summary.State = machine.state()
		summary.History = machine.history
		summary.Invocations = report.Records()
	}()

	if err = machine.to(RunResolving); err != nil {
		return summary, err
	}
	registry := o.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	selection, err := registry.Selection(cfg.Tools)
	if err != nil {
		return summary, err
	}
	if cfg.Reference == "" {
		return summary, errors.New("no reference genome given")
	}
	summary.Input, err = format.Resolve(cfg.Seq1, cfg.Seq2)
	if err != nil {
		return summary, err
	}
	log.Printf("Input %v classified as %v", summary.Input.Reads, summary.Input.Kind)

	root, err := filepath.Abs(cfg.Output)
	if err != nil {
		return summary, err
	}
	if err = checkInputsOutsideResets(root, cfg.SaveAlignment, registry.Selected(selection),
		cfg.Reference, cfg.Seq1, cfg.Seq2); err != nil {
		return summary, err
	}
	if err = os.MkdirAll(root, 0755); err != nil {
		return summary, err
	}
	lock, err := lockOutput(root)
	if err != nil {
		return summary, err
	}
	defer func() {
		if uerr := lock.unlock(); err == nil {
			err = uerr
		}
	}()
	if cfg.Report {
		if err = report.OpenLogs(root, cfg.CompressReport); err != nil {
			return summary, err
		}
	}
	defer func() {
		if cerr := report.Close(); err == nil {
			err = cerr
		}
	}()
	if err = SaveConfiguration(root, cfg); err != nil {
		return summary, err
	}

	work, err := NewWorkArea(root, cfg.SaveAlignment, cfg.TmpDir)
	if err != nil {
		return summary, err
	}
	defer func() {
		if werr := work.Close(); werr != nil {
			log.Println("Can't remove intermediate files:", werr)
		}
	}()

	preparer := &Preparer{
		Runner:   o.Runner,
		Tools:    cfg.Toolchain,
		Threads:  cfg.Threads,
		WorkDir:  work.Dir,
		Recorder: report,
	}
	var alignment Artifact
	if summary.Input.Kind.NeedsAlignment() {
		if err = machine.to(RunAligning); err != nil {
			return summary, err
		}
		if alignment, err = preparer.Align(ctx, cfg.Reference, summary.Input); err != nil {
			return summary, err
		}
	} else {
		alignment = RawArtifact(summary.Input.Reads[0], summary.Input.Kind)
	}

	if err = machine.to(RunPreparing); err != nil {
		return summary, err
	}
	if summary.Prepared, err = preparer.Prepare(ctx, alignment, cfg.Reference); err != nil {
		return summary, err
	}

	if err = machine.to(RunAnalyzing); err != nil {
		return summary, err
	}
	summary.Outcomes = registry.Run(ctx, selection, AnalysisEnv{
		Runner:      o.Runner,
		Prepared:    summary.Prepared,
		Reference:   cfg.Reference,
		Root:        root,
		MaxParallel: cfg.MaxParallelTools,
		Report:      report,
	})

	if err = machine.to(RunFinished); err != nil {
		return summary, err
	}
	report.PipelineFinished()
	return summary, nil
}
