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
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/classpipe/classpipe/format"
	"github.com/classpipe/classpipe/process"
)

// Names of the files a Preparer writes into its work directory.
const (
	AlignedSamName = "reads.sam"
	BamName        = "reads.bam"
	CalmdBamName   = "reads.calmd.bam"
	SortedBamName  = "reads.sorted.bam"
	IndexName      = SortedBamName + ".bai"
)

// Names of the mandatory preparation steps.
const (
	StepAlign    = "align"
	StepConvert  = "convert"
	StepAnnotate = "annotate"
	StepSort     = "sort"
	StepIndex    = "index"
)

// A Recorder receives the result of every invocation.
type Recorder interface {
	Record(process.Result)
}

// A Preparer runs the mandatory stages that turn raw input into a
// prepared alignment: the optional alignment stage and the fixed
// convert, annotate, sort, and index chain.
type Preparer struct {
	Runner   process.Runner
	Tools    Toolchain
	Threads  int
	WorkDir  string
	Recorder Recorder
}

func (p *Preparer) threads() string {
	if p.Threads < 1 {
		return "1"
	}
	return strconv.Itoa(p.Threads)
}

func (p *Preparer) run(ctx context.Context, inv process.Invocation) process.Result {
	log.Printf("Running %v: %v", inv.Stage, inv.CommandLine())
	res := p.Runner.Run(ctx, inv)
	if p.Recorder != nil {
		p.Recorder.Record(res)
	}
	return res
}

// Align maps the reads of in against reference and returns the
// resulting text alignment. Paired-end mode is used if and only if in
// holds two read files.
func (p *Preparer) Align(ctx context.Context, reference string, in format.Input) (Artifact, error) {
	out := Artifact{
		Path:   p.path(AlignedSamName),
		Stage:  StageAligned,
		Format: FormatAlignmentText,
	}
	args := []string{"-t", p.threads(), "-a", "-x", "sr", reference}
	args = append(args, in.Reads...)
	args = append(args, "-o", out.Path)
	_ = os.Remove(out.Path)
	res := p.run(ctx, process.Invocation{Stage: StepAlign, Program: p.Tools.Minimap2, Args: args})
	if !res.Succeeded() {
		return Artifact{}, &PreparationError{Step: StepAlign, Result: res}
	}
	return out, nil
}

func (p *Preparer) path(name string) string {
	return filepath.Join(p.WorkDir, name)
}

type preparationStep struct {
	inv process.Invocation
	out Artifact
}

// steps returns the preparation chain for an alignment.
func (p *Preparer) steps(in Artifact, reference string) []preparationStep {
	var steps []preparationStep
	bam := in
	if in.Format == FormatAlignmentText {
		bam = Artifact{Path: p.path(BamName), Stage: StageAligned, Format: FormatAlignmentBinary}
		steps = append(steps, preparationStep{
			inv: process.Invocation{
				Stage:   StepConvert,
				Program: p.Tools.Samtools,
				Args:    []string{"view", "-@", p.threads(), "-b", in.Path, "-o", bam.Path},
			},
			out: bam,
		})
	}
	calmd := Artifact{Path: p.path(CalmdBamName), Stage: StageAnnotated, Format: FormatAlignmentBinary}
	sorted := Artifact{Path: p.path(SortedBamName), Stage: StageSorted, Format: FormatAlignmentBinary}
	index := Artifact{Path: p.path(IndexName), Stage: StageIndexed, Format: FormatIndex}
	return append(steps,
		preparationStep{
			inv: process.Invocation{
				Stage:   StepAnnotate,
				Program: p.Tools.Samtools,
				Args:    []string{"calmd", "-b", bam.Path, reference},
				Stdout:  process.ToFile(calmd.Path),
			},
			out: calmd,
		},
		preparationStep{
			inv: process.Invocation{
				Stage:   StepSort,
				Program: p.Tools.Samtools,
				Args:    []string{"sort", "-@", p.threads(), calmd.Path, "-o", sorted.Path},
			},
			out: sorted,
		},
		preparationStep{
			inv: process.Invocation{
				Stage:   StepIndex,
				Program: p.Tools.Samtools,
				Args:    []string{"index", sorted.Path, index.Path},
			},
			out: index,
		},
	)
}

// Prepare converts (if needed), annotates, sorts, and indexes the
// alignment in. The first failing step ends the chain with a
// *PreparationError; later steps are not run.
//
// Outputs of earlier runs in the same work directory are replaced. A
// text alignment produced by the alignment stage is removed once it has
// been converted; input provided by the user is never removed.
func (p *Preparer) Prepare(ctx context.Context, in Artifact, reference string) (Prepared, error) {
	var prepared Prepared
	for _, step := range p.steps(in, reference) {
		_ = os.Remove(step.out.Path)
		res := p.run(ctx, step.inv)
		if !res.Succeeded() {
			return Prepared{}, &PreparationError{Step: step.inv.Stage, Result: res}
		}
		switch step.inv.Stage {
		case StepConvert:
			if in.Stage != StageRaw {
				_ = os.Remove(in.Path)
			}
		case StepSort:
			prepared.Alignment = step.out
		case StepIndex:
			prepared.Index = step.out
		}
	}
	return prepared, nil
}

// RawArtifact describes a user-provided alignment file that enters the
// pipeline without the alignment stage.
func RawArtifact(path string, kind format.Kind) Artifact {
	f := FormatAlignmentBinary
	if kind == format.AlignedText {
		f = FormatAlignmentText
	}
	return Artifact{Path: path, Stage: StageRaw, Format: f}
}
