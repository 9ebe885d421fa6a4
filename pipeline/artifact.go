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

import "fmt"

// Stage tags an artifact with the pipeline stage that produced it.
type Stage int

// The artifact stages, in production order.
const (
	StageRaw Stage = iota
	StageAligned
	StageAnnotated
	StageSorted
	StageIndexed
)

func (s Stage) String() string {
	switch s {
	case StageRaw:
		return "raw"
	case StageAligned:
		return "aligned"
	case StageAnnotated:
		return "annotated"
	case StageSorted:
		return "sorted"
	case StageIndexed:
		return "indexed"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Format is the file format of an artifact.
type Format int

// The artifact formats.
const (
	FormatSequenceRead Format = iota
	FormatAlignmentText
	FormatAlignmentBinary
	FormatIndex
)

func (f Format) String() string {
	switch f {
	case FormatSequenceRead:
		return "sequence-read"
	case FormatAlignmentText:
		return "alignment-text"
	case FormatAlignmentBinary:
		return "alignment-binary"
	case FormatIndex:
		return "index"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// An Artifact is a file on disk produced by exactly one stage and
// consumed by the next. Stages never modify an artifact in place; each
// writes a new one.
type Artifact struct {
	Path   string
	Stage  Stage
	Format Format
}

func (a Artifact) String() string {
	return fmt.Sprintf("%v (%v, %v)", a.Path, a.Stage, a.Format)
}

// Prepared is the result of the preparation stage: a sorted, annotated
// alignment and its index sidecar. It is read-only for every analysis
// tool.
type Prepared struct {
	Alignment Artifact
	Index     Artifact
}
