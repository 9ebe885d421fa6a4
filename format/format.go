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

// Package format classifies the raw read inputs of a pipeline run by
// their filename suffixes.
//
// Classification never looks at file contents: a suffix is matched
// exactly (and case-sensitively) against a fixed list. Inputs with an
// unknown suffix are rejected with an error wrapping
// ErrUnrecognizedInputFormat, before any external tool is invoked.
package format

import (
	"errors"
	"fmt"
	"strings"
)

// Recognized read file suffixes.
const (
	FqExt      = ".fq"
	FastqExt   = ".fastq"
	FqGzExt    = ".fq.gz"
	FastqGzExt = ".fastq.gz"
	SamExt     = ".sam"
	BamExt     = ".bam"
)

// Kind is the classification of a run's raw input.
type Kind int

// The input kinds.
const (
	Unknown Kind = iota
	PairedFastq
	SingleFastq
	CompressedFastq
	AlignedText
	AlignedBinary
)

func (k Kind) String() string {
	switch k {
	case PairedFastq:
		return "paired-fastq"
	case SingleFastq:
		return "single-fastq"
	case CompressedFastq:
		return "compressed-fastq"
	case AlignedText:
		return "pre-aligned-text"
	case AlignedBinary:
		return "pre-aligned-binary"
	default:
		return "unknown"
	}
}

// NeedsAlignment reports whether reads of this kind must be run
// through the aligner first.
func (k Kind) NeedsAlignment() bool {
	return k == PairedFastq || k == SingleFastq || k == CompressedFastq
}

// NeedsConversion reports whether the alignment must still be
// converted from text to binary form.
func (k Kind) NeedsConversion() bool {
	return k != AlignedBinary
}

// ErrUnrecognizedInputFormat is wrapped by every classification failure.
var ErrUnrecognizedInputFormat = errors.New("unrecognized input format")

// Error describes why an input path could not be classified.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v (%v)", ErrUnrecognizedInputFormat, e.Path, e.Reason)
}

func (e *Error) Unwrap() error { return ErrUnrecognizedInputFormat }

// Input is a classified set of raw inputs.
type Input struct {
	Kind Kind

	// Reads holds one or two paths, in command line order.
	Reads []string

	// Compressed is true when the read files are gzip-compressed.
	Compressed bool
}

// Paired reports whether two read files were supplied.
func (in Input) Paired() bool {
	return len(in.Reads) == 2
}

var (
	fastqSuffixes      = []string{FqExt, FastqExt}
	compressedSuffixes = []string{FqGzExt, FastqGzExt}
)

func hasSuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// readKind classifies a single path. It returns Unknown for
// unrecognized suffixes.
func readKind(name string) (kind Kind, compressed bool) {
	switch {
	case hasSuffix(name, compressedSuffixes):
		return CompressedFastq, true
	case hasSuffix(name, fastqSuffixes):
		return SingleFastq, false
	case strings.HasSuffix(name, SamExt):
		return AlignedText, false
	case strings.HasSuffix(name, BamExt):
		return AlignedBinary, false
	default:
		return Unknown, false
	}
}

// Resolve classifies seq1 and the optional seq2.
//
// A second path is only accepted together with a read file in the first
// position, and must itself be a read file. Mixing compressed and
// uncompressed mates is allowed; the result is marked Compressed if
// either mate is.
func Resolve(seq1, seq2 string) (Input, error) {
	if seq1 == "" {
		return Input{}, &Error{Path: seq1, Reason: "no input given"}
	}
	kind, compressed := readKind(seq1)
	if kind == Unknown {
		return Input{}, &Error{Path: seq1, Reason: "expected one of " + suffixList()}
	}
	if seq2 == "" {
		return Input{Kind: kind, Reads: []string{seq1}, Compressed: compressed}, nil
	}
	if !kind.NeedsAlignment() {
		return Input{}, &Error{Path: seq2, Reason: "a second input is only valid with read files"}
	}
	kind2, compressed2 := readKind(seq2)
	if !kind2.NeedsAlignment() {
		return Input{}, &Error{Path: seq2, Reason: "expected one of " + suffixList()}
	}
	return Input{
		Kind:       PairedFastq,
		Reads:      []string{seq1, seq2},
		Compressed: compressed || compressed2,
	}, nil
}

func suffixList() string {
	all := append(append([]string{}, fastqSuffixes...), compressedSuffixes...)
	all = append(all, SamExt, BamExt)
	return strings.Join(all, ", ")
}
