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
	"errors"
	"fmt"

	"github.com/classpipe/classpipe/process"
)

var (
	// ErrPreparationFailed is wrapped by every *PreparationError.
	ErrPreparationFailed = errors.New("preparation failed")

	// ErrAnalysisToolFailed is wrapped by every *AnalysisError.
	ErrAnalysisToolFailed = errors.New("analysis tool failed")

	// ErrOutputLocked is returned when another run uses the same output root.
	ErrOutputLocked = errors.New("output directory is in use by another run")

	// ErrInputInResetDirectory is wrapped by every *InputLocationError.
	ErrInputInResetDirectory = errors.New("input lies in a directory the run resets")
)

// PreparationError reports the first failing step on the mandatory
// preparation path (alignment, conversion, annotation, sorting,
// indexing). It is fatal for the run.
type PreparationError struct {
	Step   string
	Result process.Result
}

func (e *PreparationError) Error() string {
	return fmt.Sprintf("%v: step %v (%v): %v", ErrPreparationFailed, e.Step, e.Result.Invocation.Program, e.Result.Status())
}

func (e *PreparationError) Unwrap() error { return ErrPreparationFailed }

// AnalysisError reports the failure of one analysis tool. It never
// stops other tools from running.
type AnalysisError struct {
	Tool string

	// Result is the first failing invocation, if a process failed.
	Result *process.Result

	// Err is set when the tool failed outside of a process invocation.
	Err error
}

func (e *AnalysisError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v: %v: %v", ErrAnalysisToolFailed, e.Tool, e.Err)
	case e.Result != nil:
		return fmt.Sprintf("%v: %v: %v %v", ErrAnalysisToolFailed, e.Tool, e.Result.Invocation.Program, e.Result.Status())
	default:
		return fmt.Sprintf("%v: %v", ErrAnalysisToolFailed, e.Tool)
	}
}

func (e *AnalysisError) Unwrap() error { return ErrAnalysisToolFailed }

// InputLocationError reports an input that resetting Dir would remove.
type InputLocationError struct {
	Path string
	Dir  string
}

func (e *InputLocationError) Error() string {
	return fmt.Sprintf("%v: %v is inside %v; move it or choose another output directory", ErrInputInResetDirectory, e.Path, e.Dir)
}

func (e *InputLocationError) Unwrap() error { return ErrInputInResetDirectory }
