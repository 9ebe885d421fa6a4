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


package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/classpipe/classpipe/analysis"
	"github.com/classpipe/classpipe/internal"
	"github.com/classpipe/classpipe/pipeline"
)

// CheckHelp is the help string for this command.
const CheckHelp = "Check parameters:\n" +
	"classpipe check\n" +
	"[--pmdTools] [--mapDamage] [--pyDamage] [--damageProfiler] [--atlas] [--metaDamage]\n" +
	"[--tools name,name,...]\n" +
	"[--all-tools]\n" +
	"[--config json-file]\n" +
	"Without tool selection, all tools are checked, but only the preparation stages are required.\n"

// ErrMissingProgram is returned by Check when a required program cannot be found.
var ErrMissingProgram = errors.New("required program missing")

type requirementStatus struct {
	analysis.Requirement
	resolved string
	err      error
}

func (s requirementStatus) missing() bool {
	return s.err != nil
}

func resolveRequirement(req analysis.Requirement) requirementStatus {
	status := requirementStatus{Requirement: req}
	if req.File {
		if internal.Exists(req.Path) {
			status.resolved, status.err = internal.FullPathname(req.Path)
		} else {
			status.err = os.ErrNotExist
		}
		return status
	}
	status.resolved, status.err = exec.LookPath(req.Path)
	return status
}

// checkRequirements prints the state of the preparation requirements and
// of those of the given tools, and reports whether anything in required
// is missing.
func checkRequirements(w io.Writer, tc pipeline.Toolchain, tools []string, required map[string]bool) bool {
	reg := analysis.Default(tc)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	var missing bool
	report := func(stage string, reqs []analysis.Requirement, isRequired bool) {
		for _, req := range reqs {
			status := resolveRequirement(req)
			switch {
			case !status.missing():
				fmt.Fprintf(tw, "%v\t%v\tok\t%v\n", stage, status.Name, status.resolved)
			case isRequired:
				missing = true
				fmt.Fprintf(tw, "%v\t%v\tMISSING\t%v\n", stage, status.Name, status.Path)
			default:
				fmt.Fprintf(tw, "%v\t%v\tnot found\t%v\n", stage, status.Name, status.Path)
			}
		}
	}
	report("preparation", analysis.Preparation(tc), true)
	for _, name := range tools {
		a, _ := reg.Lookup(name)
		if r, ok := a.(analysis.Requirer); ok {
			report(name, r.Requires(), required[name])
		}
	}
	_ = tw.Flush()
	return missing
}

// Check implements the classpipe check command.
func Check(args []string) error {
	var (
		flags      flag.FlagSet
		configFile string
	)
	flags.StringVar(&configFile, "config", "", "JSON file with paths of the external programs")
	known := analysis.Default(pipeline.DefaultToolchain()).Names()
	tools := addToolFlags(&flags, known)
	if err := parseFlags(&flags, args, CheckHelp); err != nil {
		return err
	}
	selected, err := tools.names()
	if err != nil {
		fmt.Fprint(os.Stderr, CheckHelp)
		return err
	}
	tc := pipeline.DefaultToolchain()
	if configFile != "" {
		if tc, err = pipeline.LoadToolchain(configFile); err != nil {
			return fmt.Errorf("cannot load %v: %w", configFile, err)
		}
	}
	required := make(map[string]bool)
	for _, name := range selected {
		required[name] = true
	}
	checked := selected
	if len(checked) == 0 {
		checked = known
	}
	if checkRequirements(os.Stdout, tc, checked, required) {
		return ErrMissingProgram
	}
	return nil
}
