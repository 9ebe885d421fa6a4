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


// Package analysis provides the adapters for the damage-pattern
// analysis tools, and a registry holding all of them.
//
// Each adapter only builds the command lines of its tool. Output
// directory handling, reporting and failure isolation are done by
// pipeline.Registry.
package analysis

import (
	"context"
	"log"

	"github.com/classpipe/classpipe/pipeline"
	"github.com/classpipe/classpipe/process"
)

// Names of the registered analysis tools, which are also the names of
// their output subdirectories.
const (
	PMDtoolsName       = "pmdTools"
	MapDamageName      = "mapDamage"
	PyDamageName       = "pyDamage"
	DamageProfilerName = "damageProfiler"
	AtlasName          = "atlas"
	MetaDamageName     = "metaDamage"
)

// All returns one adapter per supported tool, in registration order.
func All(tc pipeline.Toolchain) []pipeline.Analysis {
	return []pipeline.Analysis{
		PMDtools{Samtools: tc.Samtools, Python: tc.Python2, Script: tc.PMDtoolsScript},
		MapDamage{Program: tc.MapDamage},
		PyDamage{Program: tc.PyDamage},
		DamageProfiler{Java: tc.Java, Jar: tc.DamageProfilerJar},
		Atlas{Program: tc.Atlas},
		MetaDamage{Program: tc.MetaDMG},
	}
}

// Default returns a registry with all supported tools. A failing tool
// never stops the others.
func Default(tc pipeline.Toolchain) *pipeline.Registry {
	reg := pipeline.NewRegistry()
	for _, a := range All(tc) {
		if err := reg.Register(a, true); err != nil {
			log.Panic(err)
		}
	}
	return reg
}

func runOne(ctx context.Context, r process.Runner, inv process.Invocation) []process.Result {
	log.Printf("Running %v: %v", inv.Stage, inv.CommandLine())
	return []process.Result{r.Run(ctx, inv)}
}
