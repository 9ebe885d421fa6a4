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


package analysis

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/classpipe/classpipe/pipeline"
	"github.com/classpipe/classpipe/process"
)

// MapDamage runs mapDamage on the merged reference sequences, without
// the statistical estimation step.
type MapDamage struct {
	Program string
}

func (MapDamage) Name() string { return MapDamageName }

func (m MapDamage) Run(ctx context.Context, r process.Runner, prepared pipeline.Prepared, reference, outDir string) ([]process.Result, error) {
	return runOne(ctx, r, process.Invocation{
		Stage:   MapDamageName,
		Program: m.Program,
		Args: []string{
			"-i", prepared.Alignment.Path,
			"-r", reference,
			"-d", outDir,
			"--merge-reference-sequences",
			"--no-stats",
		},
	}), nil
}

// PyDamage runs pydamage analyze, with plots.
type PyDamage struct {
	Program string
}

func (PyDamage) Name() string { return PyDamageName }

func (p PyDamage) Run(ctx context.Context, r process.Runner, prepared pipeline.Prepared, _, outDir string) ([]process.Result, error) {
	return runOne(ctx, r, process.Invocation{
		Stage:   PyDamageName,
		Program: p.Program,
		Args:    []string{"--outdir", outDir, "analyze", prepared.Alignment.Path, "--plot"},
	}), nil
}

// DamageProfiler runs the DamageProfiler jar.
type DamageProfiler struct {
	Java string
	Jar  string
}

func (DamageProfiler) Name() string { return DamageProfilerName }

func (d DamageProfiler) Run(ctx context.Context, r process.Runner, prepared pipeline.Prepared, reference, outDir string) ([]process.Result, error) {
	return runOne(ctx, r, process.Invocation{
		Stage:   DamageProfilerName,
		Program: d.Java,
		Args:    []string{"-jar", d.Jar, "-i", prepared.Alignment.Path, "-r", reference, "-o", outDir},
	}), nil
}

// AtlasReadLength is the read length ATLAS estimates PMD patterns for.
const AtlasReadLength = 50

// Atlas runs the PMD task of ATLAS. Its output files are prefixed with
// outDir/atlas.
type Atlas struct {
	Program string
}

func (Atlas) Name() string { return AtlasName }

func (a Atlas) Run(ctx context.Context, r process.Runner, prepared pipeline.Prepared, reference, outDir string) ([]process.Result, error) {
	return runOne(ctx, r, process.Invocation{
		Stage:   AtlasName,
		Program: a.Program,
		Args: []string{
			"task=PMD",
			"bam=" + prepared.Alignment.Path,
			"fasta=" + reference,
			"length=" + strconv.Itoa(AtlasReadLength),
			"out=" + filepath.Join(outDir, AtlasName),
		},
	}), nil
}

// MetaDamage computes damage patterns with metaDMG-cpp.
type MetaDamage struct {
	Program string
}

func (MetaDamage) Name() string { return MetaDamageName }

func (m MetaDamage) Run(ctx context.Context, r process.Runner, prepared pipeline.Prepared, _, outDir string) ([]process.Result, error) {
	return runOne(ctx, r, process.Invocation{
		Stage:   MetaDamageName,
		Program: m.Program,
		Args: []string{
			"getdamage",
			"--run_mode", "0",
			"--out_prefix", filepath.Join(outDir, MetaDamageName),
			prepared.Alignment.Path,
		},
	}), nil
}
