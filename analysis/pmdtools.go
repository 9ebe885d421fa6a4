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
	"log"
	"os"
	"path/filepath"

	"github.com/classpipe/classpipe/pipeline"
	"github.com/classpipe/classpipe/process"
)

const (
	// PMDtoolsOutput receives the PMD scores of all reads.
	PMDtoolsOutput = "output.txt"

	// PMDtoolsHistScript plots a histogram of PMDtoolsOutput. It is
	// run from the tool directory, with the R interpreter of the user.
	PMDtoolsHistScript = "generate_hist.r"
)

const pmdHistScript = `pmd_scores <- read.delim("` + PMDtoolsOutput + `", header = FALSE, sep = "\t")
hist_data <- hist(pmd_scores$V4, breaks = 1000, xlab = "PMDscores")
plot(hist_data, main="Histogram of PMD Scores", xlab = "PMDscores", ylab = "Frequency")
`

// PMDtools scores reads for post-mortem damage. The alignment is
// streamed as SAM text from samtools into the PMDtools script.
type PMDtools struct {
	Samtools string
	Python   string
	Script   string
}

func (PMDtools) Name() string { return PMDtoolsName }

func (p PMDtools) Run(ctx context.Context, r process.Runner, prepared pipeline.Prepared, _, outDir string) ([]process.Result, error) {
	if err := os.WriteFile(filepath.Join(outDir, PMDtoolsHistScript), []byte(pmdHistScript), 0644); err != nil {
		return nil, err
	}
	view := process.Invocation{
		Stage:   PMDtoolsName,
		Program: p.Samtools,
		Args:    []string{"view", "-h", prepared.Alignment.Path},
	}
	score := process.Invocation{
		Stage:   PMDtoolsName,
		Program: p.Python,
		Args:    []string{p.Script, "--printDS"},
		Stdout:  process.ToFile(filepath.Join(outDir, PMDtoolsOutput)),
	}
	log.Printf("Running %v: %v | %v", PMDtoolsName, view.CommandLine(), score.CommandLine())
	return process.RunPiped(ctx, r, view, score), nil
}
