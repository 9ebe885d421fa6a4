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
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/classpipe/classpipe/internal"
)

// Toolchain names the external programs the pipeline invokes. Each
// entry is either a program name looked up on PATH or a path.
type Toolchain struct {
	Minimap2          string `json:"minimap2"`
	Samtools          string `json:"samtools"`
	Python2           string `json:"python2"`
	PMDtoolsScript    string `json:"pmdtoolsScript"`
	MapDamage         string `json:"mapDamage"`
	PyDamage          string `json:"pydamage"`
	Java              string `json:"java"`
	DamageProfilerJar string `json:"damageProfilerJar"`
	Atlas             string `json:"atlas"`
	MetaDMG           string `json:"metaDMG"`
}

// InstallPath resolves a path relative to the directory holding the
// classpipe binary, where the bundled scripts are installed. It falls
// back to rel when the binary cannot be located.
func InstallPath(rel string) string {
	exe, err := os.Executable()
	if err != nil {
		return rel
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), rel)
}

// DefaultToolchain returns the program names used when nothing else is
// configured. The PMDtools script and the DamageProfiler jar are looked
// up next to the classpipe binary.
func DefaultToolchain() Toolchain {
	return Toolchain{
		Minimap2:          "minimap2",
		Samtools:          "samtools",
		Python2:           "python2",
		PMDtoolsScript:    InstallPath(filepath.Join("PMDtools", "pmdtools.0.60.py")),
		MapDamage:         "mapDamage",
		PyDamage:          "pydamage",
		Java:              "java",
		DamageProfilerJar: InstallPath(filepath.Join("DamageProfiler", "DamageProfiler-1.1-java11.jar")),
		Atlas:             "atlas",
		MetaDMG:           "metaDMG-cpp",
	}
}

// LoadToolchain reads a JSON toolchain file. Entries missing from the
// file keep their default values.
func LoadToolchain(filename string) (tc Toolchain, err error) {
	tc = DefaultToolchain()
	f, err := os.Open(filename)
	if err != nil {
		return tc, err
	}
	defer internal.CloseWith(&err, f)
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	err = dec.Decode(&tc)
	return tc, err
}

// RunConfiguration holds everything one run needs. It is built once
// from the command line and not modified afterwards.
type RunConfiguration struct {
	Reference string `json:"reference"`
	Seq1      string `json:"seq1"`
	Seq2      string `json:"seq2,omitempty"`
	Output    string `json:"output"`

	// Tools lists the names of the enabled analysis tools.
	Tools []string `json:"tools"`

	// SaveAlignment keeps the intermediate alignment files in the
	// output tree instead of a transient work area.
	SaveAlignment bool `json:"saveAlignment"`

	// TmpDir is the parent of the transient work area; empty means
	// os.TempDir().
	TmpDir string `json:"tmpDir,omitempty"`

	// Threads is passed to the aligner and to samtools.
	Threads int `json:"threads"`

	// MaxParallelTools bounds the number of analysis tools running at
	// the same time. Values below 1 mean 1.
	MaxParallelTools int `json:"maxParallelTools"`

	StageTimeout time.Duration `json:"stageTimeout,omitempty"`

	Report         bool `json:"report"`
	CompressReport bool `json:"compressReport"`

	Toolchain Toolchain `json:"toolchain"`
}

// ConfigFilename is the name under which the configuration of a run is
// saved in its output root.
const ConfigFilename = "classpipe-config.json"

// SaveConfiguration writes cfg as JSON into dir.
func SaveConfiguration(dir string, cfg RunConfiguration) (err error) {
	f, err := os.Create(filepath.Join(dir, ConfigFilename))
	if err != nil {
		return err
	}
	defer internal.CloseWith(&err, f)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
