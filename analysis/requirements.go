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

import "github.com/classpipe/classpipe/pipeline"

// A Requirement is an external program or file a stage needs.
type Requirement struct {
	Name string
	Path string

	// File requirements are checked for existence instead of being
	// looked up in PATH.
	File bool
}

// A Requirer lists what an analysis needs to run.
type Requirer interface {
	Requires() []Requirement
}

// Preparation lists what the alignment and preparation stages need.
func Preparation(tc pipeline.Toolchain) []Requirement {
	return []Requirement{
		{Name: "minimap2", Path: tc.Minimap2},
		{Name: "samtools", Path: tc.Samtools},
	}
}

func (p PMDtools) Requires() []Requirement {
	return []Requirement{
		{Name: "samtools", Path: p.Samtools},
		{Name: "python2", Path: p.Python},
		{Name: "PMDtools script", Path: p.Script, File: true},
	}
}

func (m MapDamage) Requires() []Requirement {
	return []Requirement{{Name: "mapDamage", Path: m.Program}}
}

func (p PyDamage) Requires() []Requirement {
	return []Requirement{{Name: "pydamage", Path: p.Program}}
}

func (d DamageProfiler) Requires() []Requirement {
	return []Requirement{
		{Name: "java", Path: d.Java},
		{Name: "DamageProfiler jar", Path: d.Jar, File: true},
	}
}

func (a Atlas) Requires() []Requirement {
	return []Requirement{{Name: "atlas", Path: a.Program}}
}

func (m MetaDamage) Requires() []Requirement {
	return []Requirement{{Name: "metaDMG-cpp", Path: m.Program}}
}
