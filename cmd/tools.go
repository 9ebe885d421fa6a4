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
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/classpipe/classpipe/analysis"
	"github.com/classpipe/classpipe/pipeline"
)

// ToolsHelp is the help string for this command.
const ToolsHelp = "Tools parameters:\n" +
	"classpipe tools\n"

func listTools(w io.Writer, reg *pipeline.Registry) {
	for _, name := range reg.Names() {
		fmt.Fprint(w, name, "\t--", name)
		if alias, ok := toolFlagAliases[name]; ok {
			fmt.Fprint(w, ", --", alias)
		}
		fmt.Fprintln(w)
	}
}

// Tools implements the classpipe tools command.
func Tools(args []string) error {
	var flags flag.FlagSet
	if err := parseFlags(&flags, args, ToolsHelp); err != nil {
		return err
	}
	listTools(os.Stdout, analysis.Default(pipeline.DefaultToolchain()))
	return nil
}
