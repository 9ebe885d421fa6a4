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


package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/classpipe/classpipe/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: run, check, tools")
	fmt.Fprint(os.Stderr, "\n", cmd.RunHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.CheckHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.ToolsHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var err error
	switch os.Args[1] {
	case "run":
		err = cmd.Run(ctx, os.Args[2:])
	case "check":
		err = cmd.Check(os.Args[2:])
	case "tools":
		err = cmd.Tools(os.Args[2:])
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		if strings.HasPrefix(os.Args[1], "-") {
			err = cmd.Run(ctx, os.Args[1:])
		} else {
			log.Println("Unknown command:", os.Args[1])
			printHelp()
			stop()
			os.Exit(1)
		}
	}
	stop()
	if code := cmd.ExitCode(err); code != 0 {
		log.Println(err)
		os.Exit(code)
	}
}
