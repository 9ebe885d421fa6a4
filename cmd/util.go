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
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/classpipe/classpipe/analysis"
	"github.com/classpipe/classpipe/format"
	"github.com/classpipe/classpipe/pipeline"
	"github.com/classpipe/classpipe/utils"
)

// ProgramMessage is the first line printed when the classpipe binary is called.
var ProgramMessage string

func init() {
	ProgramMessage = fmt.Sprint(
		"\n", utils.ProgramName, " version ", utils.ProgramVersion,
		" compiled with ", runtime.Version(),
		" - see ", utils.ProgramURL, " for more information.\n",
	)
}

// HelpMessage is the extra help printed when the command line is incomplete.
const HelpMessage = "Print command details:\n" +
	"[--help]\n"

// ErrUsage is wrapped by all command line errors.
var ErrUsage = errors.New("invalid command line")

func usageError(msg string, v ...interface{}) error {
	return fmt.Errorf("%w: %v", ErrUsage, fmt.Sprintf(msg, v...))
}

// ExitCode maps the error returned by a command to the exit status of
// the classpipe binary.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, format.ErrUnrecognizedInputFormat):
		return 2
	case errors.Is(err, pipeline.ErrPreparationFailed):
		return 3
	case errors.Is(err, pipeline.ErrAnalysisToolFailed):
		return 4
	default:
		return 1
	}
}

// parseFlags parses args and prints help on stderr when they are not
// acceptable. It returns flag.ErrHelp when help was requested.
func parseFlags(flags *flag.FlagSet, args []string, help string) error {
	flags.SetOutput(ioutil.Discard)
	if err := flags.Parse(args); err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprint(os.Stderr, help)
			return usageError("%v", err)
		}
		fmt.Fprint(os.Stderr, help)
		return err
	}
	if flags.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		return usageError("cannot parse remaining parameters: %v", flags.Args())
	}
	return nil
}

// toolFlagAliases are the alternative spellings of the tool flags.
var toolFlagAliases = map[string]string{
	analysis.PMDtoolsName:       "PMDtools",
	analysis.DamageProfilerName: "damageProfile",
}

type toolSelection struct {
	known   []string
	enabled map[string]*bool
	list    string
	all     bool
}

// addToolFlags defines one boolean flag per known tool, plus --tools
// and --all-tools.
func addToolFlags(flags *flag.FlagSet, known []string) *toolSelection {
	s := &toolSelection{known: known, enabled: make(map[string]*bool)}
	for _, name := range known {
		enabled := new(bool)
		s.enabled[name] = enabled
		flags.BoolVar(enabled, name, false, "run "+name)
		if alias, ok := toolFlagAliases[name]; ok {
			flags.BoolVar(enabled, alias, false, "run "+name)
		}
	}
	flags.StringVar(&s.list, "tools", "", "comma-separated list of tools to run")
	flags.BoolVar(&s.all, "all-tools", false, "run all tools")
	return s
}

// names returns the selected tools in the order in which they are known.
func (s *toolSelection) names() ([]string, error) {
	selected := make(map[string]bool)
	if s.list != "" {
		var unknown []string
		for _, name := range strings.Split(s.list, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := s.enabled[name]; !ok {
				unknown = append(unknown, name)
				continue
			}
			selected[name] = true
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, usageError("unknown tool(s) %v, known tools are %v",
				strings.Join(unknown, ", "), strings.Join(s.known, ", "))
		}
	}
	var names []string
	for _, name := range s.known {
		if s.all || selected[name] || *s.enabled[name] {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *toolSelection) commandLine() string {
	var b strings.Builder
	for _, name := range s.known {
		if *s.enabled[name] {
			fmt.Fprint(&b, " --", name)
		}
	}
	if s.list != "" {
		fmt.Fprint(&b, " --tools ", s.list)
	}
	if s.all {
		fmt.Fprint(&b, " --all-tools")
	}
	return b.String()
}

func logCheckFile(parameter, format string, v ...interface{}) {
	if parameter != "" {
		log.Printf(format+" for command line parameter %v.\n", append(v, parameter)...)
	} else {
		log.Printf(format+".\n", v...)
	}
}

func checkExist(parameter, filename string) bool {
	if len(filename) == 0 {
		logCheckFile(parameter, "Error: Missing filename")
		return false
	}
	if filename[0] == '-' {
		logCheckFile(parameter, "Error: Missing filename before %v", filename)
		return false
	}
	if _, err := os.Stat(filename); err == nil {
		return true
	} else if os.IsNotExist(err) {
		logCheckFile(parameter, "Error: File %v does not exist", filename)
		return false
	} else if os.IsPermission(err) {
		logCheckFile(parameter, "Error: No permission to read file %v", filename)
		return false
	} else {
		logCheckFile(parameter, "Error %v when trying to access file %v", err, filename)
		return false
	}
}

// checkInputContent warns when an existing input does not look like
// what its suffix announces. It never changes the classification.
func checkInputContent(parameter, filename string) {
	in, err := format.Resolve(filename, "")
	if err != nil {
		return
	}
	switch in.Kind {
	case format.CompressedFastq, format.AlignedBinary:
		if ok, err := utils.IsGzipFile(filename); err == nil && !ok {
			logCheckFile(parameter, "Warning: File %v is not gzip-compressed", filename)
		}
	}
	if in.Kind == format.AlignedBinary {
		if ok, err := utils.HasBgzfEOF(filename); err == nil && !ok {
			logCheckFile(parameter, "Warning: File %v lacks the BGZF end-of-file marker and may be truncated", filename)
		}
	}
}

func checkCreate(parameter, dirname string) bool {
	if len(dirname) == 0 {
		logCheckFile(parameter, "Error: Missing directory name")
		return false
	}
	if dirname[0] == '-' {
		logCheckFile(parameter, "Error: Missing directory name before %v", dirname)
		return false
	}
	info, err := os.Stat(dirname)
	if err == nil {
		if !info.IsDir() {
			logCheckFile(parameter, "Error: %v is not a directory", dirname)
			return false
		}
		// Assume that the directory has been written by previous classpipe runs, and can be overwritten.
		return true
	}
	if !os.IsNotExist(err) {
		logCheckFile(parameter, "Error %v when trying to access directory %v", err, dirname)
		return false
	}
	return true
}

func createLogFilename() string {
	t := time.Now()
	zone, _ := t.Zone()
	return fmt.Sprintf("logs/classpipe/classpipe-%d-%02d-%02d-%02d-%02d-%02d-%09d-%v.log", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}

// setLogOutput sends the log to a fresh log file, and to the original
// stderr. Anything else written to stderr afterwards, including output
// of panics, ends up in the log file.
func setLogOutput(path string) error {
	logPath := createLogFilename()
	var fullPath string
	if path == "" {
		fullPath = filepath.Join(os.Getenv("HOME"), logPath)
	} else {
		fullPath = filepath.Join(path, logPath)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0700); err != nil {
		return err
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(f, ProgramMessage)

	orgStderr, err := unix.Dup(2)
	if err != nil {
		return err
	}
	ferr := os.NewFile(uintptr(orgStderr), "/dev/stderr")
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		return err
	}

	multi := io.MultiWriter(f, ferr)

	log.SetOutput(multi)
	log.Println("Created log file at", fullPath)
	log.Println("Command line:", os.Args)
	return nil
}

func timedRun(timed bool, profile, msg string, phase int64, f func() error) (err error) {
	if profile != "" {
		filename := profile + strconv.FormatInt(phase, 10) + ".prof"
		file, err := os.Create(filename)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}()
		if err := pprof.StartCPUProfile(file); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}
	if timed {
		log.Println(msg)
		start := time.Now()
		defer func() {
			end := time.Now()
			log.Println("Elapsed time: ", end.Sub(start))
		}()
	}
	return f()
}
