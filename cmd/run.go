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
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/classpipe/classpipe/analysis"
	"github.com/classpipe/classpipe/internal"
	"github.com/classpipe/classpipe/pipeline"
	"github.com/classpipe/classpipe/process"
)

// RunHelp is the help string for this command.
const RunHelp = "Run parameters:\n" +
	"classpipe run --ref fasta-file --seq1 reads-file [--seq2 reads-file]\n" +
	"[--output path]\n" +
	"[--saveAlignment]\n" +
	"[--pmdTools] [--mapDamage] [--pyDamage] [--damageProfiler] [--atlas] [--metaDamage]\n" +
	"[--tools name,name,...]\n" +
	"[--all-tools]\n" +
	"[--nr-of-threads nr]\n" +
	"[--max-parallel-tools nr]\n" +
	"[--stage-timeout duration]\n" +
	"[--tmp-dir path]\n" +
	"[--no-report]\n" +
	"[--compress-report]\n" +
	"[--config json-file]\n" +
	"[--log-path path]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"Reads files end in .fq, .fastq, .fq.gz or .fastq.gz; aligned inputs end in .sam or .bam.\n"

type runOptions struct {
	config     pipeline.RunConfiguration
	configFile string
	logPath    string
	profile    string
	timed      bool
	command    string
}

func parseRunArgs(args []string) (opts runOptions, err error) {
	var (
		flags    flag.FlagSet
		noReport bool
	)
	cfg := &opts.config

	flags.StringVar(&cfg.Reference, "ref", "", "reference genome in FASTA format")
	flags.StringVar(&cfg.Reference, "refDNA", "", "alias for --ref")
	flags.StringVar(&cfg.Seq1, "seq1", "", "reads or aligned reads")
	flags.StringVar(&cfg.Seq1, "aDNA1", "", "alias for --seq1")
	flags.StringVar(&cfg.Seq2, "seq2", "", "mate reads of paired-end data")
	flags.StringVar(&cfg.Seq2, "aDNA2", "", "alias for --seq2")
	flags.StringVar(&cfg.Output, "output", "output", "output directory")
	flags.BoolVar(&cfg.SaveAlignment, "saveAlignment", false, "keep the prepared alignment in the output directory")
	flags.BoolVar(&cfg.SaveAlignment, "saveBam", false, "alias for --saveAlignment")
	flags.IntVar(&cfg.Threads, "nr-of-threads", 0, "number of threads for the aligner and samtools")
	flags.IntVar(&cfg.MaxParallelTools, "max-parallel-tools", 1, "number of analysis tools running at the same time")
	flags.DurationVar(&cfg.StageTimeout, "stage-timeout", 0, "time limit for each external program")
	flags.StringVar(&cfg.TmpDir, "tmp-dir", "", "directory for intermediate files")
	flags.BoolVar(&noReport, "no-report", false, "do not write report_stdout and report_stderr")
	flags.BoolVar(&cfg.CompressReport, "compress-report", false, "compress the report files with snappy")
	flags.StringVar(&opts.configFile, "config", "", "JSON file with paths of the external programs")
	flags.StringVar(&opts.logPath, "log-path", "", "write log files to the specified directory")
	flags.BoolVar(&opts.timed, "timed", false, "measure the runtime")
	flags.StringVar(&opts.profile, "profile", "", "write a CPU profile")
	tools := addToolFlags(&flags, analysis.Default(pipeline.DefaultToolchain()).Names())

	if err = parseFlags(&flags, args, RunHelp); err != nil {
		return opts, err
	}
	if cfg.Tools, err = tools.names(); err != nil {
		fmt.Fprint(os.Stderr, RunHelp)
		return opts, err
	}
	cfg.Report = !noReport
	cfg.Toolchain = pipeline.DefaultToolchain()
	if opts.configFile != "" {
		if cfg.Toolchain, err = pipeline.LoadToolchain(opts.configFile); err != nil {
			return opts, fmt.Errorf("cannot load %v: %w", opts.configFile, err)
		}
	}
	if cfg.Threads == 0 {
		cfg.Threads = runtime.NumCPU()
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " run --ref ", cfg.Reference, " --seq1 ", cfg.Seq1)
	if cfg.Seq2 != "" {
		fmt.Fprint(&command, " --seq2 ", cfg.Seq2)
	}
	fmt.Fprint(&command, " --output ", cfg.Output)
	if cfg.SaveAlignment {
		fmt.Fprint(&command, " --saveAlignment")
	}
	fmt.Fprint(&command, tools.commandLine())
	fmt.Fprint(&command, " --nr-of-threads ", cfg.Threads)
	fmt.Fprint(&command, " --max-parallel-tools ", cfg.MaxParallelTools)
	if cfg.StageTimeout > 0 {
		fmt.Fprint(&command, " --stage-timeout ", cfg.StageTimeout)
	}
	if cfg.TmpDir != "" {
		fmt.Fprint(&command, " --tmp-dir ", cfg.TmpDir)
	}
	if noReport {
		fmt.Fprint(&command, " --no-report")
	}
	if cfg.CompressReport {
		fmt.Fprint(&command, " --compress-report")
	}
	if opts.configFile != "" {
		fmt.Fprint(&command, " --config ", opts.configFile)
	}
	if opts.logPath != "" {
		fmt.Fprint(&command, " --log-path ", opts.logPath)
	}
	if opts.timed {
		fmt.Fprint(&command, " --timed")
	}
	if opts.profile != "" {
		fmt.Fprint(&command, " --profile ", opts.profile)
	}
	opts.command = command.String()
	return opts, nil
}

// sanityCheck logs every problem it finds, and reports whether there
// were none.
func (opts *runOptions) sanityCheck() bool {
	cfg := &opts.config
	success := checkExist("--ref", cfg.Reference)
	if checkExist("--seq1", cfg.Seq1) {
		checkInputContent("--seq1", cfg.Seq1)
	} else {
		success = false
	}
	if cfg.Seq2 != "" {
		if checkExist("--seq2", cfg.Seq2) {
			checkInputContent("--seq2", cfg.Seq2)
		} else {
			success = false
		}
	}
	if !checkCreate("--output", cfg.Output) {
		success = false
	}
	if cfg.TmpDir != "" && !checkCreate("--tmp-dir", cfg.TmpDir) {
		success = false
	}
	if cfg.Threads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", cfg.Threads)
		success = false
	}
	if cfg.MaxParallelTools < 1 {
		log.Println("Error: Invalid max-parallel-tools: ", cfg.MaxParallelTools)
		success = false
	}
	if cfg.StageTimeout < 0 {
		log.Println("Error: Invalid stage-timeout: ", cfg.StageTimeout)
		success = false
	}
	return success
}

// fullPathnames makes the input paths and the script and jar paths of
// the toolchain absolute, since external tools may run in other
// directories.
func (opts *runOptions) fullPathnames() (err error) {
	cfg := &opts.config
	for _, path := range []*string{
		&cfg.Reference, &cfg.Seq1, &cfg.Seq2,
		&cfg.Toolchain.PMDtoolsScript, &cfg.Toolchain.DamageProfilerJar,
	} {
		if *path == "" {
			continue
		}
		if *path, err = internal.FullPathname(*path); err != nil {
			return err
		}
	}
	return nil
}

// Run implements the classpipe run command.
func Run(ctx context.Context, args []string) error {
	opts, err := parseRunArgs(args)
	if err != nil {
		return err
	}
	if err := setLogOutput(opts.logPath); err != nil {
		return err
	}

	// sanity checks

	if !opts.sanityCheck() {
		fmt.Fprint(os.Stderr, RunHelp)
		return usageError("sanity checks failed")
	}

	// executing command

	log.Println("Executing command:\n", opts.command)
	if err := opts.fullPathnames(); err != nil {
		return err
	}
	return opts.execute(ctx, process.Exec{Timeout: opts.config.StageTimeout}, os.Stdout)
}

func (opts *runOptions) execute(ctx context.Context, runner process.Runner, banners io.Writer) error {
	o := &pipeline.Orchestrator{
		Config:   opts.config,
		Runner:   runner,
		Registry: analysis.Default(opts.config.Toolchain),
		Banners:  banners,
	}
	var summary *pipeline.Summary
	err := timedRun(opts.timed, opts.profile, "Running pipeline.", 1, func() (err error) {
		summary, err = o.Run(ctx)
		return err
	})
	if cerr := ctx.Err(); cerr != nil {
		if err != nil {
			return fmt.Errorf("interrupted: %w (%v)", cerr, err)
		}
		return fmt.Errorf("interrupted: %w", cerr)
	}
	if err != nil {
		return err
	}
	for _, outcome := range summary.Outcomes {
		log.Printf("%v: %v", outcome.Tool, outcome.State)
	}
	if failed := summary.FailedTools(); len(failed) > 0 {
		return fmt.Errorf("%v of %v analysis tools failed, first: %w", len(failed), len(summary.Outcomes), failed[0].Err)
	}
	return nil
}
