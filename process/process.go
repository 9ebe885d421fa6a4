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

// Package process launches external programs with explicit argument
// vectors and file redirections, and reports their outcome as a Result.
//
// Nothing here goes through a shell. The exit status of every invocation
// is recorded; interpreting it is up to the caller.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// A Redirect names a file that one of the standard streams of a child
// process is connected to.
type Redirect struct {
	Path string

	// Append opens an output file for appending instead of truncating it.
	Append bool
}

// FromFile redirects standard input from the named file.
func FromFile(path string) *Redirect { return &Redirect{Path: path} }

// ToFile redirects an output stream to the named file, truncating it.
func ToFile(path string) *Redirect { return &Redirect{Path: path} }

// AppendTo redirects an output stream to the end of the named file.
func AppendTo(path string) *Redirect { return &Redirect{Path: path, Append: true} }

// Invocation describes one run of an external program.
type Invocation struct {
	// Stage is a short label used in logs and reports, e.g. "sort".
	Stage string

	Program string
	Args    []string

	// Dir is the working directory; empty means the current one.
	Dir string

	// Env holds additional NAME=value pairs on top of os.Environ().
	Env []string

	// Stdin, Stdout, and Stderr are optional. Output streams that are
	// not redirected are captured into the Result.
	Stdin, Stdout, Stderr *Redirect
}

// CommandLine renders the invocation for logging purposes only.
func (inv Invocation) CommandLine() string {
	var b strings.Builder
	b.WriteString(inv.Program)
	for _, arg := range inv.Args {
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	if inv.Stdin != nil {
		fmt.Fprint(&b, " < ", inv.Stdin.Path)
	}
	if inv.Stdout != nil {
		if inv.Stdout.Append {
			fmt.Fprint(&b, " >> ", inv.Stdout.Path)
		} else {
			fmt.Fprint(&b, " > ", inv.Stdout.Path)
		}
	}
	if inv.Stderr != nil {
		fmt.Fprint(&b, " 2> ", inv.Stderr.Path)
	}
	return b.String()
}

// Result is the outcome of one Invocation.
type Result struct {
	Invocation Invocation

	// ExitCode is the exit status of the process, or -1 if it could not
	// be started or was killed.
	ExitCode int

	Stdout, Stderr []byte
	Duration       time.Duration

	// Err is set when the process could not be started, when a
	// redirection could not be opened, or when the process was killed
	// because its context ended.
	Err error
}

// Succeeded reports whether the process ran and exited with status 0.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Status describes the outcome in a few words.
func (r Result) Status() string {
	switch {
	case r.Err != nil:
		return r.Err.Error()
	case r.ExitCode == 0:
		return "ok"
	default:
		return fmt.Sprintf("exit status %d", r.ExitCode)
	}
}

var errPipelineAborted = errors.New("aborted: another process of the pipeline failed to start")

// A Runner runs invocations synchronously.
type Runner interface {
	Run(ctx context.Context, inv Invocation) Result
}

// Exec is the Runner that launches real child processes.
type Exec struct {
	// Timeout bounds each invocation; zero means no bound.
	Timeout time.Duration
}

// Run implements Runner.
func (e Exec) Run(ctx context.Context, inv Invocation) Result {
	var files []*os.File
	defer closeAll(&files)
	c, err := prepare(inv, &files, false)
	if err != nil {
		return Result{Invocation: inv, ExitCode: -1, Err: err}
	}
	return e.wait(ctx, []*child{c})[0]
}

// child is a prepared but not yet started process.
type child struct {
	inv            Invocation
	cmd            *exec.Cmd
	stdout, stderr *bytes.Buffer
}

func closeAll(files *[]*os.File) {
	for _, f := range *files {
		_ = f.Close()
	}
}

// prepare builds the command for inv. Files opened for redirections are
// appended to *files so the caller can close them. When piped is true,
// standard output is left unconnected for the caller to attach.
func prepare(inv Invocation, files *[]*os.File, piped bool) (*child, error) {
	if inv.Program == "" {
		return nil, errors.New("no program given")
	}
	c := &child{inv: inv, cmd: exec.Command(inv.Program, inv.Args...)}
	c.cmd.Dir = inv.Dir
	c.cmd.Env = append(os.Environ(), inv.Env...)
	c.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if inv.Stdin != nil {
		f, err := os.Open(inv.Stdin.Path)
		if err != nil {
			return nil, err
		}
		*files = append(*files, f)
		c.cmd.Stdin = f
	}
	var err error
	if !piped {
		if c.cmd.Stdout, c.stdout, err = openOutput(inv.Stdout, files); err != nil {
			return nil, err
		}
	}
	if c.cmd.Stderr, c.stderr, err = openOutput(inv.Stderr, files); err != nil {
		return nil, err
	}
	return c, nil
}

// openOutput returns the writer for an output stream: the redirection
// file if r is set, otherwise a capture buffer.
func openOutput(r *Redirect, files *[]*os.File) (io.Writer, *bytes.Buffer, error) {
	if r == nil {
		var buf bytes.Buffer
		return &buf, &buf, nil
	}
	flags := os.O_WRONLY | os.O_CREATE
	if r.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(r.Path, flags, 0666)
	if err != nil {
		return nil, nil, err
	}
	*files = append(*files, f)
	return f, nil, nil
}

// wait starts all children in order, waits for them, and builds one
// Result per child. When ctx ends first, the process groups of all
// children are killed. afterStart, if given, runs once every child has
// been started.
func (e Exec) wait(ctx context.Context, children []*child, afterStart ...func()) []Result {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	results := make([]Result, len(children))
	for i, c := range children {
		results[i].Invocation = c.inv
	}
	start := time.Now()
	for i, c := range children {
		if err := c.cmd.Start(); err != nil {
			for _, f := range afterStart {
				f()
			}
			for _, started := range children[:i] {
				killGroup(started.cmd)
				_ = started.cmd.Wait()
			}
			for j := range results {
				results[j].ExitCode = -1
				results[j].Err = errPipelineAborted
			}
			results[i].Err = err
			return results
		}
	}
	for _, f := range afterStart {
		f()
	}

	done := make(chan struct{})
	errs := make([]error, len(children))
	go func() {
		for i, c := range children {
			errs[i] = c.cmd.Wait()
		}
		close(done)
	}()

	var ctxErr error
	select {
	case <-done:
	case <-ctx.Done():
		ctxErr = ctx.Err()
		for _, c := range children {
			killGroup(c.cmd)
		}
		<-done
	}
	elapsed := time.Since(start)

	for i, c := range children {
		r := &results[i]
		r.Duration = elapsed
		r.ExitCode = exitCode(errs[i])
		switch {
		case ctxErr != nil:
			r.ExitCode = -1
			r.Err = fmt.Errorf("killed: %w", ctxErr)
		case errs[i] != nil && r.ExitCode < 0:
			r.Err = errs[i]
		}
		if c.stdout != nil {
			r.Stdout = c.stdout.Bytes()
		}
		if c.stderr != nil {
			r.Stderr = c.stderr.Bytes()
		}
	}
	return results
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
