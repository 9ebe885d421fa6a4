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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"

	"github.com/classpipe/classpipe/process"
)

// Names of the aggregate log files in the output root.
const (
	ReportStdout = "report_stdout"
	ReportStderr = "report_stderr"

	// SnappyExt is appended to the log names when they are compressed.
	SnappyExt = ".sz"
)

// A Report collects the captured streams of every invocation of a run
// and prints progress banners. It is safe for concurrent use.
//
// Until OpenLogs is called, invocations are only kept in memory.
type Report struct {
	mu      sync.Mutex
	runID   string
	banners io.Writer
	stdout  io.Writer
	stderr  io.Writer
	closers []io.Closer
	records []process.Result
}

// NewReport returns a report printing its banners to banners.
func NewReport(runID string, banners io.Writer) *Report {
	if banners == nil {
		banners = io.Discard
	}
	return &Report{runID: runID, banners: banners}
}

// OpenLogs starts appending captured streams to the aggregate log files
// in root. With compress set, each run appends a snappy framed stream
// to files carrying SnappyExt.
func (r *Report) OpenLogs(root string, compress bool) error {
	open := func(name string) (io.Writer, error) {
		if compress {
			name += SnappyExt
		}
		f, err := os.OpenFile(filepath.Join(root, name), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		if !compress {
			r.closers = append(r.closers, f)
			return f, nil
		}
		w := snappy.NewBufferedWriter(f)
		// The snappy writer must be flushed before its file is closed.
		r.closers = append(r.closers, w, f)
		return w, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.stdout, err = open(ReportStdout); err != nil {
		return err
	}
	if r.stderr, err = open(ReportStderr); err != nil {
		return err
	}
	return nil
}

// Record stores the result of one invocation and appends its captured
// streams to the logs.
func (r *Report) Record(res process.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, res)
	if r.stdout == nil {
		return
	}
	header := fmt.Sprintf("==> [%v] %v: %v (%v, %v)\n",
		r.runID, res.Invocation.Stage, res.Invocation.CommandLine(), res.Status(), res.Duration)
	_, _ = io.WriteString(r.stdout, header)
	_, _ = r.stdout.Write(res.Stdout)
	_, _ = io.WriteString(r.stderr, header)
	_, _ = r.stderr.Write(res.Stderr)
}

// Records returns the results recorded so far, in recording order.
func (r *Report) Records() []process.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Result(nil), r.records...)
}

func (r *Report) banner(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.banners, format+"\n", args...)
}

// Running announces the start of a tool.
func (r *Report) Running(tool string) { r.banner("> Running on %v", tool) }

// Finished announces the end of a tool, whatever its outcome.
func (r *Report) Finished(tool string) { r.banner("> Finished running on %v", tool) }

// ToolFailed announces that a tool failed.
func (r *Report) ToolFailed(tool string, err error) { r.banner("> %v failed: %v", tool, err) }

// PipelineFinished announces the end of the run.
func (r *Report) PipelineFinished() { r.banner("> Pipeline finished") }

// Error announces a fatal error.
func (r *Report) Error(err error) { r.banner("[ERROR] %v", err) }

// Close flushes and closes the log files.
func (r *Report) Close() (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	r.closers = nil
	r.stdout, r.stderr = nil, nil
	return err
}
