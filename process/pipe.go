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

package process

import (
	"context"
	"os"
)

// A Piper runs two invocations concurrently with the standard output of
// the first connected to the standard input of the second.
type Piper interface {
	RunPiped(ctx context.Context, upstream, downstream Invocation) []Result
}

// RunPiped runs upstream | downstream with r. If r is not a Piper, the
// output of upstream is staged in a temporary file and downstream runs
// after upstream has finished; downstream is not run if upstream fails.
//
// The Stdout redirection of upstream and the Stdin redirection of
// downstream are ignored. The returned slice holds the upstream and the
// downstream Result, in that order.
func RunPiped(ctx context.Context, r Runner, upstream, downstream Invocation) []Result {
	upstream.Stdout = nil
	downstream.Stdin = nil
	if p, ok := r.(Piper); ok {
		return p.RunPiped(ctx, upstream, downstream)
	}

	tmp, err := os.CreateTemp(upstream.Dir, "classpipe-pipe-")
	if err != nil {
		return []Result{{Invocation: upstream, ExitCode: -1, Err: err}}
	}
	name := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(name)

	upstream.Stdout = ToFile(name)
	up := r.Run(ctx, upstream)
	if !up.Succeeded() {
		return []Result{up}
	}
	downstream.Stdin = FromFile(name)
	return []Result{up, r.Run(ctx, downstream)}
}

// RunPiped implements Piper.
func (e Exec) RunPiped(ctx context.Context, upstream, downstream Invocation) []Result {
	var files []*os.File
	defer closeAll(&files)
	up, err := prepare(upstream, &files, true)
	if err != nil {
		return []Result{{Invocation: upstream, ExitCode: -1, Err: err}}
	}
	down, err := prepare(downstream, &files, false)
	if err != nil {
		return []Result{
			{Invocation: upstream, ExitCode: -1, Err: errPipelineAborted},
			{Invocation: downstream, ExitCode: -1, Err: err},
		}
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return []Result{{Invocation: upstream, ExitCode: -1, Err: err}}
	}
	up.cmd.Stdout = pw
	down.cmd.Stdin = pr
	// The parent must drop its ends of the pipe once both children
	// hold them, or downstream never sees end of file.
	closePipe := func() {
		_ = pw.Close()
		_ = pr.Close()
	}
	return e.wait(ctx, []*child{up, down}, closePipe)
}
