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
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// AlignmentDirName is the output subdirectory holding the intermediate
// alignment files of runs that preserve them.
const AlignmentDirName = "alignment"

// LockFilename is the lock file in the output root. It stays in place
// after a run; only the advisory lock on it matters.
const LockFilename = ".classpipe.lock"

// A WorkArea is the directory where the preparation stage writes its
// intermediate files. It is exclusive to one run.
type WorkArea struct {
	Dir       string
	transient bool
}

// NewWorkArea returns the work area of a run. If save is true, it is
// the reset alignment subdirectory of output. Otherwise it is a fresh
// uniquely named directory under tmpDir (or os.TempDir()), which Close
// removes again.
func NewWorkArea(output string, save bool, tmpDir string) (*WorkArea, error) {
	if save {
		dir, err := ResetSubdirectory(output, AlignmentDirName)
		if err != nil {
			return nil, err
		}
		return &WorkArea{Dir: dir}, nil
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	dir, err := filepath.Abs(filepath.Join(tmpDir, "classpipe-"+uuid.New().String()))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &WorkArea{Dir: dir, transient: true}, nil
}

// Transient reports whether Close removes the work area.
func (w *WorkArea) Transient() bool {
	return w.transient
}

// Path returns the path of a file in the work area.
func (w *WorkArea) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Close removes a transient work area.
func (w *WorkArea) Close() error {
	if !w.transient {
		return nil
	}
	log.Println("Removing intermediate files from", w.Dir)
	return os.RemoveAll(w.Dir)
}

// outputLock is an exclusive advisory lock on an output root.
type outputLock struct {
	file *os.File
}

// lockOutput takes the lock of the output root, which must exist. It
// fails with ErrOutputLocked if another run holds it.
func lockOutput(root string) (*outputLock, error) {
	f, err := os.OpenFile(filepath.Join(root, LockFilename), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrOutputLocked
		}
		return nil, err
	}
	return &outputLock{file: f}, nil
}

func (l *outputLock) unlock() error {
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	return err
}
