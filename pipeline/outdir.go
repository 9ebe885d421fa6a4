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
	"os"
	"path/filepath"
	"strings"
)

// ResetSubdirectory removes the subdirectory name of root with all of
// its contents, if it exists, and creates it again, empty. root and its
// parents are created as needed. Siblings of the subdirectory are not
// touched. The absolute path of the subdirectory is returned.
func ResetSubdirectory(root, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("invalid output subdirectory name %q", name)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(absRoot, name)
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// withinDir reports whether path is dir or lies below it. Both must be
// absolute and clean.
func withinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkInputsOutsideResets fails when one of the inputs lies in a
// subdirectory of root that the run resets: the saved alignment
// directory, or the directory of a selected tool.
func checkInputsOutsideResets(root string, saveAlignment bool, tools []string, inputs ...string) error {
	var resets []string
	if saveAlignment {
		resets = append(resets, AlignmentDirName)
	}
	resets = append(resets, tools...)
	for _, input := range inputs {
		if input == "" {
			continue
		}
		abs, err := filepath.Abs(input)
		if err != nil {
			return err
		}
		for _, name := range resets {
			if dir := filepath.Join(root, name); withinDir(dir, abs) {
				return &InputLocationError{Path: input, Dir: dir}
			}
		}
	}
	return nil
}
