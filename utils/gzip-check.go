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


package utils

import (
	"bytes"
	"io"
	"os"

	"github.com/classpipe/classpipe/internal"
)

// bgzfEOF is the empty block that terminates every complete BGZF file,
// and thus every complete BAM file.
var bgzfEOF = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
	0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
	0x42, 0x43, 0x02, 0x00, 0x1b, 0x00,
	0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// IsGzip determines if the given reader produces a gzip stream. Only
// the two magic bytes are consumed.
func IsGzip(r io.Reader) (bool, error) {
	var magic [2]byte
	if _, err := io.ReadFull(r, magic[:]); err == io.EOF || err == io.ErrUnexpectedEOF {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return magic[0] == 0x1f && magic[1] == 0x8b, nil
}

// IsGzipFile determines if the named file is gzip-compressed.
func IsGzipFile(filename string) (ok bool, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return false, err
	}
	defer internal.CloseWith(&err, f)
	return IsGzip(f)
}

// HasBgzfEOF determines if the named file ends in the BGZF end-of-file
// marker. Truncated BAM files lack it.
func HasBgzfEOF(filename string) (ok bool, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return false, err
	}
	defer internal.CloseWith(&err, f)
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() < int64(len(bgzfEOF)) {
		return false, nil
	}
	tail := make([]byte, len(bgzfEOF))
	if _, err := f.ReadAt(tail, info.Size()-int64(len(bgzfEOF))); err != nil {
		return false, err
	}
	return bytes.Equal(tail, bgzfEOF), nil
}
