package utils

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsGzip(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, _ = w.Write([]byte("@read1\nACGT\n+\nIIII\n"))
	_ = w.Close()
	if ok, err := IsGzip(&buf); err != nil || !ok {
		t.Error("gzip stream not recognized")
	}
	for _, s := range []string{"", "@", "@read1\nACGT\n"} {
		if ok, err := IsGzip(strings.NewReader(s)); err != nil || ok {
			t.Errorf("%q recognized as gzip", s)
		}
	}
}

func TestHasBgzfEOF(t *testing.T) {
	dir := t.TempDir()
	complete := filepath.Join(dir, "complete.bam")
	truncated := filepath.Join(dir, "truncated.bam")
	_ = os.WriteFile(complete, append([]byte("BAM\x01 records"), bgzfEOF...), 0644)
	_ = os.WriteFile(truncated, []byte("BAM\x01 records"), 0644)

	if ok, err := HasBgzfEOF(complete); err != nil || !ok {
		t.Error("end-of-file marker not found", err)
	}
	if ok, err := HasBgzfEOF(truncated); err != nil || ok {
		t.Error("end-of-file marker found in truncated file", err)
	}
	if ok, err := IsGzipFile(complete); err != nil || ok {
		t.Error("uncompressed header recognized as gzip", err)
	}
	if _, err := HasBgzfEOF(filepath.Join(dir, "missing.bam")); err == nil {
		t.Error("missing file accepted")
	}
}
