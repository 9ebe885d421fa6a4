package internal

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b", "a"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	names, err := Directory(dir)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Error("Directory listing failed:", names)
	}
	names, err = Directory(filepath.Join(dir, "a"))
	if err != nil || len(names) != 1 || names[0] != "a" {
		t.Error("Directory on a plain file failed")
	}
	if _, err = Directory(filepath.Join(dir, "missing")); err == nil {
		t.Error("Directory on a missing file did not fail")
	}
}

func TestFullPathname(t *testing.T) {
	if p, err := FullPathname("/abs/path"); err != nil || p != "/abs/path" {
		t.Error("FullPathname changed an absolute path")
	}
	p, err := FullPathname("rel")
	if err != nil || !filepath.IsAbs(p) || filepath.Base(p) != "rel" {
		t.Error("FullPathname failed for a relative path:", p)
	}
}

func TestStringHash(t *testing.T) {
	if StringHash("pmdTools") != StringHash("pmdTools") {
		t.Error("StringHash is not deterministic")
	}
	if StringHash("atlas") == StringHash("mapDamage") {
		t.Error("StringHash collision on distinct tool names")
	}
}
