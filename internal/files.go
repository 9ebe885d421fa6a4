package internal

import (
	"os"
	"path/filepath"
)

// Directory returns the names of the entries in the given directory,
// or the base name of file if it is not a directory.
func Directory(file string) (files []string, err error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Base(file)}, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer CloseWith(&err, f)
	return f.Readdirnames(0)
}

func FullPathname(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	wd, err := os.Getwd()
	return filepath.Join(wd, filename), err
}

// Exists reports whether filename names an existing file or directory.
func Exists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
