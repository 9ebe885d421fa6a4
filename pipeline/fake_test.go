package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/classpipe/classpipe/process"
)

// fakeRunner records invocations instead of running them, and creates
// the files an invocation would produce.
type fakeRunner struct {
	mu    sync.Mutex
	calls []process.Invocation
	fail  map[string]bool
}

func newFakeRunner(failingStages ...string) *fakeRunner {
	f := &fakeRunner{fail: make(map[string]bool)}
	for _, s := range failingStages {
		f.fail[s] = true
	}
	return f
}

func touch(path string) {
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	_ = os.WriteFile(path, []byte("data\n"), 0644)
}

func (f *fakeRunner) Run(_ context.Context, inv process.Invocation) process.Result {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()
	if f.fail[inv.Stage] {
		return process.Result{Invocation: inv, ExitCode: 1, Stderr: []byte(inv.Stage + " failed\n")}
	}
	if inv.Stdout != nil {
		touch(inv.Stdout.Path)
	}
	for i, arg := range inv.Args {
		if arg == "-o" && i+1 < len(inv.Args) {
			touch(inv.Args[i+1])
		}
	}
	if inv.Stage == StepIndex {
		touch(inv.Args[len(inv.Args)-1])
	}
	return process.Result{Invocation: inv, Stdout: []byte(inv.Stage + " ok\n")}
}

func (f *fakeRunner) stages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	stages := make([]string, len(f.calls))
	for i, c := range f.calls {
		stages[i] = c.Stage
	}
	return stages
}

func stringsEqual(s1, s2 []string) bool {
	if len(s1) != len(s2) {
		return false
	}
	for i, s := range s1 {
		if s != s2[i] {
			return false
		}
	}
	return true
}

// fakeAnalysis writes a result file into its output directory and runs
// one invocation through the runner.
type fakeAnalysis struct {
	name   string
	fail   bool
	panics bool

	mu   sync.Mutex
	runs int
	dirs []string
}

func (a *fakeAnalysis) Name() string { return a.name }

func (a *fakeAnalysis) Run(ctx context.Context, r process.Runner, prepared Prepared, reference, outDir string) ([]process.Result, error) {
	a.mu.Lock()
	a.runs++
	a.dirs = append(a.dirs, outDir)
	a.mu.Unlock()
	if a.panics {
		panic("adapter bug")
	}
	out := filepath.Join(outDir, "result.txt")
	res := r.Run(ctx, process.Invocation{
		Stage:   a.name,
		Program: a.name,
		Args:    []string{prepared.Alignment.Path, reference},
		Stdout:  process.ToFile(out),
	})
	if a.fail {
		res.ExitCode = 2
	}
	return []process.Result{res}, nil
}

func (a *fakeAnalysis) runCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}
