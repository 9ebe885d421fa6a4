package cmd

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/classpipe/classpipe/analysis"
	"github.com/classpipe/classpipe/internal"
	"github.com/classpipe/classpipe/pipeline"
	"github.com/classpipe/classpipe/process"
)

func TestParseRunArgs(t *testing.T) {
	opts, err := parseRunArgs([]string{
		"--refDNA", "ref.fa", "--aDNA1", "r1.fq.gz", "--aDNA2", "r2.fq.gz",
		"--saveBam", "--PMDtools", "--atlas", "--nr-of-threads", "3",
		"--max-parallel-tools", "2", "--stage-timeout", "90s", "--compress-report",
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := opts.config
	if cfg.Reference != "ref.fa" || cfg.Seq1 != "r1.fq.gz" || cfg.Seq2 != "r2.fq.gz" {
		t.Error("aliases not honored", cfg)
	}
	if cfg.Output != "output" || !cfg.SaveAlignment || !cfg.Report || !cfg.CompressReport {
		t.Error("unexpected output settings", cfg)
	}
	if cfg.Threads != 3 || cfg.MaxParallelTools != 2 || cfg.StageTimeout != 90*time.Second {
		t.Error("unexpected scheduling settings", cfg)
	}
	if len(cfg.Tools) != 2 || cfg.Tools[0] != analysis.PMDtoolsName || cfg.Tools[1] != analysis.AtlasName {
		t.Error("unexpected tools", cfg.Tools)
	}
	if cfg.Toolchain != pipeline.DefaultToolchain() {
		t.Error("unexpected toolchain", cfg.Toolchain)
	}
	if !strings.Contains(opts.command, " run --ref ref.fa --seq1 r1.fq.gz --seq2 r2.fq.gz --output output --saveAlignment --pmdTools --atlas") {
		t.Error("unexpected command line", opts.command)
	}

	opts, err = parseRunArgs([]string{"--ref", "ref.fa", "--seq1", "reads.bam", "--no-report"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.config.Report || opts.config.MaxParallelTools != 1 || opts.config.Threads < 1 || len(opts.config.Tools) != 0 {
		t.Error("unexpected defaults", opts.config)
	}

	if _, err := parseRunArgs([]string{"--ref", "ref.fa", "stray"}); !errors.Is(err, ErrUsage) {
		t.Error("stray argument accepted:", err)
	}
	if _, err := parseRunArgs([]string{"--bogus"}); !errors.Is(err, ErrUsage) {
		t.Error("unknown flag accepted:", err)
	}
	if _, err := parseRunArgs([]string{"--help"}); err != flag.ErrHelp {
		t.Error("help not requested:", err)
	}
}

func TestParseRunArgsConfig(t *testing.T) {
	config := filepath.Join(t.TempDir(), "tools.json")
	if err := os.WriteFile(config, []byte(`{"samtools": "/opt/bin/samtools", "atlas": "/opt/atlas/atlas"}`), 0644); err != nil {
		t.Fatal(err)
	}
	opts, err := parseRunArgs([]string{"--ref", "ref.fa", "--seq1", "reads.bam", "--config", config})
	if err != nil {
		t.Fatal(err)
	}
	tc := opts.config.Toolchain
	if tc.Samtools != "/opt/bin/samtools" || tc.Atlas != "/opt/atlas/atlas" || tc.Minimap2 != "minimap2" {
		t.Error("unexpected toolchain", tc)
	}

	if err := os.WriteFile(config, []byte(`{"bwa": "bwa"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := parseRunArgs([]string{"--config", config}); err == nil {
		t.Error("unknown toolchain entry accepted")
	}
}

func TestSanityCheck(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref.fa")
	reads := filepath.Join(dir, "reads.fq")
	_ = os.WriteFile(ref, nil, 0644)
	_ = os.WriteFile(reads, nil, 0644)

	opts, _ := parseRunArgs([]string{"--ref", ref, "--seq1", reads, "--output", filepath.Join(dir, "out")})
	if !opts.sanityCheck() {
		t.Error("valid configuration rejected")
	}
	opts, _ = parseRunArgs([]string{"--ref", ref, "--seq1", reads, "--seq2", filepath.Join(dir, "missing.fq")})
	if opts.sanityCheck() {
		t.Error("missing mate accepted")
	}
	opts, _ = parseRunArgs([]string{"--ref", ref, "--seq1", reads, "--output", ref})
	if opts.sanityCheck() {
		t.Error("file accepted as output directory")
	}
	opts, _ = parseRunArgs([]string{"--ref", ref, "--seq1", reads, "--max-parallel-tools", "0"})
	if opts.sanityCheck() {
		t.Error("zero parallel tools accepted")
	}
}

// fakeRunner creates the output files of an invocation and fails the
// invocations of the given programs.
type fakeRunner struct {
	mu     sync.Mutex
	stages []string
	fail   map[string]bool
}

func write(path string) {
	_ = os.WriteFile(path, []byte("data\n"), 0644)
}

func (f *fakeRunner) Run(_ context.Context, inv process.Invocation) process.Result {
	f.mu.Lock()
	f.stages = append(f.stages, inv.Stage)
	f.mu.Unlock()
	if f.fail[inv.Program] {
		return process.Result{Invocation: inv, ExitCode: 1}
	}
	if inv.Stdout != nil {
		write(inv.Stdout.Path)
	}
	for i, arg := range inv.Args {
		if arg == "-o" && i+1 < len(inv.Args) {
			write(inv.Args[i+1])
		}
	}
	if inv.Stage == pipeline.StepIndex {
		write(inv.Args[len(inv.Args)-1])
	}
	return process.Result{Invocation: inv}
}

func testRunOptions(t *testing.T, seq1 string, args ...string) runOptions {
	dir := t.TempDir()
	opts, err := parseRunArgs(append([]string{
		"--ref", "ref.fa", "--seq1", seq1,
		"--output", filepath.Join(dir, "output"), "--tmp-dir", dir,
	}, args...))
	if err != nil {
		t.Fatal(err)
	}
	return opts
}

func TestExecute(t *testing.T) {
	opts := testRunOptions(t, "reads.fastq", "--pyDamage", "--atlas")
	var banners bytes.Buffer
	r := &fakeRunner{}
	if err := opts.execute(context.Background(), r, &banners); err != nil {
		t.Fatal(err)
	}
	if len(r.stages) != 7 || r.stages[0] != pipeline.StepAlign {
		t.Error("unexpected stages", r.stages)
	}
	if !strings.HasSuffix(banners.String(), "> Finished running on atlas\n> Pipeline finished\n") {
		t.Errorf("unexpected banners:\n%v", banners.String())
	}
	for _, name := range []string{analysis.PyDamageName, analysis.AtlasName, pipeline.ConfigFilename, pipeline.ReportStdout} {
		if !internal.Exists(filepath.Join(opts.config.Output, name)) {
			t.Error("missing", name)
		}
	}
}

func TestExecuteFailures(t *testing.T) {
	opts := testRunOptions(t, "reads.txt", "--atlas")
	if code := ExitCode(opts.execute(context.Background(), &fakeRunner{}, nil)); code != 2 {
		t.Error("unrecognized input exit code", code)
	}

	opts = testRunOptions(t, "reads.bam", "--atlas")
	r := &fakeRunner{fail: map[string]bool{"samtools": true}}
	if code := ExitCode(opts.execute(context.Background(), r, nil)); code != 3 {
		t.Error("preparation failure exit code", code)
	}

	opts = testRunOptions(t, "reads.bam", "--atlas", "--mapDamage")
	r = &fakeRunner{fail: map[string]bool{"mapDamage": true}}
	if code := ExitCode(opts.execute(context.Background(), r, nil)); code != 4 {
		t.Error("tool failure exit code", code)
	}
	if r.stages[len(r.stages)-1] != analysis.AtlasName {
		t.Error("tool failure stopped later tools", r.stages)
	}

	opts = testRunOptions(t, "reads.bam", "--atlas")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if code := ExitCode(opts.execute(ctx, &fakeRunner{}, nil)); code != 130 {
		t.Error("interrupted run exit code", code)
	}
}

func TestFullPathnames(t *testing.T) {
	config := filepath.Join(t.TempDir(), "tools.json")
	if err := os.WriteFile(config, []byte(`{"pmdtoolsScript": "scripts/pmdtools.py", "damageProfilerJar": "/opt/dp.jar"}`), 0644); err != nil {
		t.Fatal(err)
	}
	opts, err := parseRunArgs([]string{"--ref", "ref.fa", "--seq1", "reads.bam", "--config", config})
	if err != nil {
		t.Fatal(err)
	}
	if err := opts.fullPathnames(); err != nil {
		t.Fatal(err)
	}
	wd, _ := os.Getwd()
	cfg := opts.config
	if cfg.Reference != filepath.Join(wd, "ref.fa") || cfg.Seq1 != filepath.Join(wd, "reads.bam") || cfg.Seq2 != "" {
		t.Error("inputs not made absolute", cfg.Reference, cfg.Seq1, cfg.Seq2)
	}
	if cfg.Toolchain.PMDtoolsScript != filepath.Join(wd, "scripts", "pmdtools.py") {
		t.Error("script not made absolute", cfg.Toolchain.PMDtoolsScript)
	}
	if cfg.Toolchain.DamageProfilerJar != "/opt/dp.jar" {
		t.Error("absolute jar path changed", cfg.Toolchain.DamageProfilerJar)
	}
}
