package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/classpipe/classpipe/format"
	"github.com/classpipe/classpipe/internal"
)

func newTestOrchestrator(t *testing.T, r *fakeRunner, reg *Registry, seq1, seq2 string, tools ...string) (*Orchestrator, *bytes.Buffer) {
	dir := t.TempDir()
	var banners bytes.Buffer
	return &Orchestrator{
		Config: RunConfiguration{
			Reference:        "ref.fa",
			Seq1:             seq1,
			Seq2:             seq2,
			Output:           filepath.Join(dir, "output"),
			Tools:            tools,
			TmpDir:           dir,
			Threads:          2,
			MaxParallelTools: 1,
			Report:           true,
			Toolchain:        DefaultToolchain(),
		},
		Runner:   r,
		Registry: reg,
		Banners:  &banners,
	}, &banners
}

func TestOrchestratorPairedReads(t *testing.T) {
	r := newFakeRunner()
	a := &fakeAnalysis{name: "pmdTools"}
	o, banners := newTestOrchestrator(t, r, newTestRegistry(t, true, a), "r1.fq", "r2.fq", "pmdTools")
	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.State != RunFinished || summary.Input.Kind != format.PairedFastq {
		t.Error("unexpected summary", summary.State, summary.Input.Kind)
	}
	expected := []string{StepAlign, StepConvert, StepAnnotate, StepSort, StepIndex, "pmdTools"}
	if stages := r.stages(); !stringsEqual(stages, expected) {
		t.Error("unexpected invocation order:", stages)
	}
	if len(summary.Invocations) != len(expected) {
		t.Error("not every invocation was recorded")
	}
	root := o.Config.Output
	names, err := internal.Directory(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		switch name {
		case "pmdTools", ReportStdout, ReportStderr, ConfigFilename, LockFilename:
		default:
			t.Error("unexpected entry in output root:", name)
		}
	}
	if !internal.Exists(filepath.Join(root, "pmdTools", "result.txt")) {
		t.Error("missing tool output")
	}
	if internal.Exists(filepath.Dir(summary.Prepared.Alignment.Path)) {
		t.Error("transient work area was kept")
	}
	if !strings.HasSuffix(banners.String(), "> Finished running on pmdTools\n> Pipeline finished\n") {
		t.Errorf("unexpected banners:\n%v", banners.String())
	}
}

func TestOrchestratorAlignedInput(t *testing.T) {
	r := newFakeRunner()
	bam := filepath.Join(t.TempDir(), "sample.bam")
	touch(bam)
	o, _ := newTestOrchestrator(t, r, newTestRegistry(t, true, &fakeAnalysis{name: "mapDamage"}), bam, "", "mapDamage")
	o.Config.SaveAlignment = true
	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, stage := range r.stages() {
		if stage == StepAlign || stage == StepConvert {
			t.Error("aligned input ran", stage)
		}
	}
	for _, s := range summary.History {
		if s == RunAligning {
			t.Error("aligned input went through the aligning state")
		}
	}
	for _, res := range summary.Invocations {
		if res.Invocation.Stage == StepAlign {
			t.Error("aligner recorded in the run report")
		}
	}
	stdout, err := os.ReadFile(filepath.Join(o.Config.Output, ReportStdout))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(stdout), StepAlign+":") {
		t.Errorf("aligner in report_stdout:\n%s", stdout)
	}
	saved := filepath.Join(o.Config.Output, AlignmentDirName)
	for _, name := range []string{CalmdBamName, SortedBamName, IndexName} {
		if !internal.Exists(filepath.Join(saved, name)) {
			t.Error("missing saved intermediate", name)
		}
	}
	if !internal.Exists(bam) {
		t.Error("user input removed")
	}
}

func TestOrchestratorNoTools(t *testing.T) {
	r := newFakeRunner()
	o, banners := newTestOrchestrator(t, r, newTestRegistry(t, true, &fakeAnalysis{name: "atlas"}), "reads.fastq.gz", "")
	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Outcomes) != 0 || r.stages()[len(r.stages())-1] != StepIndex {
		t.Error("tools ran without being selected")
	}
	if banners.String() != "> Pipeline finished\n" {
		t.Errorf("unexpected banners:\n%v", banners.String())
	}
}

func TestOrchestratorUnrecognizedInput(t *testing.T) {
	r := newFakeRunner()
	o, banners := newTestOrchestrator(t, r, newTestRegistry(t, true, &fakeAnalysis{name: "atlas"}), "reads.txt", "", "atlas")
	summary, err := o.Run(context.Background())
	if !errors.Is(err, format.ErrUnrecognizedInputFormat) {
		t.Fatal("unexpected error", err)
	}
	if summary.State != RunAborted || len(r.stages()) != 0 {
		t.Error("unrecognized input was processed")
	}
	if _, err := os.Stat(o.Config.Output); !os.IsNotExist(err) {
		t.Error("output root created for unrecognized input")
	}
	if !strings.HasPrefix(banners.String(), "[ERROR] ") {
		t.Error("missing error banner")
	}
}

func TestOrchestratorUnknownTool(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakeRunner(), newTestRegistry(t, true), "reads.fq", "", "nope")
	if _, err := o.Run(context.Background()); err == nil {
		t.Error("unknown tool accepted")
	}
}

func TestOrchestratorPreparationFailure(t *testing.T) {
	r := newFakeRunner(StepSort)
	a := &fakeAnalysis{name: "atlas"}
	o, _ := newTestOrchestrator(t, r, newTestRegistry(t, true, a), "reads.sam", "", "atlas")
	summary, err := o.Run(context.Background())
	if !errors.Is(err, ErrPreparationFailed) {
		t.Fatal("unexpected error", err)
	}
	if summary.State != RunAborted || a.runCount() != 0 {
		t.Error("analysis ran after a preparation failure")
	}
	if internal.Exists(filepath.Join(o.Config.Output, "atlas")) {
		t.Error("tool directory created after a preparation failure")
	}
	stderr, err := os.ReadFile(filepath.Join(o.Config.Output, ReportStderr))
	if err != nil || !strings.Contains(string(stderr), "sort failed\n") {
		t.Error("failing step not in report_stderr")
	}
}

func TestOrchestratorToolFailure(t *testing.T) {
	r := newFakeRunner()
	failing := &fakeAnalysis{name: "mapDamage", fail: true}
	fine := &fakeAnalysis{name: "atlas"}
	o, banners := newTestOrchestrator(t, r, newTestRegistry(t, true, failing, fine), "reads.bam", "", "mapDamage", "atlas")
	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if failed := summary.FailedTools(); len(failed) != 1 || failed[0].Tool != "mapDamage" {
		t.Error("unexpected failed tools", failed)
	}
	if fine.runCount() != 1 {
		t.Error("tool failure stopped the other tools")
	}
	if !strings.Contains(banners.String(), "> mapDamage failed: ") {
		t.Error("missing failure banner")
	}
}

func TestOrchestratorOutputLocked(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakeRunner(), newTestRegistry(t, true), "reads.bam", "")
	if err := os.MkdirAll(o.Config.Output, 0755); err != nil {
		t.Fatal(err)
	}
	lock, err := lockOutput(o.Config.Output)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.unlock()
	if _, err := o.Run(context.Background()); err != ErrOutputLocked {
		t.Error("concurrent run on the same output root not refused:", err)
	}
}

func TestOrchestratorRefusesInputInSavedAlignment(t *testing.T) {
	r := newFakeRunner()
	o, _ := newTestOrchestrator(t, r, newTestRegistry(t, true, &fakeAnalysis{name: "atlas"}), "", "", "atlas")
	o.Config.SaveAlignment = true
	bam := filepath.Join(o.Config.Output, AlignmentDirName, SortedBamName)
	touch(bam)
	o.Config.Seq1 = bam
	summary, err := o.Run(context.Background())
	var lerr *InputLocationError
	if !errors.As(err, &lerr) || !errors.Is(err, ErrInputInResetDirectory) || lerr.Path != bam {
		t.Fatal("input in the saved alignment directory accepted:", err)
	}
	if summary.State != RunAborted || len(r.stages()) != 0 {
		t.Error("run went ahead")
	}
	if !internal.Exists(bam) {
		t.Error("input was removed")
	}
}

func TestOrchestratorRefusesReferenceInToolDirectory(t *testing.T) {
	reg := newTestRegistry(t, true, &fakeAnalysis{name: "atlas"}, &fakeAnalysis{name: "mapDamage"})
	o, _ := newTestOrchestrator(t, newFakeRunner(), reg, "reads.bam", "", "atlas")
	ref := filepath.Join(o.Config.Output, "atlas", "ref.fa")
	touch(ref)
	o.Config.Reference = ref
	if _, err := o.Run(context.Background()); !errors.Is(err, ErrInputInResetDirectory) {
		t.Error("reference in a selected tool directory accepted:", err)
	}
	if !internal.Exists(ref) {
		t.Error("reference was removed")
	}

	ref = filepath.Join(o.Config.Output, "mapDamage", "ref.fa")
	touch(ref)
	o.Config.Reference = ref
	if _, err := o.Run(context.Background()); err != nil {
		t.Error("reference in an unselected tool directory refused:", err)
	}
	if !internal.Exists(ref) {
		t.Error("unselected tool directory was reset")
	}
}
