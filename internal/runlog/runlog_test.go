package runlog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flarebyte/kiln/internal/artifact"
	"github.com/flarebyte/kiln/internal/entrypoint"
	"github.com/flarebyte/kiln/internal/orchestrator"
	"github.com/opencontainers/go-digest"
)

func sampleRun() *orchestrator.PipelineRun {
	start := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	return &orchestrator.PipelineRun{
		ID:      "5f0c6a38-3c1e-4a4b-9a57-0c3f0a7d2b11",
		Name:    "shop",
		Outcome: orchestrator.Failed,
		Start:   start,
		End:     start.Add(90 * time.Second),
		Results: []orchestrator.StageResult{
			{
				Stage: "compile-assets", Kind: "compile", Outcome: orchestrator.Success,
				Attempts: 1, Duration: 1500 * time.Millisecond,
				Artifacts: []artifact.Record{{Key: "assets", Location: "/w/build/assets", Producer: "compile-assets", ProducedAt: start, Checksum: digest.FromString("a")}},
			},
			{
				Stage: "resolve-entry", Kind: "resolve", Outcome: orchestrator.Failed,
				Error: "ambiguous", Class: orchestrator.ClassResolution,
				Hint:       "multiple entry points found: specify one explicitly (entrypoint.declared)",
				Candidates: []entrypoint.Candidate{{ID: "com.acme.A", Source: entrypoint.SourceManifest, Origin: "m.yaml"}},
				Attempts:   1,
				Err:        errors.New("not persisted"),
			},
			{Stage: "assemble-image", Kind: "assemble", Outcome: orchestrator.Skipped, Cause: "resolve-entry"},
		},
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "last-run.yaml")
	run := sampleRun()
	if err := Save(path, run); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != run.ID || got.Outcome != orchestrator.Failed || len(got.Results) != 3 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if !got.End.Equal(run.End) {
		t.Fatalf("end time: %v", got.End)
	}
	first := got.Results[0]
	if first.Duration != 1500*time.Millisecond || first.Artifacts[0].Checksum != digest.FromString("a") {
		t.Fatalf("unexpected first result: %+v", first)
	}
	second := got.Results[1]
	if second.Err != nil || second.Candidates[0].Source != entrypoint.SourceManifest {
		t.Fatalf("unexpected second result: %+v", second)
	}
	if got.Results[2].Cause != "resolve-entry" {
		t.Fatalf("unexpected cause: %q", got.Results[2].Cause)
	}
}

func TestMarshal_RewriteStable(t *testing.T) {
	b1, err := Marshal(sampleRun())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, b1, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	run, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b2, err := Marshal(run)
	if err != nil {
		t.Fatalf("marshal again: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("not rewrite-stable\nfirst:\n%s\nsecond:\n%s", b1, b2)
	}
	if !strings.HasPrefix(string(b1), "version: \"1\"\nrun:\n  id: ") || strings.HasSuffix(string(b1), "\n\n") {
		t.Fatalf("unexpected layout:\n%s", b1)
	}
	if strings.Contains(string(b1), "not persisted") {
		t.Fatalf("underlying error leaked into run log")
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, ErrNoRunLog) {
		t.Fatalf("expected ErrNoRunLog, got %v", err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("version: \"9\"\nrun: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "unsupported version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestMarshal_NilRun(t *testing.T) {
	if _, err := Marshal(nil); err == nil {
		t.Fatalf("expected error")
	}
}
