package version

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/flarebyte/kiln/internal/buildinfo"
)

func withVersion(t *testing.T, v string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := buildinfo.Version, buildinfo.Commit, buildinfo.Date
	t.Cleanup(func() {
		buildinfo.Version, buildinfo.Commit, buildinfo.Date = oldVersion, oldCommit, oldDate
	})
	buildinfo.Version, buildinfo.Commit, buildinfo.Date = v, "", ""
}

func TestVersionDefaultOutputStable(t *testing.T) {
	withVersion(t, "")
	var out bytes.Buffer
	cmd := NewCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "pipeline dev\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestVersionJSON(t *testing.T) {
	withVersion(t, "v1.2.3")
	var out bytes.Buffer
	cmd := NewCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["version"] != "v1.2.3" || got["go"] == "" {
		t.Fatalf("unexpected json: %v", got)
	}
}
