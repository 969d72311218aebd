package buildinfo

import "testing"

func withBuildinfo(t *testing.T, version, commit, date string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := Version, Commit, Date
	t.Cleanup(func() {
		Version, Commit, Date = oldVersion, oldCommit, oldDate
	})
	Version, Commit, Date = version, commit, date
}

func TestSummary_DefaultsToDev(t *testing.T) {
	withBuildinfo(t, "", "", "")
	if got := Summary(); got != "dev" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSummary_ShortensCommitAndStripsPrefix(t *testing.T) {
	withBuildinfo(t, "v1.4.0", "a1b2c3d4e5f6", "2026-01-02")
	want := "1.4.0 (commit=a1b2c3d, date=2026-01-02)"
	if got := Summary(); got != want {
		t.Fatalf("unexpected summary: %q want %q", got, want)
	}
}
