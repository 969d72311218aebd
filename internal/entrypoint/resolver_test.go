package entrypoint

import (
	"errors"
	"strings"
	"testing"
)

func reconcile(t *testing.T, prefer Preference, cs ...Candidate) (Resolution, error) {
	t.Helper()
	r := NewResolver(prefer)
	if r.State() != StateCollecting {
		t.Fatalf("new resolver state = %s", r.State())
	}
	if err := r.Add(cs...); err != nil {
		t.Fatalf("add: %v", err)
	}
	res, err := r.Reconcile()
	if r.State() != res.State || !res.State.Terminal() {
		t.Fatalf("resolver state %s, resolution state %s", r.State(), res.State)
	}
	return res, err
}

func manifest(id string) Candidate   { return Candidate{ID: id, Source: SourceManifest} }
func convention(id string) Candidate { return Candidate{ID: id, Source: SourceConvention} }

func TestReconcile_DeclaredWins(t *testing.T) {
	res, err := reconcile(t, PreferManifest,
		manifest("a.A"), manifest("b.B"), convention("c.C"),
		Candidate{ID: "d.D", Source: SourceDeclared},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateResolved || res.Chosen.ID != "d.D" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestReconcile_SingleManifest(t *testing.T) {
	res, err := reconcile(t, PreferManifest, manifest("a.A"), convention("c.C"))
	if err != nil || res.Chosen.ID != "a.A" {
		t.Fatalf("want a.A, got %+v err=%v", res, err)
	}
}

func TestReconcile_DuplicateManifestEntriesCountOnce(t *testing.T) {
	res, err := reconcile(t, PreferManifest, manifest("a.A"), manifest("a.A"))
	if err != nil || res.Chosen.ID != "a.A" {
		t.Fatalf("want a.A, got %+v err=%v", res, err)
	}
}

func TestReconcile_AmbiguousManifest(t *testing.T) {
	res, err := reconcile(t, PreferManifest, manifest("a.A"), manifest("b.B"))
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if res.State != StateAmbiguous || re.State != StateAmbiguous {
		t.Fatalf("unexpected state: %s", res.State)
	}
	if len(re.Candidates) != 2 || re.Candidates[0].ID != "a.A" || re.Candidates[1].ID != "b.B" {
		t.Fatalf("unexpected candidates: %+v", re.Candidates)
	}
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("expected ErrResolution in chain")
	}
}

func TestReconcile_SingleConvention(t *testing.T) {
	res, err := reconcile(t, PreferManifest, convention("c.C"))
	if err != nil || res.Chosen.ID != "c.C" {
		t.Fatalf("want c.C, got %+v err=%v", res, err)
	}
}

func TestReconcile_NotFoundEmpty(t *testing.T) {
	res, err := reconcile(t, PreferManifest)
	var re *ResolutionError
	if !errors.As(err, &re) || re.State != StateNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if res.Candidates == nil || len(res.Candidates) != 0 || len(re.Candidates) != 0 {
		t.Fatalf("expected empty candidate list, got %+v", re.Candidates)
	}
}

func TestReconcile_SeveralConventionsIsNotFound(t *testing.T) {
	res, err := reconcile(t, PreferManifest, convention("c.C"), convention("d.D"))
	if res.State != StateNotFound || err == nil {
		t.Fatalf("expected NotFound, got %+v", res)
	}
	if res.Candidates == nil || len(res.Candidates) != 0 {
		t.Fatalf("expected empty candidate list, got %+v", res.Candidates)
	}
	if len(res.Related) != 2 || res.Related[0].ID != "c.C" {
		t.Fatalf("expected the convention candidates as related, got %+v", res.Related)
	}
	var re *ResolutionError
	if !errors.As(err, &re) || len(re.Candidates) != 0 || !strings.Contains(re.Error(), "c.C") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestReconcile_PreferConventionSwapsRoles(t *testing.T) {
	res, err := reconcile(t, PreferConvention, manifest("a.A"), manifest("b.B"), convention("c.C"))
	if err != nil || res.Chosen.ID != "c.C" {
		t.Fatalf("want c.C, got %+v err=%v", res, err)
	}
	res, err = reconcile(t, PreferConvention, convention("c.C"), convention("d.D"))
	if res.State != StateAmbiguous || err == nil {
		t.Fatalf("expected Ambiguous, got %+v", res)
	}
}

func TestResolver_RejectsUseAfterReconcile(t *testing.T) {
	r := NewResolver("")
	if _, err := r.Reconcile(); err == nil {
		t.Fatalf("expected NotFound error")
	}
	if err := r.Declare("x", "config"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := r.Reconcile(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestParsePreference(t *testing.T) {
	for in, want := range map[string]Preference{"": PreferManifest, "manifest": PreferManifest, "convention": PreferConvention} {
		got, err := ParsePreference(in)
		if err != nil || got != want {
			t.Fatalf("ParsePreference(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePreference("random"); err == nil {
		t.Fatalf("expected error")
	}
}
