package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func writeIndex(t *testing.T, dir string, manifests ...ocispec.Descriptor) {
	t.Helper()
	idx := ocispec.Index{MediaType: ocispec.MediaTypeImageIndex, Manifests: manifests}
	idx.SchemaVersion = 2
	b, err := json.Marshal(idx)
	if err != nil {
		t.Fatalf("marshal index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ocispec.ImageIndexFile), b, 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
}

func manifestDesc(content string) ocispec.Descriptor {
	return ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageManifest,
		Digest:    digest.FromString(content),
		Size:      int64(len(content)),
	}
}

func TestLayoutDigest_SingleManifest(t *testing.T) {
	dir := t.TempDir()
	want := manifestDesc("m1")
	writeIndex(t, dir, want)
	if !IsLayout(dir) {
		t.Fatalf("expected layout")
	}
	got, err := LayoutDigest(dir)
	if err != nil {
		t.Fatalf("LayoutDigest: %v", err)
	}
	if got != want.Digest {
		t.Fatalf("digest = %s, want %s", got, want.Digest)
	}
}

func TestLayoutDigest_Errors(t *testing.T) {
	empty := t.TempDir()
	if _, err := LayoutDigest(empty); !errors.Is(err, ErrNotLayout) {
		t.Fatalf("expected ErrNotLayout, got %v", err)
	}
	none := t.TempDir()
	writeIndex(t, none)
	if _, err := LayoutDigest(none); err == nil {
		t.Fatalf("expected error for empty index")
	}
	many := t.TempDir()
	writeIndex(t, many, manifestDesc("a"), manifestDesc("b"))
	if _, err := LayoutDigest(many); err == nil {
		t.Fatalf("expected error for multi-manifest index")
	}
}

func TestParseTarget(t *testing.T) {
	ref, err := ParseTarget(Target{Ref: "ghcr.io/acme/shop:1.2.0"})
	if err != nil {
		t.Fatalf("ParseTarget: %v", err)
	}
	if ref.Registry != "ghcr.io" || ref.Repository != "acme/shop" || ref.Reference != "1.2.0" {
		t.Fatalf("unexpected reference: %+v", ref)
	}
	if _, err := ParseTarget(Target{Ref: "ghcr.io/acme/shop"}); err == nil {
		t.Fatalf("expected missing tag error")
	}
	if _, err := ParseTarget(Target{Ref: "not a ref"}); err == nil {
		t.Fatalf("expected invalid reference error")
	}
}

func TestORASPush_RejectsNonLayout(t *testing.T) {
	o := &ORAS{}
	_, err := o.Push(context.Background(), t.TempDir(), Target{Ref: "localhost:5000/shop:dev"})
	if !errors.Is(err, ErrNotLayout) {
		t.Fatalf("expected ErrNotLayout, got %v", err)
	}
}
