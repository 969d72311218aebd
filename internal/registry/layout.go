// Package registry pushes OCI image layouts to registries and reads the
// digests that identify them.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ErrNotLayout is returned for directories without an index.json.
var ErrNotLayout = errors.New("not an OCI image layout")

// IsLayout reports whether dir holds an OCI image layout.
func IsLayout(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, ocispec.ImageIndexFile))
	return err == nil && st.Mode().IsRegular()
}

// LayoutManifest returns the single manifest descriptor listed in the
// layout's index.json.
func LayoutManifest(dir string) (ocispec.Descriptor, error) {
	b, err := os.ReadFile(filepath.Join(dir, ocispec.ImageIndexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ocispec.Descriptor{}, fmt.Errorf("%w: %s", ErrNotLayout, dir)
		}
		return ocispec.Descriptor{}, err
	}
	var idx ocispec.Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("parse %s: %w", ocispec.ImageIndexFile, err)
	}
	switch len(idx.Manifests) {
	case 0:
		return ocispec.Descriptor{}, fmt.Errorf("%s: index lists no manifests", dir)
	case 1:
	default:
		return ocispec.Descriptor{}, fmt.Errorf("%s: index lists %d manifests, expected one", dir, len(idx.Manifests))
	}
	desc := idx.Manifests[0]
	if err := desc.Digest.Validate(); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%s: %w", dir, err)
	}
	return desc, nil
}

// LayoutDigest returns the manifest digest of the image in dir.
func LayoutDigest(dir string) (digest.Digest, error) {
	desc, err := LayoutManifest(dir)
	if err != nil {
		return "", err
	}
	return desc.Digest, nil
}
