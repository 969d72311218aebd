package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/opencontainers/go-digest"
)

// Checksum returns a sha256 digest of path. Files hash their content.
// Directories hash a canonical listing: each regular file's slash-separated
// relative path and content digest, in lexical order, so the result does not
// depend on walk order or timestamps.
func Checksum(path string) (digest.Digest, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return fileDigest(path)
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(path, p)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(files)
	dg := digest.Canonical.Digester()
	for _, rel := range files {
		fd, err := fileDigest(filepath.Join(path, filepath.FromSlash(rel)))
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(dg.Hash(), "%s\x00%s\n", rel, fd); err != nil {
			return "", err
		}
	}
	return dg.Digest(), nil
}

func fileDigest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return digest.Canonical.FromReader(f)
}
