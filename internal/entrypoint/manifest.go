package entrypoint

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// manifestDoc is the YAML/JSON manifest shape packagers emit.
type manifestDoc struct {
	EntryPoint  string   `yaml:"entryPoint"`
	EntryPoints []string `yaml:"entryPoints"`
}

// ReadManifest returns the candidates listed in path. A directory is
// searched for MANIFEST.MF and .yaml/.yml/.json manifests; files there that
// do not decode as a manifest are ignored. A single file must decode.
func ReadManifest(path string) ([]Candidate, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return readManifestFile(path, true)
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && isManifestName(d.Name()) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var out []Candidate
	for _, f := range files {
		cs, err := readManifestFile(f, false)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	return out, nil
}

func isManifestName(name string) bool {
	if strings.EqualFold(name, "MANIFEST.MF") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func readManifestFile(path string, strict bool) ([]Candidate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	if strings.EqualFold(filepath.Ext(path), ".mf") {
		ids = parseJarManifest(b)
	} else {
		ids, err = parseManifestDoc(b)
		if err != nil {
			if !strict {
				return nil, nil
			}
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
	}
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, Candidate{ID: id, Source: SourceManifest, Origin: path})
	}
	return out, nil
}

func parseManifestDoc(b []byte) ([]string, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	var doc manifestDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	var ids []string
	if doc.EntryPoint != "" {
		ids = append(ids, doc.EntryPoint)
	}
	return append(ids, doc.EntryPoints...), nil
}

// parseJarManifest reads Start-Class, falling back to Main-Class. Launcher
// jars put the real application in Start-Class.
func parseJarManifest(b []byte) []string {
	attrs := map[string]string{}
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, " ") && last != "" {
			attrs[last] += line[1:]
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			last = ""
			continue
		}
		last = strings.TrimSpace(name)
		attrs[last] = strings.TrimSpace(value)
	}
	if v := attrs["Start-Class"]; v != "" {
		return []string{v}
	}
	if v := attrs["Main-Class"]; v != "" {
		return []string{v}
	}
	return nil
}
