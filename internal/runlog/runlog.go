// Package runlog persists the record of the last pipeline run as canonical
// YAML so that later invocations can inspect it.
package runlog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/flarebyte/kiln/internal/orchestrator"
	"gopkg.in/yaml.v3"
)

// FormatVersion is written into every run log.
const FormatVersion = "1"

// defaultRelPath is the run log location below the XDG state directory.
const defaultRelPath = "kiln/last-run.yaml"

// ErrNoRunLog is returned by Load when nothing has been saved yet.
var ErrNoRunLog = errors.New("no run log")

type document struct {
	Version string                    `yaml:"version"`
	Run     *orchestrator.PipelineRun `yaml:"run"`
}

// DefaultPath returns $XDG_STATE_HOME/kiln/last-run.yaml, creating the
// parent directory.
func DefaultPath() (string, error) {
	return xdg.StateFile(defaultRelPath)
}

// Marshal returns canonical YAML bytes for run: two-space indent and exactly
// one trailing newline, so rewriting an unchanged run is byte-stable.
func Marshal(run *orchestrator.PipelineRun) ([]byte, error) {
	if run == nil {
		return nil, errors.New("nil run")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(document{Version: FormatVersion, Run: run}); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	out = append(out, '\n')
	return out, nil
}

// Save writes run to path, creating parent directories. The file is
// replaced atomically.
func Save(path string, run *orchestrator.PipelineRun) error {
	b, err := Marshal(run)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".last-run-*.yaml")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a run log written by Save.
func Load(path string) (*orchestrator.PipelineRun, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNoRunLog, path)
		}
		return nil, err
	}
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("run log %s: %w", path, err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("run log %s: unsupported version %q", path, doc.Version)
	}
	if doc.Run == nil {
		return nil, fmt.Errorf("run log %s: missing run", path)
	}
	return doc.Run, nil
}
