package stage

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/flarebyte/kiln/internal/registry"
	"github.com/flarebyte/kiln/internal/vcs"
	"github.com/opencontainers/go-digest"
)

// scratchDirName holds files the pipeline itself writes (resolved entry
// points, image configs) under the workdir.
const scratchDirName = ".kiln"

// Env is the explicit environment every stage of one run receives.
type Env struct {
	// Workdir is the absolute directory relative paths resolve against.
	Workdir string
	// Registry is the default repository publish stages push to.
	Registry string
	// Vars overlays the process environment of every collaborator.
	Vars   map[string]string
	Runner Runner
	Pusher registry.Pusher
	Ledger *PublishLedger
	Now    func() time.Time
	// Revision returns the source revision used for image labels.
	Revision func(dir string) (string, error)
}

// NewEnv returns an Env with the exec runner, a fresh ledger and go-git
// revision lookup. Pusher stays nil until a caller sets one.
func NewEnv(workdir string) *Env {
	abs, err := filepath.Abs(workdir)
	if err != nil {
		abs = workdir
	}
	return &Env{
		Workdir:  abs,
		Runner:   NewExecRunner(),
		Ledger:   NewPublishLedger(),
		Now:      time.Now,
		Revision: vcs.Revision,
	}
}

// Path resolves p against the workdir.
func (e *Env) Path(p string) string {
	if p == "" {
		return e.Workdir
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(e.Workdir, p)
}

// ScratchDir returns the directory reserved for files written on behalf of
// the named stage.
func (e *Env) ScratchDir(stageName string) string {
	return filepath.Join(e.Workdir, scratchDirName, stageName)
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// PublishLedger remembers which digest each reference received during a run.
type PublishLedger struct {
	mu   sync.Mutex
	refs map[string]digest.Digest
}

// NewPublishLedger returns an empty ledger.
func NewPublishLedger() *PublishLedger {
	return &PublishLedger{refs: map[string]digest.Digest{}}
}

// Published reports whether ref already received d.
func (l *PublishLedger) Published(ref string, d digest.Digest) bool {
	if l == nil || d == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs[ref] == d
}

// Record notes that ref now points at d.
func (l *PublishLedger) Record(ref string, d digest.Digest) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs[ref] = d
}
