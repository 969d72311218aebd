package run

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flarebyte/kiln/internal/orchestrator"
	"github.com/flarebyte/kiln/internal/stage"
)

const defaultProgressInterval = 2 * time.Second

// progressReporter prints a line on every stage start and finish and a
// heartbeat naming the running stages while any are in flight.
type progressReporter struct {
	interval time.Duration
	w        io.Writer
	total    int

	mu      sync.Mutex
	running map[string]bool
	done    int
	failed  int
	stop    chan struct{}
}

func newProgressReporter(w io.Writer, total int, interval time.Duration) *progressReporter {
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	return &progressReporter{
		interval: interval,
		w:        w,
		total:    total,
		running:  map[string]bool{},
		stop:     make(chan struct{}),
	}
}

func (p *progressReporter) start() {
	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.heartbeat()
			case <-p.stop:
				return
			}
		}
	}()
}

func (p *progressReporter) close() { close(p.stop) }

func (p *progressReporter) OnStageStart(s stage.Spec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[s.Name] = true
	_, _ = fmt.Fprintf(p.w, "progress stage=%s status=started done=%d/%d\n", s.Name, p.done, p.total)
}

func (p *progressReporter) OnStageFinish(r orchestrator.StageResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, r.Stage)
	p.done++
	if r.Outcome == orchestrator.Failed {
		p.failed++
	}
	_, _ = fmt.Fprintf(p.w, "progress stage=%s status=%s done=%d/%d failed=%d\n", r.Stage, strings.ToLower(string(r.Outcome)), p.done, p.total, p.failed)
}

func (p *progressReporter) heartbeat() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.running) == 0 {
		return
	}
	names := make([]string, 0, len(p.running))
	for n := range p.running {
		names = append(names, n)
	}
	sort.Strings(names)
	_, _ = fmt.Fprintf(p.w, "progress running=%s done=%d/%d\n", strings.Join(names, ","), p.done, p.total)
}
