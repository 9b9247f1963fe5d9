//go:build linux

// Package top keeps a continuously refreshed view of per-processor cycle
// consumption: one fixed user/kernel-cycle group per selected processor,
// read on a jittered interval and converted to utilization percentages.
package top

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/perfmon/pmon/pkg/config"
	"github.com/perfmon/pmon/pkg/perf"
	"github.com/perfmon/pmon/pkg/system/util"
	"github.com/perfmon/pmon/pkg/topology"
)

// The per-processor group: unhalted cycles in user mode and in kernel mode.
// Group read keeps the pair consistent; inherit stays off because the kernel
// cannot combine it with the packed read.
const eventList = "cycles:u,cycles:k"

const (
	uCycleIdx = 0
	kCycleIdx = 1
)

// Frame is one processor's share of a display refresh.
type Frame struct {
	CPU     int
	FreqGHz float64
	Usr     float64
	Sys     float64
	Idle    float64
}

// Engine samples the cycle groups and produces Frame slices; rendering is
// somebody else's job.
type Engine struct {
	cfg *config.Config
	enc perf.Encoder

	cpus   []int
	freqs  map[int]int // MHz per processor
	groups map[int]*perf.Group
}

// NewEngine returns an unopened Engine.
func NewEngine(cfg *config.Config, enc perf.Encoder) *Engine {
	return &Engine{cfg: cfg, enc: enc}
}

// Open resolves the processor list, snapshots per-processor frequencies and
// opens one cycle group per processor.
func (e *Engine) Open() error {
	online, err := topology.OnlineCPUs()
	if err != nil {
		return err
	}

	if e.cfg.CPUList == "" {
		e.cpus = online
	} else {
		cpus, err := config.ParseCPUList(e.cfg.CPUList)
		if err != nil {
			return err
		}
		for _, c := range cpus {
			found := false
			for _, o := range online {
				if o == c {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("top: cpu %d is not online", c)
			}
		}
		e.cpus = cpus
	}

	e.freqs, err = topology.Frequencies()
	if err != nil {
		return err
	}
	for _, c := range e.cpus {
		if _, ok := e.freqs[c]; !ok {
			slog.Warn("frequency of cpu unknown, using cpu 0", "cpu", c)
			e.freqs[c] = e.freqs[0]
		}
	}

	opts := perf.GroupOptions{GroupRead: true, MaxSize: config.MaxGroupSize}
	e.groups = make(map[int]*perf.Group, len(e.cpus))
	for _, c := range e.cpus {
		g, err := perf.OpenGroup(e.enc, eventList, -1, c, config.DefaultPLM, opts)
		if err != nil {
			e.Close()
			return fmt.Errorf("top: cpu %d: %w", c, err)
		}
		e.groups[c] = g
	}
	return nil
}

// Close releases every group. Idempotent.
func (e *Engine) Close() {
	for i := len(e.cpus) - 1; i >= 0; i-- {
		if g, ok := e.groups[e.cpus[i]]; ok {
			g.Close()
		}
	}
	e.groups = nil
}

// Run starts the groups and emits one Frame slice per refresh to the
// renderer. It returns when the iteration budget is spent or the context is
// cancelled (checked at the top of each iteration, so an interrupt takes
// effect at the next refresh boundary).
func (e *Engine) Run(ctx context.Context, r Renderer) error {
	delay := e.cfg.Delay
	if delay <= 0 {
		delay = 1.0
	}

	for _, c := range e.cpus {
		if err := e.groups[c].Start(); err != nil {
			slog.Warn("start cycle group", "cpu", c, "err", err)
		}
	}

	// Prime the previous-read tuples so the first displayed deltas cover
	// exactly one interval.
	for _, c := range e.cpus {
		if _, err := e.groups[c].Read(); err != nil {
			slog.Warn("prime cycle group", "cpu", c, "err", err)
		}
	}

	for i := 0; e.cfg.Iterations <= 0 || i < e.cfg.Iterations; i++ {
		if ctx.Err() != nil {
			return nil
		}

		// De-synchronize concurrent instances: up to 10ms early or late.
		seconds := delay + (rand.Float64()*0.02 - 0.01)
		util.SleepSeconds(seconds)

		frames := make([]Frame, 0, len(e.cpus))
		for _, c := range e.cpus {
			g := e.groups[c]
			if _, err := g.Read(); err != nil {
				slog.Warn("read cycle group", "cpu", c, "err", err)
				continue
			}
			evs := g.Events()
			frames = append(frames, computeFrame(c, e.freqs[c], evs[uCycleIdx].Delta(), evs[kCycleIdx].Delta(), seconds))
		}
		if err := r.Render(frames); err != nil {
			return err
		}
	}
	return nil
}

// computeFrame converts cycle deltas into utilization percentages against
// the cycles the processor could have retired in the window.
func computeFrame(cpu, mhz int, usrDelta, sysDelta uint64, seconds float64) Frame {
	f := Frame{CPU: cpu, FreqGHz: float64(mhz) / 1000.0}

	expected := seconds * float64(mhz) * 1e6
	if expected <= 0 {
		return f
	}

	f.Usr = min(100, 100*float64(usrDelta)/expected)
	f.Sys = min(100, 100*float64(sysDelta)/expected)
	if f.Usr+f.Sys > 100 {
		f.Idle = 0
	} else {
		f.Idle = 100 - f.Usr - f.Sys
	}
	return f
}
