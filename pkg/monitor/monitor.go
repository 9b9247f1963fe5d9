//go:build linux

// Package monitor drives time-sliced round-robin counting over the
// configured event groups: when the groups exceed the PMU's counter budget,
// each one runs for the configured interval before the next takes its turn.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/perfmon/pmon/pkg/config"
	"github.com/perfmon/pmon/pkg/perf"
	"github.com/perfmon/pmon/pkg/system/sysfs"
	"github.com/perfmon/pmon/pkg/system/util"
	"github.com/perfmon/pmon/pkg/topology"
)

// Monitor owns one event group per configured group string per selected
// processor. A single cooperative thread drives every group; the kernel does
// the parallel counting in hardware.
type Monitor struct {
	cfg *config.Config
	enc perf.Encoder
	out io.Writer

	cpus   []int
	groups [][]*perf.Group // [group string][selected cpu]
	tick   int
}

// New returns an unopened Monitor writing snapshots to out.
func New(cfg *config.Config, enc perf.Encoder, out io.Writer) *Monitor {
	return &Monitor{cfg: cfg, enc: enc, out: out}
}

// selectCPUs resolves the cpu option against the online set: an explicit
// processor stands alone, "all" (-1) fans out over every online processor
// for a system-wide monitor, and a process-bound monitor follows its target
// wherever it runs.
func selectCPUs(cpu, pid int, online []int) []int {
	if cpu >= 0 {
		return []int{cpu}
	}
	if pid >= 0 {
		return []int{-1}
	}
	return online
}

// Open validates the targets and opens every group. On any failure the
// groups already opened are torn down before the error returns.
func (m *Monitor) Open() error {
	if len(m.cfg.Groups) == 0 {
		return config.ErrNoEvents
	}

	if pid := m.cfg.PID; pid >= 0 {
		if !sysfs.Exists("/proc/" + strconv.Itoa(pid) + "/status") {
			return fmt.Errorf("monitor: target process %d does not exist", pid)
		}
	}

	online, err := topology.OnlineCPUs()
	if err != nil {
		return err
	}
	if cpu := m.cfg.CPU; cpu >= 0 {
		found := false
		for _, c := range online {
			if c == cpu {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("monitor: target cpu %d is not online", cpu)
		}
	}
	m.cpus = selectCPUs(m.cfg.CPU, m.cfg.PID, online)

	opts := perf.GroupOptions{
		GroupRead:  m.cfg.GroupRead,
		Inherit:    m.cfg.InclChildren,
		SkipErrors: m.cfg.SkipErrors,
		MaxSize:    config.MaxGroupSize,
	}

	for _, list := range m.cfg.Groups {
		perCPU := make([]*perf.Group, 0, len(m.cpus))
		for _, cpu := range m.cpus {
			g, err := perf.OpenGroup(m.enc, list, m.cfg.PID, cpu, m.cfg.PLM, opts)
			if err != nil {
				m.groups = append(m.groups, perCPU)
				m.Close()
				return fmt.Errorf("monitor: group %q: %w", list, err)
			}
			perCPU = append(perCPU, g)
		}
		m.groups = append(m.groups, perCPU)
	}
	return nil
}

// Close tears every group down in reverse construction order. Idempotent.
func (m *Monitor) Close() {
	for gi := len(m.groups) - 1; gi >= 0; gi-- {
		perCPU := m.groups[gi]
		for ci := len(perCPU) - 1; ci >= 0; ci-- {
			perCPU[ci].Close()
		}
	}
	m.groups = nil
}

// Run executes the round-robin. Each slice starts one group's per-cpu
// instances, sleeps the duty cycle once, then stops, reads and emits them.
// Slices rotate group-major so every processor observes the same event set
// within a slice; the per-event enabled/running times normalize out the
// small start/stop skew between processors.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.cfg.Interval
	if interval < config.MinInterval {
		interval = config.MinInterval
	}

	for iter := 0; iter < m.cfg.Loops; iter++ {
		for _, perCPU := range m.groups {
			if err := ctx.Err(); err != nil {
				return err
			}

			for _, g := range perCPU {
				if err := g.Start(); err != nil {
					slog.Warn("start group", "cpu", g.CPU(), "err", err)
				}
			}

			util.SleepSeconds(interval)

			for _, g := range perCPU {
				if err := g.Stop(); err != nil {
					slog.Warn("stop group", "cpu", g.CPU(), "err", err)
				}
			}
			for _, g := range perCPU {
				if _, err := g.Read(); err != nil {
					slog.Warn("read group", "cpu", g.CPU(), "tick", m.tick, "err", err)
				}
				m.emit(g)
			}
		}
		m.tick++
	}
	return nil
}

func (m *Monitor) emit(g *perf.Group) {
	fmt.Fprintf(m.out, "# tick %d  cpu %s\n", m.tick, cpuLabel(g.CPU()))
	g.Print(m.out)
}

func cpuLabel(cpu int) string {
	if cpu < 0 {
		return "any"
	}
	return strconv.Itoa(cpu)
}

// CPUs returns the processors the monitor resolved at Open.
func (m *Monitor) CPUs() []int { return m.cpus }

// Groups returns how many kernel groups are open.
func (m *Monitor) Groups() int {
	n := 0
	for _, perCPU := range m.groups {
		n += len(perCPU)
	}
	return n
}
