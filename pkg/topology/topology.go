//go:build linux

// Package topology discovers the machine's socket/core/thread hierarchy from
// the kernel's sysfs exports.
package topology

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/perfmon/pmon/pkg/system/sysfs"
)

// cpuDir is a variable so tests can point Build at a fake tree.
var cpuDir = "/sys/devices/system/cpu"

// ErrHotplug indicates an online toggle could not be written. Build fails on
// it: without the toggle the snapshot would be incomplete.
var ErrHotplug = errors.New("topology: processor hotplug failed")

// Placement locates a physical core inside the machine.
type Placement struct {
	Core   int
	Socket int
}

// Core is one physical core and the hardware threads it carries.
type Core struct {
	Socket  int
	Core    int
	Threads []int
}

// Topology is a consistent snapshot of the CPU hierarchy. Build may briefly
// online absent processors to probe their topology files, but always
// restores the original online set before returning.
type Topology struct {
	Present CPUSet
	Online  CPUSet

	cores map[Placement]*Core
	procs map[int]Placement

	NrCPU    int
	NrCore   int
	NrSocket int

	NrOnlineCPU    int
	NrOnlineCore   int
	NrOnlineSocket int
}

// Build reads sysfs and returns the snapshot. The observable online set
// after Build equals the online set before it.
func Build() (*Topology, error) {
	t := &Topology{
		cores: map[Placement]*Core{},
		procs: map[int]Placement{},
	}

	if err := t.readPresent(); err != nil {
		return nil, err
	}
	if err := t.readOnline(); err != nil {
		return nil, err
	}

	// Topology files only exist for online processors, so online everything
	// present for the duration of the probe.
	guard, err := OnlineAllPresent(&t.Present, &t.Online)
	if err != nil {
		return nil, err
	}

	probeErr := t.readPlacements()
	restoreErr := guard.Restore()
	if probeErr != nil {
		return nil, probeErr
	}
	if restoreErr != nil {
		return nil, restoreErr
	}

	t.computeCounts()
	return t, nil
}

// OnlineCPUs returns the online processors without the full snapshot (and
// without touching any hotplug toggle).
func OnlineCPUs() ([]int, error) {
	t := &Topology{}
	if err := t.readPresent(); err != nil {
		return nil, err
	}
	if err := t.readOnline(); err != nil {
		return nil, err
	}
	return t.Online.List(), nil
}

func (t *Topology) readPresent() error {
	if s, err := sysfs.ReadString(filepath.Join(cpuDir, "present")); err == nil {
		cpus, err := sysfs.ParseRangeList(s)
		if err != nil {
			return fmt.Errorf("topology: %s/present: %w", cpuDir, err)
		}
		for _, c := range cpus {
			t.Present.Set(c)
		}
		return nil
	}

	// No range file; fall back to scanning cpu<N> directory entries.
	ents, err := os.ReadDir(cpuDir)
	if err != nil {
		return fmt.Errorf("topology: reading %s: %w", cpuDir, err)
	}
	for _, ent := range ents {
		name := ent.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}
		c, err := strconv.Atoi(name[3:])
		if err != nil {
			continue
		}
		t.Present.Set(c)
	}
	if t.Present.Count() == 0 {
		return fmt.Errorf("topology: no processors found under %s", cpuDir)
	}
	return nil
}

func (t *Topology) readOnline() error {
	if s, err := sysfs.ReadString(filepath.Join(cpuDir, "online")); err == nil {
		cpus, err := sysfs.ParseRangeList(s)
		if err != nil {
			return fmt.Errorf("topology: %s/online: %w", cpuDir, err)
		}
		for _, c := range cpus {
			t.Online.Set(c)
		}
		return nil
	}

	// Per-processor fallback. The boot processor has no online file and is
	// assumed online.
	for _, c := range t.Present.List() {
		if c == 0 {
			t.Online.Set(0)
			continue
		}
		v, err := sysfs.ReadInt(onlinePath(c))
		if err != nil {
			return fmt.Errorf("topology: %w", err)
		}
		if v != 0 {
			t.Online.Set(c)
		}
	}
	return nil
}

func (t *Topology) readPlacements() error {
	for _, c := range t.Present.List() {
		base := filepath.Join(cpuDir, fmt.Sprintf("cpu%d", c), "topology")

		coreID, err := sysfs.ReadInt(filepath.Join(base, "core_id"))
		if err != nil {
			return fmt.Errorf("topology: %w", err)
		}
		socket, err := sysfs.ReadInt(filepath.Join(base, "physical_package_id"))
		if err != nil {
			return fmt.Errorf("topology: %w", err)
		}

		p := Placement{Core: coreID, Socket: socket}
		t.procs[c] = p
		core, ok := t.cores[p]
		if !ok {
			core = &Core{Socket: socket, Core: coreID}
			t.cores[p] = core
		}
		core.Threads = append(core.Threads, c)
	}
	return nil
}

func (t *Topology) computeCounts() {
	t.NrCPU = t.Present.Count()
	t.NrOnlineCPU = t.Online.Count()
	t.NrCore = len(t.cores)

	sockets := map[int]bool{}
	onlineSockets := map[int]bool{}
	for p, core := range t.cores {
		sockets[p.Socket] = true
		for _, thr := range core.Threads {
			if t.Online.Has(thr) {
				t.NrOnlineCore++
				onlineSockets[p.Socket] = true
				break
			}
		}
	}
	t.NrSocket = len(sockets)
	t.NrOnlineSocket = len(onlineSockets)
}

// ProcessorPlacement returns the (core, socket) record for a processor.
func (t *Topology) ProcessorPlacement(cpu int) (Placement, bool) {
	p, ok := t.procs[cpu]
	return p, ok
}

// ProcessorCore returns the physical core id of a processor.
func (t *Topology) ProcessorCore(cpu int) (int, bool) {
	p, ok := t.procs[cpu]
	return p.Core, ok
}

// ProcessorSocket returns the socket id of a processor.
func (t *Topology) ProcessorSocket(cpu int) (int, bool) {
	p, ok := t.procs[cpu]
	return p.Socket, ok
}

// Cores returns the physical cores ordered by (socket, core).
func (t *Topology) Cores() []*Core {
	cores := make([]*Core, 0, len(t.cores))
	for _, c := range t.cores {
		cores = append(cores, c)
	}
	sort.Slice(cores, func(i, j int) bool {
		if cores[i].Socket != cores[j].Socket {
			return cores[i].Socket < cores[j].Socket
		}
		return cores[i].Core < cores[j].Core
	})
	return cores
}

// Print writes the counts header and the processor/core/socket table.
func (t *Topology) Print(w io.Writer) {
	fmt.Fprintf(w, "------------------------------------------------------\n")
	fmt.Fprintf(w, "- Number of sockets (online/total)          : %d/%d\n", t.NrOnlineSocket, t.NrSocket)
	fmt.Fprintf(w, "- Number of physical cores (online/total)   : %d/%d\n", t.NrOnlineCore, t.NrCore)
	fmt.Fprintf(w, "- Number of logical cores (online/total)    : %d/%d\n", t.NrOnlineCPU, t.NrCPU)
	fmt.Fprintf(w, "------------------------------------------------------\n")

	cpus := t.Present.List()
	fmt.Fprintf(w, "processor: ")
	for _, c := range cpus {
		fmt.Fprintf(w, "%-3d", c)
	}
	fmt.Fprintf(w, "\ncore id:   ")
	for _, c := range cpus {
		fmt.Fprintf(w, "%-3d", t.procs[c].Core)
	}
	fmt.Fprintf(w, "\nsocket id: ")
	for _, c := range cpus {
		fmt.Fprintf(w, "%-3d", t.procs[c].Socket)
	}
	fmt.Fprintf(w, "\n")
}

func onlinePath(cpu int) string {
	return filepath.Join(cpuDir, fmt.Sprintf("cpu%d", cpu), "online")
}

// OnlineGuard records the processors it onlined so they can be put back.
type OnlineGuard struct {
	changed []int
}

// OnlineAllPresent onlines every present-but-offline processor except the
// boot processor, which does not support hotplug. On failure, processors
// already toggled are restored before the error is returned.
func OnlineAllPresent(present, online *CPUSet) (*OnlineGuard, error) {
	g := &OnlineGuard{}
	for _, c := range present.List() {
		if c == 0 || online.Has(c) {
			continue
		}
		if err := hotplug(c, true); err != nil {
			if rerr := g.Restore(); rerr != nil {
				slog.Warn("restoring online set after failed hotplug", "err", rerr)
			}
			return nil, err
		}
		g.changed = append(g.changed, c)
	}
	return g, nil
}

// Restore offlines every processor the guard onlined, most recent first. It
// keeps going on failure and returns the first error.
func (g *OnlineGuard) Restore() error {
	var first error
	for i := len(g.changed) - 1; i >= 0; i-- {
		if err := hotplug(g.changed[i], false); err != nil && first == nil {
			first = err
		}
	}
	g.changed = nil
	return first
}

func hotplug(cpu int, online bool) error {
	v := 0
	if online {
		v = 1
	}
	if err := sysfs.WriteInt(onlinePath(cpu), v); err != nil {
		return fmt.Errorf("%w: cpu %d: %v", ErrHotplug, cpu, err)
	}
	return nil
}
