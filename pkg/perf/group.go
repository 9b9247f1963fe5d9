//go:build linux

package perf

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/perfmon/pmon/pkg/system/util"
)

var nativeEndian = binary.NativeEndian

// GroupOptions control group-wide attribute discipline.
type GroupOptions struct {
	// GroupRead reads every member in one syscall through the leader.
	// Incompatible with Inherit.
	GroupRead bool

	// Inherit extends counting to child tasks of the target process.
	Inherit bool

	// SkipErrors drops events the encoder rejects instead of failing the
	// whole group.
	SkipErrors bool

	// MaxSize caps the number of events per group; 0 means no cap.
	MaxSize int

	// Flags is passed through to perf_event_open. Zero selects
	// PERF_FLAG_FD_CLOEXEC.
	Flags int
}

// Group is a set of events the kernel schedules onto the PMU atomically.
// All members share the same processor, process, flags and privilege mask;
// the first event is the leader. A group is either fully open or fully
// closed: a partial open is rolled back before the error surfaces.
type Group struct {
	events []*Event
	cpu    int
	pid    int
	plm    Privilege

	groupRead bool
	readBuf   []byte
}

// OpenGroup encodes and opens one event per name in the comma-separated
// list, pinned to (pid, cpu) with the given privilege-mask string. It
// returns with every event open, or with none.
func OpenGroup(enc Encoder, list string, pid, cpu int, plm string, opts GroupOptions) (*Group, error) {
	if opts.GroupRead && opts.Inherit {
		return nil, ErrInheritGroupRead
	}
	if opts.Flags == 0 {
		opts.Flags = unix.PERF_FLAG_FD_CLOEXEC
	}

	names := util.SplitLimit(list, ",", 0)
	if opts.MaxSize > 0 && len(names) > opts.MaxSize {
		slog.Warn("event group truncated", "limit", opts.MaxSize, "dropped", names[opts.MaxSize:])
		names = names[:opts.MaxSize]
	}

	mask, err := ParsePrivilege(plm)
	if err != nil {
		return nil, err
	}
	if mask == 0 {
		slog.Warn("privilege level mask is empty", "plm", plm)
	}

	g := &Group{cpu: cpu, pid: pid, plm: mask, groupRead: opts.GroupRead}

	for _, name := range names {
		name = util.Trim(name, "")
		if name == "" {
			continue
		}
		var attr unix.PerfEventAttr
		attr.Size = uint32(unsafe.Sizeof(attr))
		if err := enc.Encode(name, mask, &attr); err != nil {
			if opts.SkipErrors {
				slog.Warn("invalid event ignored", "event", name, "err", err)
				continue
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrEncode, name, err)
		}
		g.events = append(g.events, newEvent(name, attr, pid, cpu, mask, opts.Flags))
	}

	if len(g.events) == 0 {
		return nil, ErrEmptyGroup
	}

	for i, ev := range g.events {
		ev.withTiming()
		ev.withDisabled(i == 0)
		if opts.GroupRead && i == 0 {
			ev.withGroupRead()
		}
		if opts.Inherit {
			ev.withInherit()
		}
		if i > 0 {
			ev.leaderFD = g.events[0].fd
		}
		if err := ev.open(); err != nil {
			g.closeFrom(i - 1)
			return nil, err
		}
	}

	g.readBuf = make([]byte, 8*(3+len(g.events)))
	return g, nil
}

// closeFrom closes events [0, last] in reverse creation order.
func (g *Group) closeFrom(last int) {
	for i := last; i >= 0; i-- {
		if err := g.events[i].Close(); err != nil {
			slog.Warn("close event", "event", g.events[i].Name(), "err", err)
		}
	}
}

// Close tears the whole group down in reverse creation order. Idempotent.
func (g *Group) Close() {
	g.closeFrom(len(g.events) - 1)
}

// Leader returns the group leader.
func (g *Group) Leader() *Event { return g.events[0] }

// Events returns the members in creation order, leader first.
func (g *Group) Events() []*Event { return g.events }

// Size returns the number of events in the group.
func (g *Group) Size() int { return len(g.events) }

// CPU returns the processor the group is pinned to, -1 for any.
func (g *Group) CPU() int { return g.cpu }

// PID returns the process the group is pinned to, -1 for any.
func (g *Group) PID() int { return g.pid }

// Start enables the whole group with one ioctl on the leader.
func (g *Group) Start() error { return g.Leader().Start() }

// Stop disables the whole group.
func (g *Group) Stop() error { return g.Leader().Stop() }

// Reset zeroes every member's counter.
func (g *Group) Reset() error {
	return g.Leader().ioctl(unix.PERF_EVENT_IOC_RESET, unix.PERF_IOC_FLAG_GROUP)
}

// Read refreshes every member's observation and returns how many events were
// read successfully. In group-read mode all members come back from a single
// syscall on the leader and share the enabled/running pair; otherwise each
// event is read on its own, and one failure does not stop the others.
func (g *Group) Read() (int, error) {
	if g.groupRead {
		if err := g.readPacked(); err != nil {
			return 0, err
		}
		return len(g.events), nil
	}

	read := 0
	var firstErr error
	for _, ev := range g.events {
		if err := ev.Read(); err != nil {
			slog.Warn("read pmu counter", "event", ev.Name(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		read++
	}
	return read, firstErr
}

// readPacked performs the single whole-group read through the leader:
// { nr, time_enabled, time_running, value[0..nr-1] }.
func (g *Group) readPacked() error {
	n, err := readRestarting(g.Leader().fd, g.readBuf)
	if err != nil {
		return fmt.Errorf("read group (leader %s): %w", g.Leader().Name(), err)
	}
	if n < len(g.readBuf) {
		return fmt.Errorf("read group (leader %s): got %d bytes, want %d: %w",
			g.Leader().Name(), n, len(g.readBuf), ErrShortRead)
	}
	return g.storePacked(g.readBuf)
}

func (g *Group) storePacked(buf []byte) error {
	nr := nativeEndian.Uint64(buf[0:])
	if nr != uint64(len(g.events)) {
		return fmt.Errorf("group read returned %d events, want %d", nr, len(g.events))
	}
	enabled := nativeEndian.Uint64(buf[8:])
	running := nativeEndian.Uint64(buf[16:])
	for i, ev := range g.events {
		ev.setCounts(nativeEndian.Uint64(buf[24+8*i:]), enabled, running)
	}
	return nil
}

// Print writes a diagnostic block: the leader's handle, the group size, and
// each member's current and previous tuples.
func (g *Group) Print(w io.Writer) {
	fmt.Fprintf(w, "-------------------------------------------------------\n")
	fmt.Fprintf(w, "- Event Group - nr_events: %-4d  leader: %-10d   -\n", g.Size(), g.Leader().FD())
	fmt.Fprintf(w, "-------------------------------------------------------\n")
	for _, ev := range g.events {
		curr, prev := ev.Counts()
		fmt.Fprintf(w, "- EVENT - %s\n", ev.Name())
		fmt.Fprintf(w, "  pmu curr: %d  %d  %d\n", curr.Raw, curr.Enabled, curr.Running)
		fmt.Fprintf(w, "  pmu prev: %d  %d  %d\n", prev.Raw, prev.Enabled, prev.Running)
		fmt.Fprintf(w, "\n")
	}
}
