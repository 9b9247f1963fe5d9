//go:build linux

package perf

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const paranoidPath = "/proc/sys/kernel/perf_event_paranoid"

// Counts is one observation of a counter: the raw 64-bit value plus the
// kernel-reported enabled and running times in nanoseconds. Running never
// exceeds Enabled while the counter lives.
type Counts struct {
	Raw     uint64
	Enabled uint64
	Running uint64
}

// Event is a single counter bound to a (processor, process, privilege-mask)
// triple. Events are created and owned by a Group; the group drives the
// open/close lifecycle and the attribute discipline.
type Event struct {
	name string
	attr unix.PerfEventAttr

	fd       int // perf_event_open result, -1 while closed
	leaderFD int // group leader's fd, -1 when this event is the leader

	cpu   int // target processor, -1 for any
	pid   int // target process, -1 for any
	plm   Privilege
	flags int

	curr Counts
	prev Counts
}

func newEvent(name string, attr unix.PerfEventAttr, pid, cpu int, plm Privilege, flags int) *Event {
	return &Event{
		name:     name,
		attr:     attr,
		fd:       -1,
		leaderFD: -1,
		cpu:      cpu,
		pid:      pid,
		plm:      plm,
		flags:    flags,
	}
}

// withDisabled sets the attribute's disabled bit: 1 for a group leader,
// 0 for members, so the leader's enable ioctl starts the whole group.
func (ev *Event) withDisabled(disabled bool) {
	if disabled {
		ev.attr.Bits |= unix.PerfBitDisabled
	} else {
		ev.attr.Bits &^= unix.PerfBitDisabled
	}
}

// withTiming requests the enabled/running times every read. Without them the
// scaling formula is undefined, so groups always set this.
func (ev *Event) withTiming() {
	ev.attr.Read_format |= unix.PERF_FORMAT_TOTAL_TIME_ENABLED | unix.PERF_FORMAT_TOTAL_TIME_RUNNING
}

// withGroupRead marks the leader for the packed whole-group read layout.
func (ev *Event) withGroupRead() {
	ev.attr.Read_format |= unix.PERF_FORMAT_GROUP
}

// withInherit extends counting to child tasks of the target process.
func (ev *Event) withInherit() {
	ev.attr.Bits |= unix.PerfBitInherit
}

// open invokes the perf_event_open syscall with the prepared attributes.
func (ev *Event) open() error {
	fd, err := unix.PerfEventOpen(&ev.attr, ev.pid, ev.cpu, ev.leaderFD, ev.flags)
	if err != nil {
		return fmt.Errorf("open event %s (cpu %d, pid %d): %w", ev.name, ev.cpu, ev.pid, classifyOpenErr(err))
	}
	ev.fd = fd
	return nil
}

// classifyOpenErr maps the open syscall's errno onto the package's failure
// kinds. EACCES additionally carries a perf_event_paranoid hint.
func classifyOpenErr(err error) error {
	switch {
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		if hint := paranoidHint(); hint != "" {
			return fmt.Errorf("%w: %v (%s)", ErrDenied, err, hint)
		}
		return fmt.Errorf("%w: %v", ErrDenied, err)
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV),
		errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EOPNOTSUPP):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	case errors.Is(err, unix.ENOSPC), errors.Is(err, unix.EBUSY):
		return fmt.Errorf("%w: %v", ErrNoResource, err)
	default:
		return err
	}
}

func paranoidHint() string {
	data, err := os.ReadFile(paranoidPath)
	if err != nil {
		return ""
	}
	if val, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && val > 0 {
		return fmt.Sprintf("consider: echo 0 | sudo tee %s", paranoidPath)
	}
	return ""
}

// Close releases the kernel handle. It is idempotent and safe on an event
// that never opened.
func (ev *Event) Close() error {
	if ev.fd == -1 {
		return nil
	}
	err := unix.Close(ev.fd)
	if err == nil {
		ev.fd = -1
	}
	return err
}

func (ev *Event) ioctl(req uint, arg int) error {
	if ev.fd == -1 {
		return ErrClosed
	}
	if err := unix.IoctlSetInt(ev.fd, req, arg); err != nil {
		return fmt.Errorf("ioctl 0x%x on event %s: %w", req, ev.name, err)
	}
	return nil
}

// Start enables counting. On a group member this is normally a no-op for the
// caller: the kernel applies the leader's enable to the whole group, and we
// forward unconditionally and let it arbitrate.
func (ev *Event) Start() error { return ev.ioctl(unix.PERF_EVENT_IOC_ENABLE, 0) }

// Stop disables counting.
func (ev *Event) Stop() error { return ev.ioctl(unix.PERF_EVENT_IOC_DISABLE, 0) }

// Reset zeroes the counter value. The enabled/running times keep advancing.
func (ev *Event) Reset() error { return ev.ioctl(unix.PERF_EVENT_IOC_RESET, 0) }

// Refresh arms the counter for n more overflow events.
func (ev *Event) Refresh(n int) error { return ev.ioctl(unix.PERF_EVENT_IOC_REFRESH, n) }

// Read fetches {value, time_enabled, time_running} from the kernel, rotating
// the previous observation first. EINTR is retried; a short read returns
// ErrShortRead and any other read failure returns the wrapped errno. In both
// cases the rotation has already happened and the caller should suppress
// this tick's delta.
func (ev *Event) Read() error {
	if ev.fd == -1 {
		return ErrClosed
	}

	ev.prev = ev.curr

	var buf [24]byte
	n, err := readRestarting(ev.fd, buf[:])
	if err != nil {
		return fmt.Errorf("read event %s: %w", ev.name, err)
	}
	if n != len(buf) {
		return fmt.Errorf("read event %s: got %d bytes, want %d: %w", ev.name, n, len(buf), ErrShortRead)
	}

	ev.curr = Counts{
		Raw:     nativeEndian.Uint64(buf[0:]),
		Enabled: nativeEndian.Uint64(buf[8:]),
		Running: nativeEndian.Uint64(buf[16:]),
	}
	return nil
}

func readRestarting(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err
	}
}

// setCounts stores a tuple delivered by a packed group read, rotating the
// previous observation exactly like Read does.
func (ev *Event) setCounts(raw, enabled, running uint64) {
	ev.prev = ev.curr
	ev.curr = Counts{Raw: raw, Enabled: enabled, Running: running}
}

func (ev *Event) checkTimes() {
	if ev.curr.Running > ev.curr.Enabled {
		slog.Warn("running time exceeds enabled time",
			"event", ev.name, "running", ev.curr.Running, "enabled", ev.curr.Enabled)
	}
	if ev.curr.Running == 0 && ev.curr.Raw != 0 {
		slog.Warn("running time zero, scaling undefined",
			"event", ev.name, "raw", ev.curr.Raw)
	}
}

// Delta returns the multiplex-scaled count accumulated between the two most
// recent reads: (Δraw · Δenabled) / Δrunning. The product is carried in
// double precision to dodge 64-bit overflow and truncated toward zero. A
// window in which the counter never ran yields 0 with a warning.
func (ev *Event) Delta() uint64 {
	ev.checkTimes()

	c, p := ev.curr, ev.prev
	if c.Running <= p.Running {
		slog.Warn("counter did not run since previous read",
			"event", ev.name, "running", c.Running, "prev_running", p.Running)
		return 0
	}

	dRaw := float64(c.Raw) - float64(p.Raw)
	dEnabled := float64(c.Enabled) - float64(p.Enabled)
	dRunning := float64(c.Running) - float64(p.Running)
	return uint64(dRaw * dEnabled / dRunning)
}

// Scale returns the single-point scaled value of the current observation:
// raw · enabled / running, or 0 when the counter never ran.
func (ev *Event) Scale() uint64 {
	ev.checkTimes()

	c := ev.curr
	if c.Running == 0 {
		return 0
	}
	return uint64(float64(c.Raw) * float64(c.Enabled) / float64(c.Running))
}

// Counts returns the current and previous observations.
func (ev *Event) Counts() (curr, prev Counts) { return ev.curr, ev.prev }

// Name returns the symbolic event name given to the encoder.
func (ev *Event) Name() string { return ev.name }

// FD returns the kernel handle, -1 while closed.
func (ev *Event) FD() int { return ev.fd }

// CPU returns the pinned processor, -1 for any.
func (ev *Event) CPU() int { return ev.cpu }

// PID returns the pinned process, -1 for any.
func (ev *Event) PID() int { return ev.pid }
