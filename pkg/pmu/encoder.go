//go:build linux

package pmu

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/perfmon/pmon/pkg/perf"
)

// Encoder resolves event names natively against the builtin tables and the
// sysfs event sources. Descriptions are loaded lazily and cached; an Encoder
// is safe for use from a single monitoring thread, which is the toolkit's
// concurrency model.
type Encoder struct {
	mu    sync.Mutex
	descs map[string]*desc
}

var _ perf.Encoder = (*Encoder)(nil)

// NewEncoder returns an empty, lazily populated Encoder.
func NewEncoder() *Encoder {
	return &Encoder{descs: map[string]*desc{}}
}

// Encode populates attr for the named event. Accepted forms:
//
//	cycles, instructions, L1-dcache-load-misses   generalized events
//	PERF_COUNT_HW_CPU_CYCLES                      legacy spellings
//	cpu/event=0x3c,umask=0x00/                    explicit PMU parameters
//	cpu/cache-misses/                             named sysfs event
//	<any of the above>:u|k|h                      privilege override
//
// The privilege mask (possibly overridden by a modifier suffix) is folded
// into the attribute's exclude bits. A name that cannot be resolved returns
// an error wrapping perf.ErrEncode.
func (e *Encoder) Encode(name string, plm perf.Privilege, attr *unix.PerfEventAttr) error {
	base, mods, hasMods := splitModifiers(name)
	if hasMods {
		m, err := perf.ParsePrivilege(mods)
		if err != nil {
			return err
		}
		plm = m
	}

	if err := e.encodeBase(base, attr); err != nil {
		return err
	}
	plm.Apply(attr)
	return nil
}

func (e *Encoder) encodeBase(name string, attr *unix.PerfEventAttr) error {
	if pmuName, params, ok := cutPMUForm(name); ok {
		return e.encodePMU(name, pmuName, params, attr)
	}

	if resolveBuiltin(name, attr) {
		return nil
	}

	// A bare symbolic name implies the core PMU's events directory.
	d, err := e.desc("cpu")
	if err == nil {
		if paramList, ok := d.events[name]; ok {
			attr.Type = d.typ
			return e.applyParams(d, paramList, attr)
		}
	}

	return fmt.Errorf("%w: unknown event %q", perf.ErrEncode, name)
}

// encodePMU handles the pmu/param,.../ form.
func (e *Encoder) encodePMU(full, pmuName, params string, attr *unix.PerfEventAttr) error {
	d, err := e.desc(pmuName)
	if err != nil {
		return fmt.Errorf("%w: event %q: %v", perf.ErrEncode, full, err)
	}
	attr.Type = d.typ

	for _, p := range strings.Split(params, ",") {
		key, valStr, hasVal := strings.Cut(p, "=")
		if key == "" {
			return fmt.Errorf("%w: event %q: empty parameter", perf.ErrEncode, full)
		}

		if f, ok := d.format(key); ok {
			// A lone key means value 1.
			val := uint64(1)
			if hasVal {
				val, err = strconv.ParseUint(valStr, 0, 64)
				if err != nil {
					return fmt.Errorf("%w: event %q: parameter %q not a number", perf.ErrEncode, full, p)
				}
			}
			if err := f.apply(attr, val); err != nil {
				return fmt.Errorf("%w: event %q: %v", perf.ErrEncode, full, err)
			}
			continue
		}

		if !hasVal {
			if paramList, ok := d.events[key]; ok {
				if err := e.applyParams(d, paramList, attr); err != nil {
					return err
				}
				continue
			}
		}

		return fmt.Errorf("%w: event %q: unknown event or parameter %q", perf.ErrEncode, full, key)
	}
	return nil
}

// applyParams expands a sysfs event file body ("event=0x3c,umask=0x00")
// through the PMU's formats.
func (e *Encoder) applyParams(d *desc, paramList string, attr *unix.PerfEventAttr) error {
	for _, p := range strings.Split(paramList, ",") {
		key, valStr, hasVal := strings.Cut(p, "=")
		f, ok := d.format(key)
		if !ok {
			return fmt.Errorf("%w: unknown parameter %q in %s description", perf.ErrEncode, key, d.name)
		}
		val := uint64(1)
		if hasVal {
			var err error
			val, err = strconv.ParseUint(valStr, 0, 64)
			if err != nil {
				return fmt.Errorf("%w: parameter %q not a number", perf.ErrEncode, p)
			}
		}
		if err := f.apply(attr, val); err != nil {
			return fmt.Errorf("%w: %v", perf.ErrEncode, err)
		}
	}
	return nil
}

func (e *Encoder) desc(pmu string) (*desc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.descs[pmu]; ok {
		return d, nil
	}
	d, err := loadDesc(pmu)
	if err != nil {
		return nil, err
	}
	e.descs[pmu] = d
	return d, nil
}

// splitModifiers detaches a trailing :mods suffix when every letter is a
// privilege modifier. Names in the pmu/.../ form never carry one.
func splitModifiers(name string) (base, mods string, ok bool) {
	i := strings.LastIndex(name, ":")
	if i < 0 || strings.HasSuffix(name, "/") {
		return name, "", false
	}
	suffix := name[i+1:]
	if suffix == "" {
		return name, "", false
	}
	for _, c := range suffix {
		switch c {
		case 'u', 'k', 'h', 'U', 'K', 'H':
		default:
			return name, "", false
		}
	}
	return name[:i], suffix, true
}

// cutPMUForm recognizes pmu/params/ and returns the two parts.
func cutPMUForm(name string) (pmu, params string, ok bool) {
	if strings.Count(name, "/") != 2 || strings.HasPrefix(name, "/") || !strings.HasSuffix(name, "/") {
		return "", "", false
	}
	pmu, rest, _ := strings.Cut(name, "/")
	return pmu, strings.TrimSuffix(rest, "/"), true
}
