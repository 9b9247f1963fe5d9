//go:build linux

// Package pmu resolves symbolic event names against the kernel's event
// sources. It is the stock implementation of the perf.Encoder boundary:
// generalized hardware/software/cache events come from builtin tables, and
// everything else from /sys/bus/event_source/devices.
package pmu

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// The directory and fs.FS of the event source devices. Variables so tests
// can stub them.
var (
	pmuDir       = "/sys/bus/event_source/devices"
	pmuFS  fs.FS = os.DirFS(pmuDir)
)

// PMU identifies one event source exported by the kernel.
type PMU struct {
	Name string
	Type uint32
}

// List enumerates the event sources, sorted by name.
func List() ([]PMU, error) {
	ents, err := fs.ReadDir(pmuFS, ".")
	if err != nil {
		return nil, fmt.Errorf("pmu: reading %s: %w", pmuDir, err)
	}
	var pmus []PMU
	for _, ent := range ents {
		typ, err := readType(ent.Name())
		if err != nil {
			continue // not every entry is a PMU directory
		}
		pmus = append(pmus, PMU{Name: ent.Name(), Type: typ})
	}
	sort.Slice(pmus, func(i, j int) bool { return pmus[i].Name < pmus[j].Name })
	return pmus, nil
}

func readType(pmu string) (uint32, error) {
	b, err := fs.ReadFile(pmuFS, path.Join(pmu, "type"))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("pmu: %s/type: %w", pmu, err)
	}
	return uint32(v), nil
}

// desc caches everything needed to encode events of one PMU: its type
// number, the format fields under format/, and the named events under
// events/ (each a parameter list like "event=0x3c,umask=0x00").
type desc struct {
	name    string
	typ     uint32
	formats map[string]format
	events  map[string]string
}

func loadDesc(pmu string) (*desc, error) {
	typ, err := readType(pmu)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unknown PMU %q", pmu)
	} else if err != nil {
		return nil, fmt.Errorf("unknown PMU %q: %w", pmu, err)
	}

	d := &desc{name: pmu, typ: typ, formats: map[string]format{}, events: map[string]string{}}

	err = forEachFile(path.Join(pmu, "format"), func(name, data string) error {
		f, err := parseFormat(name, data)
		if err != nil {
			return err
		}
		d.formats[name] = f
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = forEachFile(path.Join(pmu, "events"), func(name, data string) error {
		if strings.Contains(name, ".") {
			return nil // .scale/.unit and friends
		}
		d.events[name] = strings.TrimSpace(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return d, nil
}

// forEachFile calls f for each regular file under dir in pmuFS. A missing
// directory is treated as empty; every directory used here is optional.
func forEachFile(dir string, f func(name, data string) error) error {
	ents, err := fs.ReadDir(pmuFS, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pmu: reading %s: %w", dir, err)
	}
	for _, ent := range ents {
		b, err := fs.ReadFile(pmuFS, path.Join(dir, ent.Name()))
		if err != nil {
			return fmt.Errorf("pmu: reading %s: %w", path.Join(dir, ent.Name()), err)
		}
		if err := f(ent.Name(), string(b)); err != nil {
			return fmt.Errorf("%w (from %s)", err, path.Join(dir, ent.Name()))
		}
	}
	return nil
}

// format places a parameter value into one of the attribute's config words,
// possibly across several bit ranges.
type format struct {
	name  string
	field int // which config word
	bits  []bitRange
}

type bitRange struct {
	shift int
	n     int
}

const (
	fieldConfig = iota
	fieldConfig1
	fieldConfig2
	fieldPeriod
)

var wholeWord = []bitRange{{0, 64}}

// builtinFormat returns the formats every PMU accepts regardless of its
// format/ directory.
func builtinFormat(param string) (format, bool) {
	switch param {
	case "config":
		return format{param, fieldConfig, wholeWord}, true
	case "config1":
		return format{param, fieldConfig1, wholeWord}, true
	case "config2":
		return format{param, fieldConfig2, wholeWord}, true
	case "period":
		return format{param, fieldPeriod, wholeWord}, true
	}
	return format{}, false
}

func (d *desc) format(param string) (format, bool) {
	if f, ok := builtinFormat(param); ok {
		return f, true
	}
	f, ok := d.formats[param]
	return f, ok
}

// parseFormat parses a format file body such as "config:0-7,32-35" or
// "config1:3".
func parseFormat(name, s string) (format, error) {
	s = strings.TrimSpace(s)
	field, ranges, ok := strings.Cut(s, ":")
	if !ok {
		return format{}, fmt.Errorf("bad format %q", s)
	}

	f := format{name: name}
	switch field {
	case "config":
		f.field = fieldConfig
	case "config1":
		f.field = fieldConfig1
	case "config2":
		f.field = fieldConfig2
	default:
		return format{}, fmt.Errorf("bad format %q: unknown field %s", s, field)
	}

	for _, r := range strings.Split(ranges, ",") {
		lo, hi, ranged := strings.Cut(r, "-")
		shift, err := strconv.Atoi(lo)
		n := 1
		if ranged {
			hiVal, err2 := strconv.Atoi(hi)
			if err == nil {
				err = err2
			}
			n = hiVal - shift + 1
		}
		if err != nil || shift < 0 || n < 1 {
			return format{}, fmt.Errorf("bad format %q", s)
		}
		f.bits = append(f.bits, bitRange{shift, n})
	}
	return f, nil
}

// apply packs val into the attribute word the format names. Values too wide
// for the field's bit ranges are out of range.
func (f format) apply(attr *unix.PerfEventAttr, val uint64) error {
	var word *uint64
	switch f.field {
	case fieldConfig:
		word = &attr.Config
	case fieldConfig1:
		word = &attr.Ext1
	case fieldConfig2:
		word = &attr.Ext2
	case fieldPeriod:
		word = &attr.Sample
	}

	total := 0
	x := val
	for _, b := range f.bits {
		total += b.n
		var max uint64
		if b.n >= 64 {
			max = ^uint64(0)
		} else {
			max = uint64(1)<<b.n - 1
		}
		*word &^= max << b.shift
		*word |= (x & max) << b.shift
		x >>= b.n
	}
	if x != 0 {
		return fmt.Errorf("parameter %s=%d out of range (%d bits)", f.name, val, total)
	}
	return nil
}
