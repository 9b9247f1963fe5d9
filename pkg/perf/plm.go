//go:build linux

package perf

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Privilege selects which processor modes contribute to a count.
type Privilege uint8

const (
	PrivUser Privilege = 1 << iota
	PrivKernel
	PrivHypervisor

	// PrivAll is the default mask: count in every mode.
	PrivAll = PrivUser | PrivKernel | PrivHypervisor
)

// ParsePrivilege parses a privilege-level mask string. The letters 'u', 'k'
// and 'h' set the user, kernel and hypervisor bits. An empty string yields a
// zero mask; the caller decides whether that deserves a warning.
func ParsePrivilege(s string) (Privilege, error) {
	var p Privilege
	for _, c := range s {
		switch c {
		case 'u', 'U':
			p |= PrivUser
		case 'k', 'K':
			p |= PrivKernel
		case 'h', 'H':
			p |= PrivHypervisor
		default:
			return 0, fmt.Errorf("%w: bad privilege letter %q in %q", ErrEncode, c, s)
		}
	}
	return p, nil
}

func (p Privilege) String() string {
	var b strings.Builder
	if p&PrivUser != 0 {
		b.WriteByte('u')
	}
	if p&PrivKernel != 0 {
		b.WriteByte('k')
	}
	if p&PrivHypervisor != 0 {
		b.WriteByte('h')
	}
	return b.String()
}

// Apply translates the mask into the attribute's exclude bits: a mode absent
// from the mask is excluded from counting.
func (p Privilege) Apply(attr *unix.PerfEventAttr) {
	attr.Bits &^= unix.PerfBitExcludeUser | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv
	if p&PrivUser == 0 {
		attr.Bits |= unix.PerfBitExcludeUser
	}
	if p&PrivKernel == 0 {
		attr.Bits |= unix.PerfBitExcludeKernel
	}
	if p&PrivHypervisor == 0 {
		attr.Bits |= unix.PerfBitExcludeHv
	}
}

// Encoder translates a symbolic event name and privilege mask into the
// kernel's attribute record. Implementations live outside this package; the
// stock one is pkg/pmu.
type Encoder interface {
	Encode(name string, plm Privilege, attr *unix.PerfEventAttr) error
}
