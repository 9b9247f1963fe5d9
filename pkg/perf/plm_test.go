//go:build linux

package perf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

func TestParsePrivilege(t *testing.T) {
	tests := []struct {
		in  string
		out Privilege
	}{
		{"", 0},
		{"u", PrivUser},
		{"k", PrivKernel},
		{"h", PrivHypervisor},
		{"ukh", PrivAll},
		{"hku", PrivAll},
		{"UK", PrivUser | PrivKernel},
		{"uu", PrivUser},
	}
	for _, tt := range tests {
		t.Run("in_"+tt.in, func(t *testing.T) {
			got, err := ParsePrivilege(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.out, got)
		})
	}
}

func TestParsePrivilege_BadLetter(t *testing.T) {
	_, err := ParsePrivilege("ukx")
	assert.ErrorIs(t, err, ErrEncode)
}

func TestPrivilegeString(t *testing.T) {
	assert.Equal(t, "ukh", PrivAll.String())
	assert.Equal(t, "u", PrivUser.String())
	assert.Equal(t, "", Privilege(0).String())
}

func TestPrivilegeApply(t *testing.T) {
	t.Run("all_modes_exclude_nothing", func(t *testing.T) {
		var attr unix.PerfEventAttr
		PrivAll.Apply(&attr)
		assert.Zero(t, attr.Bits&(unix.PerfBitExcludeUser|unix.PerfBitExcludeKernel|unix.PerfBitExcludeHv))
	})
	t.Run("user_only_excludes_kernel_and_hv", func(t *testing.T) {
		var attr unix.PerfEventAttr
		PrivUser.Apply(&attr)
		assert.Zero(t, attr.Bits&unix.PerfBitExcludeUser)
		assert.NotZero(t, attr.Bits&unix.PerfBitExcludeKernel)
		assert.NotZero(t, attr.Bits&unix.PerfBitExcludeHv)
	})
	t.Run("reapply_clears_stale_bits", func(t *testing.T) {
		var attr unix.PerfEventAttr
		PrivUser.Apply(&attr)
		PrivAll.Apply(&attr)
		assert.Zero(t, attr.Bits&(unix.PerfBitExcludeUser|unix.PerfBitExcludeKernel|unix.PerfBitExcludeHv))
	})
}
