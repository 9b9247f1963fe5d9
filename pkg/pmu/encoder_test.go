//go:build linux

package pmu

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"

	"github.com/perfmon/pmon/pkg/perf"
)

// fakeSysfs installs an in-memory event_source tree for the test's duration.
func fakeSysfs(t *testing.T, files map[string]string) {
	t.Helper()
	m := fstest.MapFS{}
	for name, data := range files {
		m[name] = &fstest.MapFile{Data: []byte(data)}
	}
	old := pmuFS
	pmuFS = m
	t.Cleanup(func() { pmuFS = old })
}

func TestEncodeBuiltin(t *testing.T) {
	enc := NewEncoder()

	tests := []struct {
		name   string
		typ    uint32
		config uint64
	}{
		{"cycles", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
		{"cpu-cycles", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
		{"instructions", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS},
		{"cache-misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES},
		{"PERF_COUNT_HW_CPU_CYCLES", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
		{"context-switches", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CONTEXT_SWITCHES},
		{"PERF_COUNT_SW_DUMMY", unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_DUMMY},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attr unix.PerfEventAttr
			require.NoError(t, enc.Encode(tt.name, perf.PrivAll, &attr))
			assert.Equal(t, tt.typ, attr.Type)
			assert.Equal(t, tt.config, attr.Config)
		})
	}
}

func TestEncodeCacheEvents(t *testing.T) {
	enc := NewEncoder()

	tests := []struct {
		name   string
		config uint64
	}{
		{"L1-dcache-load-misses", unix.PERF_COUNT_HW_CACHE_L1D |
			unix.PERF_COUNT_HW_CACHE_OP_READ<<8 | unix.PERF_COUNT_HW_CACHE_RESULT_MISS<<16},
		{"LLC-stores", unix.PERF_COUNT_HW_CACHE_LL |
			unix.PERF_COUNT_HW_CACHE_OP_WRITE<<8 | unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS<<16},
		{"dTLB-misses", unix.PERF_COUNT_HW_CACHE_DTLB |
			unix.PERF_COUNT_HW_CACHE_OP_READ<<8 | unix.PERF_COUNT_HW_CACHE_RESULT_MISS<<16},
		{"iTLB", unix.PERF_COUNT_HW_CACHE_ITLB |
			unix.PERF_COUNT_HW_CACHE_OP_READ<<8 | unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS<<16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attr unix.PerfEventAttr
			require.NoError(t, enc.Encode(tt.name, perf.PrivAll, &attr))
			assert.Equal(t, uint32(unix.PERF_TYPE_HW_CACHE), attr.Type)
			assert.Equal(t, tt.config, attr.Config)
		})
	}
}

func TestEncodeModifiers(t *testing.T) {
	enc := NewEncoder()

	t.Run("user_only", func(t *testing.T) {
		var attr unix.PerfEventAttr
		require.NoError(t, enc.Encode("cycles:u", perf.PrivAll, &attr))
		assert.Zero(t, attr.Bits&unix.PerfBitExcludeUser)
		assert.NotZero(t, attr.Bits&unix.PerfBitExcludeKernel)
		assert.NotZero(t, attr.Bits&unix.PerfBitExcludeHv)
	})
	t.Run("kernel_only_legacy_spelling", func(t *testing.T) {
		var attr unix.PerfEventAttr
		require.NoError(t, enc.Encode("PERF_COUNT_HW_CPU_CYCLES:K", perf.PrivAll, &attr))
		assert.NotZero(t, attr.Bits&unix.PerfBitExcludeUser)
		assert.Zero(t, attr.Bits&unix.PerfBitExcludeKernel)
	})
	t.Run("no_modifier_uses_mask", func(t *testing.T) {
		var attr unix.PerfEventAttr
		require.NoError(t, enc.Encode("cycles", perf.PrivUser|perf.PrivKernel, &attr))
		assert.Zero(t, attr.Bits&unix.PerfBitExcludeUser)
		assert.Zero(t, attr.Bits&unix.PerfBitExcludeKernel)
		assert.NotZero(t, attr.Bits&unix.PerfBitExcludeHv)
	})
}

func TestEncodePMUForm(t *testing.T) {
	fakeSysfs(t, map[string]string{
		"cpu/type":          "4\n",
		"cpu/format/event":  "config:0-7\n",
		"cpu/format/umask":  "config:8-15\n",
		"cpu/format/edge":   "config:18\n",
		"cpu/events/uops":   "event=0x0e,umask=0x01\n",
		"split/type":        "27\n",
		"split/format/wide": "config:0-7,32-35\n",
	})
	enc := NewEncoder()

	t.Run("explicit_params", func(t *testing.T) {
		var attr unix.PerfEventAttr
		require.NoError(t, enc.Encode("cpu/event=0x3c,umask=0x00/", perf.PrivAll, &attr))
		assert.Equal(t, uint32(4), attr.Type)
		assert.Equal(t, uint64(0x3c), attr.Config)
	})
	t.Run("lone_key_is_one", func(t *testing.T) {
		var attr unix.PerfEventAttr
		require.NoError(t, enc.Encode("cpu/event=0x3c,edge/", perf.PrivAll, &attr))
		assert.Equal(t, uint64(0x3c|1<<18), attr.Config)
	})
	t.Run("named_sysfs_event", func(t *testing.T) {
		var attr unix.PerfEventAttr
		require.NoError(t, enc.Encode("cpu/uops/", perf.PrivAll, &attr))
		assert.Equal(t, uint64(0x0e|0x01<<8), attr.Config)
	})
	t.Run("bare_name_falls_back_to_cpu_events", func(t *testing.T) {
		var attr unix.PerfEventAttr
		require.NoError(t, enc.Encode("uops", perf.PrivAll, &attr))
		assert.Equal(t, uint32(4), attr.Type)
		assert.Equal(t, uint64(0x0e|0x01<<8), attr.Config)
	})
	t.Run("split_bit_ranges", func(t *testing.T) {
		var attr unix.PerfEventAttr
		require.NoError(t, enc.Encode("split/wide=0xabc/", perf.PrivAll, &attr))
		// low 8 bits at 0-7, next 4 bits at 32-35
		assert.Equal(t, uint64(0xbc)|uint64(0xa)<<32, attr.Config)
	})
	t.Run("value_out_of_range", func(t *testing.T) {
		var attr unix.PerfEventAttr
		err := enc.Encode("cpu/event=0x1ff/", perf.PrivAll, &attr)
		assert.ErrorIs(t, err, perf.ErrEncode)
	})
	t.Run("unknown_pmu", func(t *testing.T) {
		var attr unix.PerfEventAttr
		err := enc.Encode("nosuch/event=1/", perf.PrivAll, &attr)
		assert.ErrorIs(t, err, perf.ErrEncode)
	})
	t.Run("unknown_parameter", func(t *testing.T) {
		var attr unix.PerfEventAttr
		err := enc.Encode("cpu/bogus=1/", perf.PrivAll, &attr)
		assert.ErrorIs(t, err, perf.ErrEncode)
	})
}

func TestEncodeUnknownEvent(t *testing.T) {
	fakeSysfs(t, map[string]string{"cpu/type": "4\n"})
	enc := NewEncoder()

	var attr unix.PerfEventAttr
	err := enc.Encode("NOT_AN_EVENT", perf.PrivAll, &attr)
	assert.ErrorIs(t, err, perf.ErrEncode)
}

func TestList(t *testing.T) {
	fakeSysfs(t, map[string]string{
		"software/type": "1\n",
		"cpu/type":      "4\n",
		"uncore/type":   "17\n",
	})

	pmus, err := List()
	require.NoError(t, err)
	require.Len(t, pmus, 3)
	assert.Equal(t, PMU{Name: "cpu", Type: 4}, pmus[0])
	assert.Equal(t, PMU{Name: "software", Type: 1}, pmus[1])
	assert.Equal(t, PMU{Name: "uncore", Type: 17}, pmus[2])
}

func TestParseFormat(t *testing.T) {
	t.Run("single_bit", func(t *testing.T) {
		f, err := parseFormat("edge", "config:18")
		require.NoError(t, err)
		assert.Equal(t, []bitRange{{18, 1}}, f.bits)
	})
	t.Run("range", func(t *testing.T) {
		f, err := parseFormat("event", "config:0-7\n")
		require.NoError(t, err)
		assert.Equal(t, []bitRange{{0, 8}}, f.bits)
	})
	t.Run("bad_field", func(t *testing.T) {
		_, err := parseFormat("x", "config9:0-7")
		require.Error(t, err)
	})
	t.Run("missing_colon", func(t *testing.T) {
		_, err := parseFormat("x", "config")
		require.Error(t, err)
	})
}
