//go:build linux

package sysfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRangeList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  []int
	}{
		{"single", "3", []int{3}},
		{"range", "0-3", []int{0, 1, 2, 3}},
		{"mixed", "0-2,5,7-8", []int{0, 1, 2, 5, 7, 8}},
		{"with_newline", "0-1\n", []int{0, 1}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRangeList(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.out, got)
		})
	}
}

func TestParseRangeList_Errors(t *testing.T) {
	for _, in := range []string{"x", "1-x", "4-2", "-1"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseRangeList(in)
			require.Error(t, err)
		})
	}
}

func TestReadWriteHelpers(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "online")

	require.NoError(t, os.WriteFile(p, []byte("1\n"), 0o644))

	s, err := ReadString(p)
	require.NoError(t, err)
	assert.Equal(t, "1", s)

	v, err := ReadInt(p)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, WriteInt(p, 0))
	v, err = ReadInt(p)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	assert.True(t, Exists(p))
	assert.False(t, Exists(filepath.Join(dir, "missing")))

	_, err = ReadInt(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
