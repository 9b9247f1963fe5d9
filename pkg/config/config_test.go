//go:build linux

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := (&Config{}).Normalize()
		assert.Equal(t, DefaultLoops, c.Loops)
		assert.Equal(t, DefaultInterval, c.Interval)
		assert.Equal(t, DefaultPLM, c.PLM)
	})
	t.Run("short_interval_raised", func(t *testing.T) {
		c := (&Config{Interval: 0.005}).Normalize()
		assert.Equal(t, DefaultInterval, c.Interval)
	})
	t.Run("minimum_interval_kept", func(t *testing.T) {
		c := (&Config{Interval: 0.01}).Normalize()
		assert.Equal(t, 0.01, c.Interval)
	})
	t.Run("negative_loops_defaulted", func(t *testing.T) {
		c := (&Config{Loops: -3}).Normalize()
		assert.Equal(t, DefaultLoops, c.Loops)
	})
	t.Run("inherit_disables_group_read", func(t *testing.T) {
		c := (&Config{InclChildren: true, GroupRead: true}).Normalize()
		assert.True(t, c.InclChildren)
		assert.False(t, c.GroupRead)
	})
	t.Run("explicit_values_untouched", func(t *testing.T) {
		c := (&Config{Loops: 2, Interval: 0.5, PLM: "u"}).Normalize()
		assert.Equal(t, 2, c.Loops)
		assert.Equal(t, 0.5, c.Interval)
		assert.Equal(t, "u", c.PLM)
	})
}

func writeGroupFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "events.cfg")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadGroups(t *testing.T) {
	t.Run("groups_and_comments", func(t *testing.T) {
		p := writeGroupFile(t, `# cycle accounting
cycles
instructions
;

# memory
cache-references
  cache-misses
;
`)
		groups, err := LoadGroups(p)
		require.NoError(t, err)
		assert.Equal(t, []string{"cycles,instructions", "cache-references,cache-misses"}, groups)
	})

	t.Run("eof_flushes_last_group", func(t *testing.T) {
		p := writeGroupFile(t, "cycles\n;\ninstructions\n")
		groups, err := LoadGroups(p)
		require.NoError(t, err)
		assert.Equal(t, []string{"cycles", "instructions"}, groups)
	})

	t.Run("stray_terminator_ignored", func(t *testing.T) {
		p := writeGroupFile(t, ";\n;\ncycles\n")
		groups, err := LoadGroups(p)
		require.NoError(t, err)
		assert.Equal(t, []string{"cycles"}, groups)
	})

	t.Run("empty_file", func(t *testing.T) {
		p := writeGroupFile(t, "# nothing here\n")
		_, err := LoadGroups(p)
		assert.ErrorIs(t, err, ErrNoEvents)
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadGroups(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})
}

func TestParseGroups(t *testing.T) {
	assert.Equal(t, []string{"a,b", "c,d"}, ParseGroups("a,b;c,d"))
	assert.Equal(t, []string{"a"}, ParseGroups("a"))
	assert.Equal(t, []string{"a", "b"}, ParseGroups("a; b ;"))
	assert.Nil(t, ParseGroups(""))
}

func TestParseCPUList(t *testing.T) {
	cpus, err := ParseCPUList("0,2-3")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3}, cpus)

	_, err = ParseCPUList("0,x")
	require.Error(t, err)
}
