//go:build linux

// Package sysfs holds small helpers for the single-value files the kernel
// exports under /sys and /proc.
package sysfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadString returns the file content with surrounding whitespace removed.
func ReadString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// ReadInt reads a file holding a single decimal integer.
func ReadInt(path string) (int, error) {
	s, err := ReadString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("sysfs: %s: %w", path, err)
	}
	return v, nil
}

// WriteInt writes a single decimal integer, the form the cpu online toggles
// expect.
func WriteInt(path string, v int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(v)), 0)
}

// Exists reports whether the path can be stat'ed.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ParseRangeList parses the kernel's cpu range-list format, e.g. "0-3,8,10-11".
func ParseRangeList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var cpus []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		lo, hi, ranged := strings.Cut(field, "-")
		from, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("sysfs: bad cpu range %q: %w", field, err)
		}
		to := from
		if ranged {
			to, err = strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("sysfs: bad cpu range %q: %w", field, err)
			}
		}
		if to < from || from < 0 {
			return nil, fmt.Errorf("sysfs: bad cpu range %q", field)
		}
		for c := from; c <= to; c++ {
			cpus = append(cpus, c)
		}
	}
	return cpus, nil
}
