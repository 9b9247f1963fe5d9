//go:build linux

package topology

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// cpuinfoPath is a variable so tests can substitute a canned file.
var cpuinfoPath = "/proc/cpuinfo"

// Frequencies returns the clock frequency in MHz for each online processor,
// read from /proc/cpuinfo. The "processor" and "cpu MHz" lines must appear
// in pairs, processor first; anything else means the format changed under
// us (non-x86, most likely) and is an error.
func Frequencies() (map[int]int, error) {
	f, err := os.Open(cpuinfoPath)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	defer f.Close()

	freqs := map[int]int{}
	cpu := -1
	paired := true

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}

		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch key {
		case "processor":
			if !paired {
				return nil, fmt.Errorf("topology: %s: processor %d has no cpu MHz line", cpuinfoPath, cpu)
			}
			cpu, err = strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("topology: %s: bad processor id %q: %w", cpuinfoPath, val, err)
			}
			paired = false

		case "cpu MHz":
			if paired {
				return nil, fmt.Errorf("topology: %s: cpu MHz line without a processor line", cpuinfoPath)
			}
			mhz, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("topology: %s: bad cpu MHz %q: %w", cpuinfoPath, val, err)
			}
			freqs[cpu] = int(mhz)
			paired = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("topology: reading %s: %w", cpuinfoPath, err)
	}
	if !paired {
		return nil, fmt.Errorf("topology: %s: processor %d has no cpu MHz line", cpuinfoPath, cpu)
	}
	return freqs, nil
}
