//go:build linux

package pmu

import (
	"strings"

	"golang.org/x/sys/unix"
)

// builtin events carry perf's well-known type/config pairs and generally do
// not appear under /sys. The name tables follow perf's parse-events.c; the
// uppercase PERF_COUNT_* aliases are the legacy spellings older event files
// use.
type builtin struct {
	typ    uint32
	config uint64
}

var hardwareEvents = map[string]builtin{
	"cpu-cycles":              {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
	"cycles":                  {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
	"instructions":            {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS},
	"cache-references":        {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_REFERENCES},
	"cache-misses":            {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES},
	"branch-instructions":     {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS},
	"branches":                {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS},
	"branch-misses":           {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES},
	"bus-cycles":              {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BUS_CYCLES},
	"stalled-cycles-frontend": {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND},
	"stalled-cycles-backend":  {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND},
	"ref-cycles":              {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_REF_CPU_CYCLES},

	"PERF_COUNT_HW_CPU_CYCLES":              {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
	"PERF_COUNT_HW_INSTRUCTIONS":            {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS},
	"PERF_COUNT_HW_CACHE_REFERENCES":        {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_REFERENCES},
	"PERF_COUNT_HW_CACHE_MISSES":            {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES},
	"PERF_COUNT_HW_BRANCH_INSTRUCTIONS":     {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS},
	"PERF_COUNT_HW_BRANCH_MISSES":           {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES},
	"PERF_COUNT_HW_BUS_CYCLES":              {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BUS_CYCLES},
	"PERF_COUNT_HW_STALLED_CYCLES_FRONTEND": {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND},
	"PERF_COUNT_HW_STALLED_CYCLES_BACKEND":  {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND},
	"PERF_COUNT_HW_REF_CPU_CYCLES":          {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_REF_CPU_CYCLES},
}

var softwareEvents = map[string]builtin{
	"cpu-clock":        {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_CLOCK},
	"task-clock":       {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_TASK_CLOCK},
	"page-faults":      {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS},
	"faults":           {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS},
	"context-switches": {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CONTEXT_SWITCHES},
	"cs":               {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CONTEXT_SWITCHES},
	"cpu-migrations":   {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_MIGRATIONS},
	"migrations":       {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_MIGRATIONS},
	"minor-faults":     {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS_MIN},
	"major-faults":     {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS_MAJ},
	"alignment-faults": {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_ALIGNMENT_FAULTS},
	"emulation-faults": {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_EMULATION_FAULTS},
	"dummy":            {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_DUMMY},

	"PERF_COUNT_SW_CPU_CLOCK":        {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_CLOCK},
	"PERF_COUNT_SW_TASK_CLOCK":       {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_TASK_CLOCK},
	"PERF_COUNT_SW_PAGE_FAULTS":      {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS},
	"PERF_COUNT_SW_CONTEXT_SWITCHES": {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CONTEXT_SWITCHES},
	"PERF_COUNT_SW_CPU_MIGRATIONS":   {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_MIGRATIONS},
	"PERF_COUNT_SW_PAGE_FAULTS_MIN":  {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS_MIN},
	"PERF_COUNT_SW_PAGE_FAULTS_MAJ":  {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS_MAJ},
	"PERF_COUNT_SW_ALIGNMENT_FAULTS": {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_ALIGNMENT_FAULTS},
	"PERF_COUNT_SW_EMULATION_FAULTS": {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_EMULATION_FAULTS},
	"PERF_COUNT_SW_DUMMY":            {unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_DUMMY},
}

type cacheAlias struct {
	name   string
	config uint64
}

// Longer aliases first so prefix matching is unambiguous.
var cacheNames = []cacheAlias{
	{"L1-dcache", unix.PERF_COUNT_HW_CACHE_L1D},
	{"L1-icache", unix.PERF_COUNT_HW_CACHE_L1I},
	{"l1-d", unix.PERF_COUNT_HW_CACHE_L1D},
	{"l1-i", unix.PERF_COUNT_HW_CACHE_L1I},
	{"l1d", unix.PERF_COUNT_HW_CACHE_L1D},
	{"l1i", unix.PERF_COUNT_HW_CACHE_L1I},
	{"LLC", unix.PERF_COUNT_HW_CACHE_LL},
	{"dTLB", unix.PERF_COUNT_HW_CACHE_DTLB},
	{"iTLB", unix.PERF_COUNT_HW_CACHE_ITLB},
	{"branch", unix.PERF_COUNT_HW_CACHE_BPU},
	{"node", unix.PERF_COUNT_HW_CACHE_NODE},
}

var cacheOps = []cacheAlias{
	{"loads", unix.PERF_COUNT_HW_CACHE_OP_READ},
	{"load", unix.PERF_COUNT_HW_CACHE_OP_READ},
	{"read", unix.PERF_COUNT_HW_CACHE_OP_READ},
	{"stores", unix.PERF_COUNT_HW_CACHE_OP_WRITE},
	{"store", unix.PERF_COUNT_HW_CACHE_OP_WRITE},
	{"write", unix.PERF_COUNT_HW_CACHE_OP_WRITE},
	{"prefetches", unix.PERF_COUNT_HW_CACHE_OP_PREFETCH},
	{"prefetch", unix.PERF_COUNT_HW_CACHE_OP_PREFETCH},
}

var cacheResults = []cacheAlias{
	{"misses", unix.PERF_COUNT_HW_CACHE_RESULT_MISS},
	{"miss", unix.PERF_COUNT_HW_CACHE_RESULT_MISS},
	{"refs", unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS},
	{"access", unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS},
}

// resolveBuiltin matches name against the generalized-event tables and, on
// success, fills in the attribute's type and config.
func resolveBuiltin(name string, attr *unix.PerfEventAttr) bool {
	if b, ok := hardwareEvents[name]; ok {
		attr.Type = b.typ
		attr.Config = b.config
		return true
	}
	if b, ok := softwareEvents[name]; ok {
		attr.Type = b.typ
		attr.Config = b.config
		return true
	}
	return resolveCache(name, attr)
}

// resolveCache composes PERF_TYPE_HW_CACHE configs from names such as
// L1-dcache-load-misses or LLC-stores. The op defaults to read, the result
// to access.
func resolveCache(name string, attr *unix.PerfEventAttr) bool {
	var config uint64
	rest := ""
	matched := false
	for _, c := range cacheNames {
		if name == c.name {
			config = c.config
			matched = true
			break
		}
		if strings.HasPrefix(name, c.name+"-") {
			config = c.config
			rest = name[len(c.name)+1:]
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	op := uint64(unix.PERF_COUNT_HW_CACHE_OP_READ)
	result := uint64(unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS)

	if rest != "" {
		part, tail, _ := strings.Cut(rest, "-")
		found := false
		for _, o := range cacheOps {
			if part == o.name {
				op = o.config
				found = true
				break
			}
		}
		if !found {
			// no op part; the whole remainder must be the result
			tail = rest
		}
		if tail != "" {
			found = false
			for _, r := range cacheResults {
				if tail == r.name {
					result = r.config
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}

	attr.Type = unix.PERF_TYPE_HW_CACHE
	attr.Config = config | op<<8 | result<<16
	return true
}
