//go:build linux

package health

import (
	"os"

	"github.com/prometheus/procfs"
)

// residentMemoryMB reads the current process's resident set size via
// /proc, the same source the teacher's hand-rolled VmRSS parser used
// (spec.md §9 platform conditionals) — here through the procfs library
// rather than parsing the status file by hand.
func residentMemoryMB() (float64, bool) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, false
	}
	proc, err := fs.Proc(os.Getpid())
	if err != nil {
		return 0, false
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0, false
	}
	rssBytes := stat.ResidentMemory()
	return float64(rssBytes) / (1024 * 1024), true
}
