package stats

import "time"

// ProcessTimes carries the CPU-time breakdown stats.Basic.Dump reports in
// its "CPU time [s]: user ... system ..." line, grounded on httperf.c's
// getrusage(RUSAGE_SELF, ...) call at exit.
type ProcessTimes struct {
	User time.Duration
	Sys  time.Duration
}
