//go:build !unix

package stats

// GetProcessTimes has no portable non-Unix implementation; this core
// targets the POSIX reactor backends (§4.5), so a zero reading here only
// affects the CPU-time line of Dump's report on a platform the reactor
// itself does not support either.
func GetProcessTimes() ProcessTimes {
	return ProcessTimes{}
}
