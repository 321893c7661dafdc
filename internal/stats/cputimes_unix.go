//go:build unix

package stats

import (
	"time"

	"golang.org/x/sys/unix"
)

// GetProcessTimes reads this process's accumulated user/system CPU time
// via getrusage(RUSAGE_SELF, ...), the same syscall httperf.c calls at
// exit to populate its "CPU time" report line.
func GetProcessTimes() ProcessTimes {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return ProcessTimes{}
	}
	return ProcessTimes{
		User: time.Duration(ru.Utime.Sec)*time.Second + time.Duration(ru.Utime.Usec)*time.Microsecond,
		Sys:  time.Duration(ru.Stime.Sec)*time.Second + time.Duration(ru.Stime.Usec)*time.Microsecond,
	}
}
