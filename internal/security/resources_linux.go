// go:build linux
// +build linux

package security

import (
	"fmt"
	"syscall"
)

// checkVirtualMemoryLimit checks RLIMIT_AS (only available on Linux)
func checkVirtualMemoryLimit(minVirtualMemoryMB uint64) error {
	var vmLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_AS, &vmLimit); err == nil {
		if vmLimit.Cur != ^uint64(0) && vmLimit.Cur < minVirtualMemoryMB*1024*1024 {
			return fmt.Errorf("virtual memory limit too low: %d MB (minimum: %d MB)",
				vmLimit.Cur/1024/1024, minVirtualMemoryMB)
		}
	}
	return nil
}
