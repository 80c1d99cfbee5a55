//go:build linux

package supervisor

import "syscall"

// Workers receive SIGTERM when the supervisor dies without tearing down.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}
