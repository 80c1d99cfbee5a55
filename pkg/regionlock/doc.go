// Package regionlock provides named, cross-process mutual exclusion, one lock
// per buffer region.
//
// Each lock is an exclusive advisory flock(2) on a named file, by default
// /dev/shm/<prefix>.lock.<region>. The supervisor creates the set with
// CreateAll and removes every name with DestroyAll; worker processes attach
// with OpenAll and only Acquire and Release.
//
// When a holder dies the kernel drops its flock, so a worker killed inside a
// critical section does not block the others. DestroyAll removes the names
// regardless of lock state.
package regionlock
