//go:build !linux

package regionlock

import "errors"

var errUnsupported = errors.New("region locks are only implemented on linux")

func createFile(path string) (int, error) { return -1, errUnsupported }

func openFile(path string) (int, error) { return -1, errUnsupported }

func removeFile(path string) error { return errUnsupported }

func isNotExist(err error) bool { return false }

func isExist(err error) bool { return false }

func closeFd(fd int) error { return errUnsupported }

func lockExclusive(fd int) error { return errUnsupported }

func tryLockExclusive(fd int) (bool, error) { return false, errUnsupported }

func unlock(fd int) error { return errUnsupported }
