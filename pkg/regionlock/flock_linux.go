//go:build linux

package regionlock

import (
	"errors"

	"golang.org/x/sys/unix"
)

func createFile(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
}

func openFile(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
}

func removeFile(path string) error {
	return unix.Unlink(path)
}

func isNotExist(err error) bool {
	return errors.Is(err, unix.ENOENT)
}

func isExist(err error) bool {
	return errors.Is(err, unix.EEXIST)
}

func closeFd(fd int) error {
	return unix.Close(fd)
}

func lockExclusive(fd int) error {
	for {
		err := unix.Flock(fd, unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func tryLockExclusive(fd int) (bool, error) {
	err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return false, nil
	}
	return err == nil, err
}

func unlock(fd int) error {
	return unix.Flock(fd, unix.LOCK_UN)
}
