package fuse

import (
	"errors"
	"os"
	"syscall"

	"github.com/gstfs/gstfs/cache"
)

// ToErrno maps an operation error to the errno reported to the kernel.
// Errors are local to the failing request; nothing here is fatal.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, os.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, os.ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, cache.ErrOutOfMemory):
		return syscall.ENOMEM
	}

	return syscall.EIO
}
