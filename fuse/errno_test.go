package fuse

import (
	"os"
	"syscall"
	"testing"

	"github.com/gstfs/gstfs/cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/xerrors"
)

func TestToErrno(t *testing.T) {
	assert.Equal(t, syscall.Errno(0), ToErrno(nil))

	// wrapped stdlib sentinels
	assert.Equal(t, syscall.ENOENT, ToErrno(xerrors.Errorf("failed to stat: %w", os.ErrNotExist)))
	assert.Equal(t, syscall.EACCES, ToErrno(xerrors.Errorf("failed to open: %w", os.ErrPermission)))
	assert.Equal(t, syscall.EINVAL, ToErrno(xerrors.Errorf("bad request: %w", os.ErrInvalid)))

	// wrapped syscall errnos pass through
	assert.Equal(t, syscall.EACCES, ToErrno(xerrors.Errorf("failed to access: %w", syscall.EACCES)))

	// wrapped os errors carry their errno
	_, err := os.Stat("/nonexistent-gstfs-test-path")
	assert.Equal(t, syscall.ENOENT, ToErrno(err))

	// cache resource exhaustion
	assert.Equal(t, syscall.ENOMEM, ToErrno(xerrors.Errorf("append failed: %w", cache.ErrOutOfMemory)))

	// everything else is an I/O error
	assert.Equal(t, syscall.EIO, ToErrno(xerrors.New("pipeline failed")))
}
