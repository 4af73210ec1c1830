package fuse

import (
	"context"
	"path"
	"syscall"
	"time"

	"github.com/gstfs/gstfs/vfs"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Options configures the FUSE mount
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted
	Mountpoint string

	// FileSystem serves all file operations
	FileSystem *vfs.FileSystem

	// AllowOther permits other users to access the mount.
	// Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug enables FUSE request logging
	Debug bool
}

// Mount mounts the transcoding filesystem at the configured mountpoint.
// The caller must call Unmount on the returned server when done.
func Mount(options Options) (*fuse.Server, error) {
	logger := log.WithFields(log.Fields{
		"package":  "fuse",
		"function": "Mount",
	})

	if options.Mountpoint == "" {
		return nil, xerrors.Errorf("mountpoint is required")
	}
	if options.FileSystem == nil {
		return nil, xerrors.Errorf("filesystem is required")
	}

	root := &node{
		filesystem: options.FileSystem,
		path:       "/",
	}

	attrTimeout := 1 * time.Second
	entryTimeout := 1 * time.Second

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "gstfs",
			Name:       "gstfs",
			AllowOther: options.AllowOther,
			Debug:      options.Debug,
		},
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to mount filesystem at %s: %w", options.Mountpoint, err)
	}

	logger.Infof("Mounted at %s", options.Mountpoint)
	return server, nil
}

// node represents one virtual path on the mount. Every operation delegates
// to the injected vfs.FileSystem; the node itself holds no per-file state.
type node struct {
	gofuse.Inode
	filesystem *vfs.FileSystem
	path       string
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeReader = (*node)(nil)
var _ gofuse.NodeAccesser = (*node)(nil)
var _ gofuse.NodeStatfser = (*node)(nil)

func fillAttr(attr *vfs.FileAttr, out *fuse.Attr) {
	out.Size = uint64(attr.Size)
	out.Mode = uint32(attr.Mode.Perm())
	if attr.IsDir {
		out.Mode |= syscall.S_IFDIR
	} else {
		out.Mode |= syscall.S_IFREG
	}
	out.SetTimes(nil, &attr.ModifyTime, nil)
}

func (n *node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.filesystem.Getattr(n.path)
	if err != nil {
		return ToErrno(err)
	}

	fillAttr(attr, &out.Attr)
	return 0
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	childPath := path.Join(n.path, name)

	attr, err := n.filesystem.Getattr(childPath)
	if err != nil {
		return nil, ToErrno(err)
	}

	mode := uint32(syscall.S_IFREG)
	if attr.IsDir {
		mode = syscall.S_IFDIR
	}

	child := n.NewInode(ctx, &node{
		filesystem: n.filesystem,
		path:       childPath,
	}, gofuse.StableAttr{Mode: mode})

	fillAttr(attr, &out.Attr)
	return child, 0
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{}

	err := n.filesystem.Readdir(n.path, func(name string, isDir bool) {
		mode := uint32(syscall.S_IFREG)
		if isDir {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Mode: mode,
		})
	})
	if err != nil {
		return nil, ToErrno(err)
	}

	return gofuse.NewListDirStream(entries), 0
}

func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}

	err := n.filesystem.Open(n.path)
	if err != nil {
		return nil, 0, ToErrno(err)
	}

	return nil, 0, 0
}

func (n *node) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	readLen, err := n.filesystem.Read(n.path, dest, off)
	if err != nil {
		return nil, ToErrno(err)
	}

	return fuse.ReadResultData(dest[:readLen]), 0
}

func (n *node) Access(ctx context.Context, mask uint32) syscall.Errno {
	return ToErrno(n.filesystem.Access(n.path, mask))
}

func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	info, err := n.filesystem.Statfs(n.path)
	if err != nil {
		return ToErrno(err)
	}

	out.Blocks = info.Blocks
	out.Bfree = info.Bfree
	out.Bavail = info.Bavail
	out.Files = info.Files
	out.Ffree = info.Ffree
	out.Bsize = info.Bsize
	out.NameLen = info.NameLen
	out.Frsize = info.Frsize
	return 0
}
