package vfs

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/gstfs/gstfs/cache"
	"github.com/gstfs/gstfs/config"
	"github.com/gstfs/gstfs/transcode"
	"github.com/gstfs/gstfs/vpath"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// maxPassthroughHandles bounds the open descriptors kept for passthrough reads
const maxPassthroughHandles = 16

// FileAttr holds file attributes reported by Getattr
type FileAttr struct {
	Size       int64
	Mode       os.FileMode
	ModifyTime time.Time
	IsDir      bool
}

// StatfsInfo holds filesystem statistics reported by Statfs
type StatfsInfo struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	NameLen uint32
	Frsize  uint32
}

// FileSystem implements the read-only transcoding filesystem operations.
// It is constructed once at startup and injected into every callback
// handler invocation. All operations are safe for concurrent use.
type FileSystem struct {
	config     *config.Config
	translator *vpath.Translator
	store      *cache.Store
	engine     transcode.Engine
	handles    *handleCache
}

// NewFileSystem creates a new FileSystem from the mount configuration and
// a transcoding engine.
func NewFileSystem(mountConfig *config.Config, engine transcode.Engine) (*FileSystem, error) {
	logger := log.WithFields(log.Fields{
		"package":  "vfs",
		"struct":   "FileSystem",
		"function": "NewFileSystem",
	})

	translator := vpath.NewTranslator(mountConfig.SourceDir, mountConfig.SourceExt, mountConfig.DestExt)

	handles, err := newHandleCache(maxPassthroughHandles)
	if err != nil {
		return nil, xerrors.Errorf("failed to create filesystem: %w", err)
	}

	logger.Infof("Mirroring %s - transcoding .%s to .%s, caching up to %d entries",
		mountConfig.SourceDir, mountConfig.SourceExt, mountConfig.DestExt, mountConfig.MaxCacheEntries)

	return &FileSystem{
		config:     mountConfig,
		translator: translator,
		store:      cache.NewStore(translator, mountConfig.MaxCacheEntries, mountConfig.MaxEntrySize),
		engine:     engine,
		handles:    handles,
	}, nil
}

// Release releases all resources held by the filesystem
func (filesystem *FileSystem) Release() {
	filesystem.handles.Release()
	filesystem.store.Release()
}

// GetStore returns the cache store
func (filesystem *FileSystem) GetStore() *cache.Store {
	return filesystem.store
}

// Getattr returns the attributes for the virtual path. For a cacheable
// path whose transcode result is ready, the materialized size overrides
// the source file's size; before that, the source size is reported so
// that tools special-casing zero-length files do not take a shortcut.
func (filesystem *FileSystem) Getattr(virtualPath string) (*FileAttr, error) {
	sourcePath := filesystem.translator.ResolveSourcePath(virtualPath)

	sourceStat, err := os.Stat(sourcePath)
	if err != nil {
		return nil, xerrors.Errorf("failed to stat source file %s: %w", sourcePath, err)
	}

	attr := &FileAttr{
		Size:       sourceStat.Size(),
		Mode:       sourceStat.Mode(),
		ModifyTime: sourceStat.ModTime(),
		IsDir:      sourceStat.IsDir(),
	}

	entry, err := filesystem.store.LookupOrCreate(virtualPath)
	if err != nil {
		if errors.Is(err, cache.ErrNotCacheable) {
			return attr, nil
		}
		return nil, err
	}

	entry.Lock()
	if entry.GetState() == cache.EntryStateReady {
		attr.Size = entry.GetSize()
	}
	entry.Unlock()

	return attr, nil
}

// Open opens the virtual path. For a cacheable path the transcode result
// is materialized before returning; an engine failure is not surfaced
// here and manifests later as a shorter-than-expected read. Passthrough
// paths are verified to exist and be readable.
func (filesystem *FileSystem) Open(virtualPath string) error {
	logger := log.WithFields(log.Fields{
		"package":  "vfs",
		"struct":   "FileSystem",
		"function": "Open",
	})

	entry, err := filesystem.store.LookupOrCreate(virtualPath)
	if err != nil {
		if errors.Is(err, cache.ErrNotCacheable) {
			sourcePath := filesystem.translator.ResolveSourcePath(virtualPath)
			return filesystem.handles.Probe(sourcePath)
		}
		return err
	}

	entry.Lock()
	defer entry.Unlock()

	err = transcode.Materialize(entry, filesystem.engine, filesystem.config.Pipeline)
	if err != nil {
		// open still succeeds; the failure shows up as a short read
		logger.WithError(err).Warnf("transcode failed for %s", virtualPath)
	}

	return nil
}

// Read reads up to len(buffer) bytes at the given offset. Cacheable paths
// are served from the entry's buffer; a read blocks on the entry's lock
// while a concurrent open is still materializing it. An offset at or past
// the content length reads zero bytes.
func (filesystem *FileSystem) Read(virtualPath string, buffer []byte, offset int64) (int, error) {
	logger := log.WithFields(log.Fields{
		"package":  "vfs",
		"struct":   "FileSystem",
		"function": "Read",
	})

	logger.Debugf("Reading %s - offset %d, length %d", virtualPath, offset, len(buffer))

	entry, err := filesystem.store.LookupOrCreate(virtualPath)
	if err != nil {
		if errors.Is(err, cache.ErrNotCacheable) {
			sourcePath := filesystem.translator.ResolveSourcePath(virtualPath)
			return filesystem.handles.ReadAt(sourcePath, buffer, offset)
		}
		return 0, err
	}

	entry.Lock()
	defer entry.Unlock()

	return entry.ReadAt(buffer, offset), nil
}

// Readdir lists the source directory, presenting entries with the source
// extension under the destination extension.
func (filesystem *FileSystem) Readdir(virtualPath string, emit func(name string, isDir bool)) error {
	sourcePath := filesystem.translator.ResolveSourcePath(virtualPath)

	dirEntries, err := os.ReadDir(sourcePath)
	if err != nil {
		return xerrors.Errorf("failed to list source directory %s: %w", sourcePath, err)
	}

	for _, dirEntry := range dirEntries {
		emit(filesystem.translator.RewriteDirEntryName(dirEntry.Name()), dirEntry.IsDir())
	}

	return nil
}

// Statfs reports filesystem statistics for the resolved source path
func (filesystem *FileSystem) Statfs(virtualPath string) (*StatfsInfo, error) {
	sourcePath := filesystem.translator.ResolveSourcePath(virtualPath)

	statfs := syscall.Statfs_t{}
	err := syscall.Statfs(sourcePath, &statfs)
	if err != nil {
		return nil, xerrors.Errorf("failed to statfs %s: %w", sourcePath, err)
	}

	return &StatfsInfo{
		Blocks:  statfs.Blocks,
		Bfree:   statfs.Bfree,
		Bavail:  statfs.Bavail,
		Files:   statfs.Files,
		Ffree:   statfs.Ffree,
		Bsize:   uint32(statfs.Bsize),
		NameLen: uint32(statfs.Namelen),
		Frsize:  uint32(statfs.Frsize),
	}, nil
}

// Access checks accessibility of the resolved source path
func (filesystem *FileSystem) Access(virtualPath string, mode uint32) error {
	sourcePath := filesystem.translator.ResolveSourcePath(virtualPath)

	err := syscall.Access(sourcePath, mode)
	if err != nil {
		return xerrors.Errorf("failed to access %s: %w", sourcePath, err)
	}

	return nil
}
