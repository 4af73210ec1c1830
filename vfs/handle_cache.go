package vfs

import (
	"io"
	"os"
	"sync"

	lrucache "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// handleCache keeps a bounded set of open read-only descriptors for
// passthrough source files, so repeated reads of a mirrored file do not
// re-open it on every call. Evicted descriptors are closed. The cache's
// own lock is held across reads so that eviction never closes a
// descriptor with a read in flight.
type handleCache struct {
	mutex sync.Mutex
	files *lrucache.Cache
}

func newHandleCache(maxHandles int) (*handleCache, error) {
	cache := &handleCache{}

	files, err := lrucache.NewWithEvict(maxHandles, cache.onEvicted)
	if err != nil {
		return nil, xerrors.Errorf("failed to create handle cache: %w", err)
	}

	cache.files = files
	return cache, nil
}

// onEvicted runs inside Add/Remove/Purge while the cache's lock is held,
// so the descriptor cannot be mid-read.
func (cache *handleCache) onEvicted(key interface{}, value interface{}) {
	logger := log.WithFields(log.Fields{
		"package":  "vfs",
		"struct":   "handleCache",
		"function": "onEvicted",
	})

	file := value.(*os.File)
	logger.Debugf("Closing passthrough handle - %s", file.Name())
	file.Close()
}

// Release closes all cached descriptors
func (cache *handleCache) Release() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.files.Purge()
}

// open returns a cached descriptor for the path, opening and caching one
// if absent. Called with the cache's lock held.
func (cache *handleCache) open(path string) (*os.File, error) {
	if value, ok := cache.files.Get(path); ok {
		return value.(*os.File), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open source file %s: %w", path, err)
	}

	cache.files.Add(path, file)
	return file, nil
}

// Probe verifies the source file exists and can be opened for reading,
// leaving the descriptor cached for subsequent reads.
func (cache *handleCache) Probe(path string) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	_, err := cache.open(path)
	return err
}

// ReadAt reads from the source file at the given offset
func (cache *handleCache) ReadAt(path string, buffer []byte, offset int64) (int, error) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	file, err := cache.open(path)
	if err != nil {
		return 0, err
	}

	readLen, err := file.ReadAt(buffer, offset)
	if err != nil && err != io.EOF {
		// the descriptor may be stale, drop it
		cache.files.Remove(path)
		return 0, xerrors.Errorf("failed to read source file %s at %d: %w", path, offset, err)
	}

	return readLen, nil
}
