package cache

import (
	"container/list"
	"sync"

	"github.com/gstfs/gstfs/vpath"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// ErrNotCacheable is returned by LookupOrCreate for virtual paths that are
// not subject to transcoding. The caller must serve such paths by direct
// passthrough to the source file.
var ErrNotCacheable = xerrors.New("path is not cacheable")

// Store is a bounded mapping from virtual path to Entry with LRU ordering.
// A single lock protects the mapping and the LRU list together. The set of
// keys in the mapping always equals the set of entries on the LRU list.
//
// Lock ordering: an entry's own lock is never acquired while holding the
// store's lock, except as the non-blocking probe during eviction. Callers
// must never acquire the store's lock while holding an entry's lock.
type Store struct {
	translator *vpath.Translator
	maxEntries int
	sizeLimit  int64

	mutex   sync.Mutex
	entries map[string]*Entry
	lru     *list.List // head is least recently used, tail is most recently used
}

// NewStore creates a new Store. maxEntries bounds the number of cached
// entries, sizeLimit bounds the buffer size of a single entry.
func NewStore(translator *vpath.Translator, maxEntries int, sizeLimit int64) *Store {
	return &Store{
		translator: translator,
		maxEntries: maxEntries,
		sizeLimit:  sizeLimit,
		entries:    map[string]*Entry{},
		lru:        list.New(),
	}
}

// Release releases all entries in the store
func (store *Store) Release() {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	for _, entry := range store.entries {
		entry.lruElement = nil
	}

	store.entries = map[string]*Entry{}
	store.lru.Init()
}

// GetEntryCount returns the number of entries in the store
func (store *Store) GetEntryCount() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	return len(store.entries)
}

// HasEntry returns true if the store holds an entry for the virtual path
func (store *Store) HasEntry(vpath string) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	_, ok := store.entries[vpath]
	return ok
}

// LookupOrCreate returns the entry for the given virtual path, creating it
// if absent. The entry is moved to the most-recently-used position and
// eviction runs if the store is over capacity. Returns ErrNotCacheable for
// paths that must be served by passthrough.
func (store *Store) LookupOrCreate(virtualPath string) (*Entry, error) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Store",
		"function": "LookupOrCreate",
	})

	if !store.translator.IsCacheable(virtualPath) {
		return nil, xerrors.Errorf("failed to cache %s: %w", virtualPath, ErrNotCacheable)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	entry, ok := store.entries[virtualPath]
	if !ok {
		sourcePath := store.translator.ResolveSourcePath(virtualPath)
		logger.Debugf("Creating a cache entry - %s (source %s)", virtualPath, sourcePath)

		entry = newEntry(virtualPath, sourcePath, store.sizeLimit)
		store.entries[virtualPath] = entry
	}

	// move to the most-recently-used position
	if entry.lruElement != nil {
		store.lru.MoveToBack(entry.lruElement)
	} else {
		entry.lruElement = store.lru.PushBack(entry)
	}

	store.evict()

	return entry, nil
}

// evict removes least-recently-used entries until the store is within its
// capacity. Entries whose lock cannot be acquired without blocking are in
// use; they are requeued as freshly used instead of destroyed. The loop
// gives up after one full pass over the current entries, so a store whose
// entries are all busy may transiently stay over capacity.
// Called with the store's lock held.
func (store *Store) evict() {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Store",
		"function": "evict",
	})

	attempts := store.lru.Len()
	for store.lru.Len() > store.maxEntries && attempts > 0 {
		attempts--

		element := store.lru.Front()
		entry := element.Value.(*Entry)

		if !entry.TryLock() {
			// in use, requeue as freshly used
			logger.Debugf("Cache entry %s is in use - requeueing", entry.path)
			store.lru.MoveToBack(element)
			continue
		}

		logger.Debugf("Evicting cache entry %s", entry.path)

		store.lru.Remove(element)
		delete(store.entries, entry.path)
		entry.lruElement = nil
		entry.release()
		entry.Unlock()
	}
}
