package cache

import (
	"container/list"
	"sync"

	"golang.org/x/xerrors"
)

// ErrOutOfMemory is returned when growing an entry's buffer would exceed
// the configured per-entry size limit.
var ErrOutOfMemory = xerrors.New("entry buffer size limit exceeded")

// EntryState determines the materialization state of a cache entry
type EntryState string

const (
	// EntryStateEmpty is the state of an entry that has never been transcoded
	EntryStateEmpty EntryState = "empty"
	// EntryStateMaterializing is the state of an entry whose transcode is in progress
	EntryStateMaterializing EntryState = "materializing"
	// EntryStateReady is the state of an entry holding a complete transcode result
	EntryStateReady EntryState = "ready"
	// EntryStateFailed is the state of an entry whose last transcode failed
	EntryStateFailed EntryState = "failed"
)

// String returns the string representation of an EntryState
func (state EntryState) String() string {
	return string(state)
}

// Entry holds the transcoded content for one virtual path. The entry's own
// lock must be held to read or mutate its state, buffer, or length. Holding
// the lock also marks the entry as in use, which protects it from eviction.
type Entry struct {
	path       string // virtual path, cache key
	sourcePath string
	sizeLimit  int64

	mutex  sync.Mutex
	state  EntryState
	buffer []byte

	// lruElement is owned by the Store and only accessed under the Store's lock
	lruElement *list.Element
}

func newEntry(path string, sourcePath string, sizeLimit int64) *Entry {
	return &Entry{
		path:       path,
		sourcePath: sourcePath,
		sizeLimit:  sizeLimit,
		state:      EntryStateEmpty,
		buffer:     nil,
	}
}

// GetVirtualPath returns the virtual path of the entry
func (entry *Entry) GetVirtualPath() string {
	return entry.path
}

// GetSourcePath returns the source path of the entry
func (entry *Entry) GetSourcePath() string {
	return entry.sourcePath
}

// Lock acquires the entry's lock
func (entry *Entry) Lock() {
	entry.mutex.Lock()
}

// Unlock releases the entry's lock
func (entry *Entry) Unlock() {
	entry.mutex.Unlock()
}

// TryLock attempts to acquire the entry's lock without blocking.
// A false return means the entry is currently in use and is a normal
// outcome for the eviction probe, not an error.
func (entry *Entry) TryLock() bool {
	return entry.mutex.TryLock()
}

// GetState returns the state of the entry. Must be called with the entry's lock held.
func (entry *Entry) GetState() EntryState {
	return entry.state
}

// GetSize returns the current content length of the entry.
// Must be called with the entry's lock held.
func (entry *Entry) GetSize() int64 {
	return int64(len(entry.buffer))
}

// BeginMaterialize resets the content length to zero and marks the entry
// materializing, so that appends start from the beginning. Already allocated
// buffer capacity is kept. Must be called with the entry's lock held.
func (entry *Entry) BeginMaterialize() {
	entry.state = EntryStateMaterializing
	entry.buffer = entry.buffer[:0]
}

// FinishMaterialize marks the end of a transcode. A nil error moves the
// entry to ready, otherwise to failed with whatever content accumulated.
// Must be called with the entry's lock held.
func (entry *Entry) FinishMaterialize(err error) {
	if err != nil {
		entry.state = EntryStateFailed
		return
	}
	entry.state = EntryStateReady
}

// Append copies the chunk to the end of the entry's buffer, growing the
// buffer geometrically as needed. Capacity only grows for the life of the
// entry. If the required size exceeds the entry's size limit, the append
// fails with ErrOutOfMemory and the length keeps its last consistent value.
// Must be called with the entry's lock held.
func (entry *Entry) Append(chunk []byte) error {
	required := int64(len(entry.buffer)) + int64(len(chunk))
	if required > entry.sizeLimit {
		return xerrors.Errorf("failed to grow buffer for %s to %d bytes (limit %d): %w", entry.path, required, entry.sizeLimit, ErrOutOfMemory)
	}

	if required > int64(cap(entry.buffer)) {
		newCapacity := int64(cap(entry.buffer)) * 2
		if newCapacity < required {
			newCapacity = required
		}
		if newCapacity > entry.sizeLimit {
			newCapacity = entry.sizeLimit
		}

		newBuffer := make([]byte, len(entry.buffer), newCapacity)
		copy(newBuffer, entry.buffer)
		entry.buffer = newBuffer
	}

	entry.buffer = append(entry.buffer, chunk...)
	return nil
}

// ReadAt copies up to len(buffer) bytes of content starting at offset.
// An offset at or past the current length reads zero bytes, which the
// caller reports as end-of-file. Must be called with the entry's lock held.
func (entry *Entry) ReadAt(buffer []byte, offset int64) int {
	if offset < 0 || offset >= int64(len(entry.buffer)) {
		return 0
	}

	return copy(buffer, entry.buffer[offset:])
}

// release frees the entry's buffer. Called by the Store during eviction
// with the entry's lock held.
func (entry *Entry) release() {
	entry.buffer = nil
	entry.state = EntryStateEmpty
}
