package vfs

import (
	"os"
	"path"
	"sort"
	"sync"
	"testing"

	"github.com/gstfs/gstfs/config"
	"github.com/gstfs/gstfs/transcode"
	"github.com/stretchr/testify/assert"
	"golang.org/x/xerrors"
)

func TestFileSystem(t *testing.T) {
	t.Run("test PassthroughRead", testPassthroughRead)
	t.Run("test TranscodedOpenRead", testTranscodedOpenRead)
	t.Run("test ReadPastEnd", testReadPastEnd)
	t.Run("test GetattrSizeOverride", testGetattrSizeOverride)
	t.Run("test GetattrNotFound", testGetattrNotFound)
	t.Run("test Readdir", testReaddir)
	t.Run("test EvictionScenario", testEvictionScenario)
	t.Run("test MirrorMode", testMirrorMode)
	t.Run("test ConcurrentReads", testConcurrentReads)
	t.Run("test FailedTranscodeRetry", testFailedTranscodeRetry)
	t.Run("test StatfsAccess", testStatfsAccess)
}

// echoEngine produces "transcoded:" followed by the source file content,
// delivered in small chunks.
func echoEngine() transcode.Engine {
	return transcode.EngineFunc(func(sourcePath string, pipeline string, onChunk func(chunk []byte) error) error {
		content, err := os.ReadFile(sourcePath)
		if err != nil {
			return err
		}

		output := append([]byte("transcoded:"), content...)
		for len(output) > 0 {
			chunkLen := 5
			if chunkLen > len(output) {
				chunkLen = len(output)
			}
			if err := onChunk(output[:chunkLen]); err != nil {
				return err
			}
			output = output[chunkLen:]
		}
		return nil
	})
}

func makeFileSystemExt(t *testing.T, engine transcode.Engine, sourceExt string, destExt string, maxCacheEntries int, names ...string) *FileSystem {
	sourceDir := t.TempDir()
	for _, name := range names {
		err := os.WriteFile(path.Join(sourceDir, name), []byte("content of "+name), 0666)
		assert.NoError(t, err)
	}

	mountConfig := config.NewDefaultConfig()
	mountConfig.SourceDir = sourceDir
	mountConfig.SourceExt = sourceExt
	mountConfig.DestExt = destExt
	mountConfig.Pipeline = "decodebin ! fakeenc"
	mountConfig.MaxCacheEntries = maxCacheEntries

	filesystem, err := NewFileSystem(mountConfig, engine)
	assert.NoError(t, err)
	t.Cleanup(filesystem.Release)

	return filesystem
}

func makeFileSystem(t *testing.T, engine transcode.Engine, maxCacheEntries int, names ...string) *FileSystem {
	return makeFileSystemExt(t, engine, "ogg", "mp3", maxCacheEntries, names...)
}

func readAll(t *testing.T, filesystem *FileSystem, virtualPath string) []byte {
	content := []byte{}
	buffer := make([]byte, 7) // odd size to exercise offset handling
	offset := int64(0)
	for {
		readLen, err := filesystem.Read(virtualPath, buffer, offset)
		assert.NoError(t, err)
		if readLen == 0 {
			break
		}
		content = append(content, buffer[:readLen]...)
		offset += int64(readLen)
	}
	return content
}

func testPassthroughRead(t *testing.T) {
	filesystem := makeFileSystem(t, echoEngine(), 10, "cover.jpg", "track.ogg")

	// non-destination extension, served unchanged from the source file
	assert.NoError(t, filesystem.Open("/cover.jpg"))
	assert.Equal(t, []byte("content of cover.jpg"), readAll(t, filesystem, "/cover.jpg"))

	// the cache stays empty
	assert.Equal(t, 0, filesystem.GetStore().GetEntryCount())
}

func testTranscodedOpenRead(t *testing.T) {
	filesystem := makeFileSystem(t, echoEngine(), 10, "track.ogg")

	assert.NoError(t, filesystem.Open("/track.mp3"))
	assert.Equal(t, []byte("transcoded:content of track.ogg"), readAll(t, filesystem, "/track.mp3"))
	assert.Equal(t, 1, filesystem.GetStore().GetEntryCount())
}

func testReadPastEnd(t *testing.T) {
	filesystem := makeFileSystem(t, echoEngine(), 10, "track.ogg")
	assert.NoError(t, filesystem.Open("/track.mp3"))

	attr, err := filesystem.Getattr("/track.mp3")
	assert.NoError(t, err)

	buffer := make([]byte, 1024)
	readLen, err := filesystem.Read("/track.mp3", buffer, attr.Size)
	assert.NoError(t, err)
	assert.Equal(t, 0, readLen)

	readLen, err = filesystem.Read("/track.mp3", buffer, attr.Size+1000)
	assert.NoError(t, err)
	assert.Equal(t, 0, readLen)
}

func testGetattrSizeOverride(t *testing.T) {
	filesystem := makeFileSystem(t, echoEngine(), 10, "track.ogg", "cover.jpg")

	sourceSize := int64(len("content of track.ogg"))

	// before materialization the source size is reported, never zero
	attr, err := filesystem.Getattr("/track.mp3")
	assert.NoError(t, err)
	assert.Equal(t, sourceSize, attr.Size)
	assert.NotZero(t, attr.Size)

	// after open the materialized size is reported
	assert.NoError(t, filesystem.Open("/track.mp3"))
	attr, err = filesystem.Getattr("/track.mp3")
	assert.NoError(t, err)
	assert.Equal(t, int64(len("transcoded:content of track.ogg")), attr.Size)

	// passthrough paths always report the source size
	attr, err = filesystem.Getattr("/cover.jpg")
	assert.NoError(t, err)
	assert.Equal(t, int64(len("content of cover.jpg")), attr.Size)
}

func testGetattrNotFound(t *testing.T) {
	filesystem := makeFileSystem(t, echoEngine(), 10)

	_, err := filesystem.Getattr("/missing.mp3")
	assert.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func testReaddir(t *testing.T) {
	filesystem := makeFileSystem(t, echoEngine(), 10, "track.ogg", "cover.jpg", "other.mp3")

	names := []string{}
	err := filesystem.Readdir("/", func(name string, isDir bool) {
		names = append(names, name)
	})
	assert.NoError(t, err)

	sort.Strings(names)
	assert.Equal(t, []string{"cover.jpg", "other.mp3", "track.mp3"}, names)

	err = filesystem.Readdir("/missing", func(name string, isDir bool) {})
	assert.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func testEvictionScenario(t *testing.T) {
	filesystem := makeFileSystem(t, echoEngine(), 2, "a.ogg", "b.ogg", "c.ogg")

	expected := map[string]string{
		"/a.mp3": "transcoded:content of a.ogg",
		"/b.mp3": "transcoded:content of b.ogg",
		"/c.mp3": "transcoded:content of c.ogg",
	}

	// open and read each file to completion before the next open
	for _, name := range []string{"/a.mp3", "/b.mp3", "/c.mp3"} {
		assert.NoError(t, filesystem.Open(name))
		assert.Equal(t, []byte(expected[name]), readAll(t, filesystem, name))
	}

	store := filesystem.GetStore()
	assert.Equal(t, 2, store.GetEntryCount())
	assert.False(t, store.HasEntry("/a.mp3"))
	assert.True(t, store.HasEntry("/b.mp3"))
	assert.True(t, store.HasEntry("/c.mp3"))
}

func testMirrorMode(t *testing.T) {
	// src_ext == dst_ext means pure mirroring, every access passes through
	filesystem := makeFileSystemExt(t, echoEngine(), "mp3", "mp3", 10, "track.mp3")

	assert.NoError(t, filesystem.Open("/track.mp3"))
	assert.Equal(t, []byte("content of track.mp3"), readAll(t, filesystem, "/track.mp3"))
	assert.Equal(t, 0, filesystem.GetStore().GetEntryCount())
}

func testConcurrentReads(t *testing.T) {
	filesystem := makeFileSystem(t, echoEngine(), 10, "track.ogg")
	expected := []byte("transcoded:content of track.ogg")

	waitGroup := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()

			// opens race to materialize; only one transcode runs
			assert.NoError(t, filesystem.Open("/track.mp3"))

			buffer := make([]byte, len(expected))
			readLen, err := filesystem.Read("/track.mp3", buffer, 0)
			assert.NoError(t, err)
			assert.Equal(t, len(expected), readLen)
			assert.Equal(t, expected, buffer)
		}()
	}
	waitGroup.Wait()

	assert.Equal(t, 1, filesystem.GetStore().GetEntryCount())
}

func testFailedTranscodeRetry(t *testing.T) {
	runs := 0
	engine := transcode.EngineFunc(func(sourcePath string, pipeline string, onChunk func(chunk []byte) error) error {
		runs++
		if runs == 1 {
			if err := onChunk([]byte("trunc")); err != nil {
				return err
			}
			return xerrors.New("pipeline died")
		}
		return onChunk([]byte("full output"))
	})

	filesystem := makeFileSystem(t, engine, 10, "track.ogg")

	// the first open reports success despite the engine failure
	assert.NoError(t, filesystem.Open("/track.mp3"))

	// the partial content is served as-is
	assert.Equal(t, []byte("trunc"), readAll(t, filesystem, "/track.mp3"))

	// the next open re-triggers the transcode
	assert.NoError(t, filesystem.Open("/track.mp3"))
	assert.Equal(t, 2, runs)
	assert.Equal(t, []byte("full output"), readAll(t, filesystem, "/track.mp3"))
}

func testStatfsAccess(t *testing.T) {
	filesystem := makeFileSystem(t, echoEngine(), 10, "track.ogg")

	statfs, err := filesystem.Statfs("/")
	assert.NoError(t, err)
	assert.NotZero(t, statfs.Blocks)

	// R_OK on an existing source file
	assert.NoError(t, filesystem.Access("/track.mp3", 4))

	err = filesystem.Access("/missing.jpg", 4)
	assert.Error(t, err)
}
