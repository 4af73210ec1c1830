package vpath

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslator(t *testing.T) {
	t.Run("test ResolveSourcePath", testResolveSourcePath)
	t.Run("test ResolveSourcePathVerbatimMirror", testResolveSourcePathVerbatimMirror)
	t.Run("test IsCacheable", testIsCacheable)
	t.Run("test IsCacheableMirrorMode", testIsCacheableMirrorMode)
	t.Run("test RewriteDirEntryName", testRewriteDirEntryName)
}

func makeSourceDir(t *testing.T, names ...string) string {
	sourceDir := t.TempDir()
	for _, name := range names {
		err := os.WriteFile(path.Join(sourceDir, name), []byte("content of "+name), 0666)
		assert.NoError(t, err)
	}
	return sourceDir
}

func testResolveSourcePath(t *testing.T) {
	sourceDir := makeSourceDir(t, "track.ogg", "cover.jpg")
	translator := NewTranslator(sourceDir, "ogg", "mp3")

	// virtual .mp3 resolves to source .ogg
	assert.Equal(t, path.Join(sourceDir, "track.ogg"), translator.ResolveSourcePath("/track.mp3"))

	// non-destination extensions resolve unchanged
	assert.Equal(t, path.Join(sourceDir, "cover.jpg"), translator.ResolveSourcePath("/cover.jpg"))

	// missing files still resolve, existence surfaces later
	assert.Equal(t, path.Join(sourceDir, "missing.ogg"), translator.ResolveSourcePath("/missing.mp3"))
	assert.Equal(t, path.Join(sourceDir, "missing.txt"), translator.ResolveSourcePath("/missing.txt"))
}

func testResolveSourcePathVerbatimMirror(t *testing.T) {
	// a real .mp3 already in the source directory is mirrored, not transcoded
	sourceDir := makeSourceDir(t, "already.mp3")
	translator := NewTranslator(sourceDir, "ogg", "mp3")

	assert.Equal(t, path.Join(sourceDir, "already.mp3"), translator.ResolveSourcePath("/already.mp3"))
	assert.False(t, translator.IsCacheable("/already.mp3"))
}

func testIsCacheable(t *testing.T) {
	sourceDir := makeSourceDir(t, "track.ogg", "cover.jpg")
	translator := NewTranslator(sourceDir, "ogg", "mp3")

	assert.True(t, translator.IsCacheable("/track.mp3"))
	assert.True(t, translator.IsCacheable("/missing.mp3"))

	assert.False(t, translator.IsCacheable("/cover.jpg"))
	assert.False(t, translator.IsCacheable("/track.ogg"))
	assert.False(t, translator.IsCacheable("/noextension"))
}

func testIsCacheableMirrorMode(t *testing.T) {
	// src_ext == dst_ext means pure mirroring, nothing is ever cacheable
	sourceDir := makeSourceDir(t, "track.mp3")
	translator := NewTranslator(sourceDir, "mp3", "mp3")

	assert.False(t, translator.IsCacheable("/track.mp3"))
	assert.False(t, translator.IsCacheable("/missing.mp3"))
}

func testRewriteDirEntryName(t *testing.T) {
	sourceDir := makeSourceDir(t)
	translator := NewTranslator(sourceDir, "ogg", "mp3")

	assert.Equal(t, "track.mp3", translator.RewriteDirEntryName("track.ogg"))
	assert.Equal(t, "cover.jpg", translator.RewriteDirEntryName("cover.jpg"))
	assert.Equal(t, "subdir", translator.RewriteDirEntryName("subdir"))
}
