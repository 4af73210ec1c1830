package vpath

import (
	"os"
	"path"

	"github.com/gstfs/gstfs/utils"
	log "github.com/sirupsen/logrus"
)

// Translator maps virtual paths shown on the mount to paths in the source
// directory. A virtual path carrying the destination extension maps to the
// source file with the source extension, unless a file with the exact virtual
// name already exists in the source directory (verbatim mirror).
type Translator struct {
	sourceRoot string
	sourceExt  string
	destExt    string
}

// NewTranslator creates a new Translator
func NewTranslator(sourceRoot string, sourceExt string, destExt string) *Translator {
	return &Translator{
		sourceRoot: sourceRoot,
		sourceExt:  sourceExt,
		destExt:    destExt,
	}
}

// GetSourceRoot returns the source directory root
func (translator *Translator) GetSourceRoot() string {
	return translator.sourceRoot
}

// ResolveSourcePath returns the source path for the given virtual path.
// If a file exists at sourceRoot + vpath, that path is returned unchanged.
// Otherwise the destination extension, if present, is replaced with the
// source extension. The returned path is not guaranteed to exist.
func (translator *Translator) ResolveSourcePath(vpath string) string {
	logger := log.WithFields(log.Fields{
		"package":  "vpath",
		"struct":   "Translator",
		"function": "ResolveSourcePath",
	})

	sourcePath := path.Join(translator.sourceRoot, vpath)

	// if the file exists in the source directory, it is a verbatim mirror
	if _, err := os.Stat(sourcePath); err == nil {
		return sourcePath
	}

	resolved := utils.ReplaceExtension(sourcePath, translator.destExt, translator.sourceExt)
	logger.Debugf("Resolved virtual path %q to source path %q", vpath, resolved)
	return resolved
}

// IsCacheable returns true if the given virtual path is subject to
// transcoding and caching. A path is cacheable only if it carries the
// destination extension and its resolved source path does not. When the
// source and destination extensions coincide (pure mirroring), no path is
// cacheable and every access passes through to the source file.
func (translator *Translator) IsCacheable(vpath string) bool {
	if !utils.HasExtension(vpath, translator.destExt) {
		return false
	}

	sourcePath := translator.ResolveSourcePath(vpath)
	return !utils.HasExtension(sourcePath, translator.destExt)
}

// RewriteDirEntryName rewrites a directory entry name for presentation.
// Names carrying the source extension are shown with the destination
// extension; all other names are unchanged.
func (translator *Translator) RewriteDirEntryName(name string) string {
	return utils.ReplaceExtension(name, translator.sourceExt, translator.destExt)
}
