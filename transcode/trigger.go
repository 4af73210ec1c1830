package transcode

import (
	"github.com/gstfs/gstfs/cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Materialize lazily fills the entry's buffer by running the engine once.
// Must be called with the entry's lock held. An entry that is already ready
// is left untouched; an entry whose last transcode failed is reset and
// transcoded again. The call blocks until the engine finishes.
func Materialize(entry *cache.Entry, engine Engine, pipeline string) error {
	logger := log.WithFields(log.Fields{
		"package":  "transcode",
		"function": "Materialize",
	})

	switch entry.GetState() {
	case cache.EntryStateReady, cache.EntryStateMaterializing:
		return nil
	case cache.EntryStateFailed:
		logger.Infof("Retrying failed transcode - %s", entry.GetVirtualPath())
	}

	logger.Infof("Transcoding %s from %s", entry.GetVirtualPath(), entry.GetSourcePath())

	entry.BeginMaterialize()
	err := engine.Run(entry.GetSourcePath(), pipeline, entry.Append)
	entry.FinishMaterialize(err)

	if err != nil {
		transcodeErr := xerrors.Errorf("failed to transcode %s: %w", entry.GetSourcePath(), err)
		logger.Errorf("%+v", transcodeErr)
		return transcodeErr
	}

	logger.Infof("Transcoded %s - %d bytes", entry.GetVirtualPath(), entry.GetSize())
	return nil
}
