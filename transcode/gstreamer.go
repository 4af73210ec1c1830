package transcode

import (
	"bytes"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	defaultLaunchPath = "gst-launch-1.0"
	defaultChunkSize  = 64 * 1024
)

// GStreamerEngine implements Engine by running gst-launch with the user's
// pipeline description spliced between a filesrc element reading the source
// file and an fdsink element writing the transcode output to stdout.
type GStreamerEngine struct {
	// LaunchPath is the gst-launch binary to run. Empty means gst-launch-1.0.
	LaunchPath string
	// ChunkSize is the read size used when draining pipeline output.
	ChunkSize int
}

// NewGStreamerEngine creates a new GStreamerEngine with defaults
func NewGStreamerEngine() *GStreamerEngine {
	return &GStreamerEngine{
		LaunchPath: defaultLaunchPath,
		ChunkSize:  defaultChunkSize,
	}
}

func (engine *GStreamerEngine) launchPath() string {
	if engine.LaunchPath == "" {
		return defaultLaunchPath
	}
	return engine.LaunchPath
}

func (engine *GStreamerEngine) chunkSize() int {
	if engine.ChunkSize <= 0 {
		return defaultChunkSize
	}
	return engine.ChunkSize
}

// buildLaunchArgs returns the gst-launch argument list for the given source
// file and pipeline description.
func buildLaunchArgs(sourcePath string, pipeline string) []string {
	args := []string{"-q", "filesrc", "location=" + sourcePath, "!"}
	args = append(args, strings.Fields(pipeline)...)
	args = append(args, "!", "fdsink", "fd=1")
	return args
}

// Run runs the pipeline and streams stdout to onChunk. An error from
// onChunk aborts the pipeline and is returned as-is, so the caller can
// distinguish its own delivery failure from a pipeline failure.
func (engine *GStreamerEngine) Run(sourcePath string, pipeline string, onChunk func(chunk []byte) error) error {
	logger := log.WithFields(log.Fields{
		"package":  "transcode",
		"struct":   "GStreamerEngine",
		"function": "Run",
		"run_id":   xid.New().String(),
	})

	args := buildLaunchArgs(sourcePath, pipeline)
	logger.Debugf("Starting pipeline - %s %s", engine.launchPath(), strings.Join(args, " "))

	cmd := exec.Command(engine.launchPath(), args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return xerrors.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	err = cmd.Start()
	if err != nil {
		return xerrors.Errorf("failed to start %s: %w", engine.launchPath(), err)
	}

	total := int64(0)
	chunk := make([]byte, engine.chunkSize())
	for {
		readLen, readErr := stdout.Read(chunk)
		if readLen > 0 {
			chunkErr := onChunk(chunk[:readLen])
			if chunkErr != nil {
				logger.WithError(chunkErr).Errorf("failed to deliver %d transcoded bytes - killing pipeline", readLen)
				cmd.Process.Kill()
				cmd.Wait()
				return chunkErr
			}
			total += int64(readLen)
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			cmd.Process.Kill()
			cmd.Wait()
			return xerrors.Errorf("failed to read pipeline output for %s: %w", sourcePath, readErr)
		}
	}

	err = cmd.Wait()
	if err != nil {
		return xerrors.Errorf("pipeline failed for %s (%s): %w", sourcePath, strings.TrimSpace(stderr.String()), err)
	}

	logger.Debugf("Pipeline finished - %s, %d bytes", sourcePath, total)
	return nil
}
