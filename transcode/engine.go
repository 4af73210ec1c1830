package transcode

// Engine runs an external media pipeline against a source file and delivers
// the produced output through the chunk callback. Run blocks until the
// pipeline finishes or the callback returns an error; the callback is
// invoked zero or more times before Run returns.
type Engine interface {
	Run(sourcePath string, pipeline string, onChunk func(chunk []byte) error) error
}

// EngineFunc adapts a function to the Engine interface
type EngineFunc func(sourcePath string, pipeline string, onChunk func(chunk []byte) error) error

// Run runs the function
func (engine EngineFunc) Run(sourcePath string, pipeline string, onChunk func(chunk []byte) error) error {
	return engine(sourcePath, pipeline, onChunk)
}
