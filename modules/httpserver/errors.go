package httpserver

import (
	"errors"
)

// Error definitions
var (
	// ErrServerNotStarted is returned when stopping a server that is not running.
	ErrServerNotStarted = errors.New("server not started")

	// ErrServerAlreadyStarted is returned when starting a running server.
	ErrServerAlreadyStarted = errors.New("server already started")

	// ErrNoPipeline is returned when a server is built without a pipeline.
	ErrNoPipeline = errors.New("no request pipeline configured")

	// ErrStreamingUnsupported is returned when the response writer cannot flush.
	ErrStreamingUnsupported = errors.New("response writer does not support flushing")
)
