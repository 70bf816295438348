package rag

import "errors"

var (
	// ErrExtraction marks a file that could not be parsed. Reported
	// per-file; the rest of the batch still processes.
	ErrExtraction = errors.New("document extraction failed")

	// ErrProvider marks an embedding or generation service failure.
	// Never retried by the pipeline; retry policy lives in the clients.
	ErrProvider = errors.New("model provider error")

	// ErrNotReady marks answer() called before the collection was
	// initialized or while a reset is rebuilding it. Distinct from an
	// empty collection, which is a valid state.
	ErrNotReady = errors.New("pipeline not ready")

	// ErrStore marks a document store read/write failure.
	ErrStore = errors.New("document store error")
)
