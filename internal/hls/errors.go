package hls

import "errors"

// Sentinel errors participating in errors.Is/errors.As matching, wrapped
// with fmt.Errorf("hls: <detail>: %w", err) at each layer boundary.
var (
	// ErrNoStream is returned when the root or every media playlist failed
	// to fetch or yielded no usable variant.
	ErrNoStream = errors.New("no stream available")
	// ErrInStream wraps an unrecoverable error surfaced by the demuxer while
	// processing a segment.
	ErrInStream = errors.New("in-stream error")
	// ErrMemory is returned when an allocation needed to progress failed.
	ErrMemory = errors.New("memory error")
	// ErrInternal marks a state reached only by a logic error in the
	// orchestrator itself (e.g. advancing from a state with no pending
	// request).
	ErrInternal = errors.New("internal error")
)
