package mpegts

import "errors"

// Sentinel errors participating in errors.Is/errors.As matching. Each layer
// wraps one of these with fmt.Errorf("mpegts: <detail>: %w", err) so callers
// can unwrap to the sentinel while log output stays component-qualified.
var (
	ErrInvalidPacket    = errors.New("invalid packet")
	ErrTruncated        = errors.New("truncated")
	ErrOutOfMemory      = errors.New("out of memory")
	ErrStreamOverflow   = errors.New("stream overflow")
	ErrUnsupportedTable = errors.New("unsupported table")
	ErrUnsupported      = errors.New("unsupported")
	ErrInternal         = errors.New("internal error")
)
