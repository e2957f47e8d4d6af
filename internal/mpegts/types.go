// Package mpegts implements the MPEG-2 Transport Stream demultiplexer core:
// 188-byte packet framing, PAT/PMT reassembly, and PES reassembly with
// PTS/DTS extraction. Elementary-stream lifecycle (allocation, lookup,
// finalization, overflow recovery) is delegated to a host-supplied
// StreamCallbacks implementation, matching the trait/interface indirection
// the demuxer was designed around.
package mpegts

import "github.com/zsiec/tsdemux/internal/avstream"

// Result classifies the outcome of feeding one packet to the demuxer.
type Result int

const (
	ResultContinue Result = iota
	ResultComplete
	ResultTruncated
	ResultInvalidPacket
	ResultIOError
	ResultOutOfMemory
	ResultStreamOverflow
	ResultUnsupportedTable
	ResultUnsupported
	ResultInternalError
)

func (r Result) String() string {
	switch r {
	case ResultContinue:
		return "continue"
	case ResultComplete:
		return "complete"
	case ResultTruncated:
		return "truncated"
	case ResultInvalidPacket:
		return "invalid_packet"
	case ResultIOError:
		return "io_error"
	case ResultOutOfMemory:
		return "out_of_memory"
	case ResultStreamOverflow:
		return "stream_overflow"
	case ResultUnsupportedTable:
		return "unsupported_table"
	case ResultUnsupported:
		return "unsupported"
	case ResultInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// PacketHeader carries the parsed fixed-header fields of one TS packet, plus
// the optionally-decoded program clock reference from its adaptation field.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	PCR                       *int64 // 27 MHz-scaled PCR value, nil if not present
}

// StreamCallbacks is the host-supplied bundle used to materialize, look up,
// finalize, and re-home ElementaryStreams. This indirection lets the HLS
// orchestrator implement the double-buffered ES policy in package hls
// without the demuxer knowing anything about ring buffers.
type StreamCallbacks interface {
	// CreateStream allocates a new output stream for a PMT-discovered
	// elementary stream of the given type within programID.
	CreateStream(typ avstream.Type, programID uint16) *avstream.ElementaryStream
	// GetStream looks up a previously created stream by its demuxer-assigned
	// index within programID.
	GetStream(programID uint16, index uint8) *avstream.ElementaryStream
	// FinalizeStream notifies the host that a segment's worth of payload has
	// been delivered to the stream at index within programID.
	FinalizeStream(programID uint16, index uint8)
	// OverflowStream is invoked when a stream's payload buffer has no room
	// for neededLen additional bytes. Returning a non-nil replacement causes
	// the reassembler to retry the append against it; returning nil surfaces
	// ResultStreamOverflow.
	OverflowStream(programID uint16, index uint8, neededLen int) *avstream.ElementaryStream
}
