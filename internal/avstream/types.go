// Package avstream models the elementary streams a demuxer produces: an
// ordered list of access units carved out of a payload buffer supplied by
// the host application, plus the incremental H.264 access-unit scanner that
// carves that buffer as PES payload is appended.
package avstream

import "github.com/zsiec/tsdemux/internal/avbuf"

// Type identifies the coding format of an elementary stream, using the
// stream_type values from ISO/IEC 13818-1 Table 2-34 that this system
// supports.
type Type uint8

const (
	TypeAudioAAC  Type = 0x0F
	TypeVideoH264 Type = 0x1B
)

// String implements fmt.Stringer for log output.
func (t Type) String() string {
	switch t {
	case TypeAudioAAC:
		return "aac"
	case TypeVideoH264:
		return "h264"
	default:
		return "unknown"
	}
}

// Supported reports whether stream_type is one this system demultiplexes.
func Supported(streamType uint8) (Type, bool) {
	switch Type(streamType) {
	case TypeAudioAAC, TypeVideoH264:
		return Type(streamType), true
	default:
		return 0, false
	}
}

// Video elementary stream indices occupy 1..0x7F, audio 0x80..0xFF, so a
// caller routing by stream index alone can distinguish the two families.
const (
	VideoIndexBase = 0x01
	VideoIndexMax  = 0x7F
	AudioIndexBase = 0x80
	AudioIndexMax  = 0xFF
)

// AccessUnit is a byte range within an ElementaryStream's payload buffer,
// tagged with the presentation/decode timestamps in force when the boundary
// scanner closed it. Data aliases the owning stream's payload buffer; it is
// valid only as long as that buffer remains mapped.
type AccessUnit struct {
	Data []byte
	PTS  int64
	DTS  int64
}

// ElementaryStream is the central output entity of demultiplexing: a
// program-scoped, PES-fed byte stream with lazily discovered access-unit
// boundaries for H.264 video.
type ElementaryStream struct {
	Type      Type
	ProgramID uint16
	Index     uint8
	StreamID  uint8

	PTS, DTS int64

	Payload     *avbuf.Buffer
	AccessUnits []AccessUnit

	h264 h264Scanner
}

// New creates an ElementaryStream backed by payload, which the caller has
// already sized (typically a sub-buffer carved from a host-supplied
// video/audio arena; see the ES buffer policy in package hls).
func New(typ Type, programID uint16, index uint8, payload *avbuf.Buffer) *ElementaryStream {
	return &ElementaryStream{
		Type:      typ,
		ProgramID: programID,
		Index:     index,
		Payload:   payload,
		h264:      newH264Scanner(),
	}
}

// UpdatePTS records a PTS-only PES timestamp; DTS tracks PTS in the absence
// of an explicit decode timestamp, matching PES semantics.
func (es *ElementaryStream) UpdatePTS(pts int64) {
	es.PTS = pts
	es.DTS = pts
}

// UpdatePTSDTS records an explicit presentation and decode timestamp pair.
func (es *ElementaryStream) UpdatePTSDTS(pts, dts int64) {
	es.PTS = pts
	es.DTS = dts
}

// AppendPayload writes src into the stream's payload buffer, driving the
// H.264 access-unit scanner incrementally when Type is TypeVideoH264. It is
// all-or-nothing: if src doesn't fit in the buffer's writable space, nothing
// is pushed and nothing is scanned, and the shortfall (len(src) minus the
// available room) is returned so the caller (the PES reassembler) can invoke
// the host's OverflowStream callback and retry the whole of src against a
// replacement stream.
func (es *ElementaryStream) AppendPayload(src []byte, frameBegin bool) (short int) {
	if len(src) > es.Payload.Available() {
		return len(src) - es.Payload.Available()
	}
	if len(src) == 0 {
		return 0
	}
	es.Payload.PushBytes(src)
	if es.Type == TypeVideoH264 {
		es.h264.scan(es)
	}
	return 0
}

// Finalize flushes any access unit still open in the H.264 scanner, closing
// it at the current end of the written payload. Called when the demuxer
// completes a segment read (the host's FinalizeStream notification).
func (es *ElementaryStream) Finalize() {
	if es.Type == TypeVideoH264 {
		es.h264.flush(es)
	}
}

func (es *ElementaryStream) closeAccessUnit(start, end int) {
	if end <= start {
		return
	}
	data := es.Payload.Bytes()
	es.AccessUnits = append(es.AccessUnits, AccessUnit{
		Data: data[start:end],
		PTS:  es.PTS,
		DTS:  es.DTS,
	})
}
