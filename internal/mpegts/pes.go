package mpegts

import (
	"fmt"

	"github.com/zsiec/tsdemux/internal/avbuf"
)

// hasOptionalHeader reports false for the PES stream_id values that never
// carry the optional PES header (ISO/IEC 13818-1 Table 2-18: padding_stream,
// private_stream_2, ECM, EMM, DSM-CC, ITU-T Rec. H.222.1 type E,
// program_stream_directory) and true for every other stream_id.
func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	default:
		return true
	}
}

const (
	ptsPrefix    = 0b0010
	ptsDTSPrefix = 0b0011
	dtsPrefix    = 0b0001
)

// parseTimestamp extracts a 33-bit PTS/DTS value from a 5-byte field,
// validating the 4-bit type prefix and the three marker bits (ISO/IEC
// 13818-1 §2.4.3.7); a mismatch is treated as a malformed PES header.
func parseTimestamp(bs []byte, wantPrefix uint8) (int64, error) {
	if len(bs) < 5 {
		return 0, fmt.Errorf("mpegts: timestamp field truncated: %w", ErrInvalidPacket)
	}
	if bs[0]>>4 != wantPrefix {
		return 0, fmt.Errorf("mpegts: timestamp prefix 0x%X, want 0x%X: %w", bs[0]>>4, wantPrefix, ErrInvalidPacket)
	}
	if bs[0]&0x01 == 0 || bs[2]&0x01 == 0 || bs[4]&0x01 == 0 {
		return 0, fmt.Errorf("mpegts: timestamp marker bit not set: %w", ErrInvalidPacket)
	}
	value := int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
	return value, nil
}

// pesStart holds the fixed-position fields parsed from the first bytes of a
// PES packet, before the (possibly cross-packet) optional header.
type pesStart struct {
	streamID  uint8
	rest      []byte
	hdrFlags  uint16 // 0 if the stream_id excludes an optional header
	hdrLength int
}

func parsePESStart(payload []byte) (pesStart, error) {
	if len(payload) < 6 {
		return pesStart{}, fmt.Errorf("mpegts: PES start too short: %w", ErrInvalidPacket)
	}
	if !(payload[0] == 0x00 && payload[1] == 0x00 && payload[2] == 0x01) {
		return pesStart{}, fmt.Errorf("mpegts: PES start code 0x%02X%02X%02X: %w", payload[0], payload[1], payload[2], ErrInvalidPacket)
	}
	streamID := payload[3]
	// payload[4:6] is the 16-bit PES packet length; not validated (may be 0
	// for unbounded video streams).
	rest := payload[6:]

	if !hasOptionalHeader(streamID) {
		return pesStart{streamID: streamID, rest: rest}, nil
	}

	if len(rest) < 3 {
		return pesStart{}, fmt.Errorf("mpegts: PES optional header flags truncated: %w", ErrInvalidPacket)
	}
	flags := uint16(rest[0])<<8 | uint16(rest[1])
	if flags&0xC000 != 0x8000 {
		return pesStart{}, fmt.Errorf("mpegts: PES header marker bits 0x%04X: %w", flags, ErrInvalidPacket)
	}
	if flags&0x3000 != 0x0000 {
		return pesStart{}, fmt.Errorf("mpegts: PES header scrambling/priority bits 0x%04X: %w", flags, ErrInvalidPacket)
	}
	hdrLen := int(rest[2])
	return pesStart{
		streamID:  streamID,
		rest:      rest[3:],
		hdrFlags:  flags,
		hdrLength: hdrLen,
	}, nil
}

// applyPESHeader interprets a fully-buffered PES optional header, updating
// the stream's PTS/DTS according to hdrFlags & 0xC0.
func applyPESHeader(node *pidNode, updatePTS func(int64), updatePTSDTS func(pts, dts int64)) error {
	data := node.header.Bytes()
	switch node.hdrFlags & 0x00C0 {
	case 0x0080:
		if len(data) < 5 {
			return fmt.Errorf("mpegts: PTS-only header too short: %w", ErrInvalidPacket)
		}
		pts, err := parseTimestamp(data[:5], ptsPrefix)
		if err != nil {
			return err
		}
		updatePTS(pts)
	case 0x00C0:
		if len(data) < 10 {
			return fmt.Errorf("mpegts: PTS+DTS header too short: %w", ErrInvalidPacket)
		}
		pts, err := parseTimestamp(data[:5], ptsDTSPrefix)
		if err != nil {
			return err
		}
		dts, err := parseTimestamp(data[5:10], dtsPrefix)
		if err != nil {
			return err
		}
		updatePTSDTS(pts, dts)
	}
	return nil
}

func newHeaderBuffer(size int) *avbuf.Buffer {
	if size <= 0 {
		return nil
	}
	return avbuf.New(size, 0, nil)
}
