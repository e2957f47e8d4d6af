package mpegts

import (
	"fmt"

	"github.com/zsiec/tsdemux/internal/avbuf"
)

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// PATEntry is one program->PMT-PID mapping parsed from a PAT section.
type PATEntry struct {
	ProgramNumber uint16
	ProgramMapPID uint16
}

// PMTEntry is one elementary-stream descriptor parsed from a PMT section.
type PMTEntry struct {
	StreamType    uint8
	ElementaryPID uint16
}

// parsePATSection walks a complete PAT section (table_id through the
// trailing CRC32, inclusive) with a read cursor rather than raw index
// arithmetic, mirroring how the rest of this package consumes buffers.
// Entries with program_number 0 (the NIT PID) are skipped.
func parsePATSection(data []byte, verifyCRC bool) ([]PATEntry, error) {
	if verifyCRC {
		if err := verifyCRC32(data); err != nil {
			return nil, fmt.Errorf("mpegts: PAT %w", err)
		}
	}

	buf := avbuf.Wrap(data)
	buf.Skip(3) // table_id + section header, already validated by the caller
	buf.Skip(2) // transport_stream_id

	syntax := buf.PullByte()
	if syntax&0xC0 != 0xC0 {
		return nil, fmt.Errorf("mpegts: PAT reserved bits 0x%02X: %w", syntax, ErrInvalidPacket)
	}
	buf.Skip(2) // section_number, last_section_number

	var entries []PATEntry
	for buf.Size() > 4 { // 4 trailing CRC32 bytes
		programNumber := buf.PullUint16BE()
		pmtPID := buf.PullUint16BE() & 0x1FFF
		if programNumber != 0 {
			entries = append(entries, PATEntry{ProgramNumber: programNumber, ProgramMapPID: pmtPID})
		}
	}
	if buf.Overflow() {
		return nil, fmt.Errorf("mpegts: PAT section truncated: %w", ErrInvalidPacket)
	}
	return entries, nil
}

// parsePMTSection walks a complete PMT section, returning every elementary
// stream entry regardless of whether its stream_type is one this system
// supports; the caller filters via avstream.Supported.
func parsePMTSection(data []byte, verifyCRC bool) ([]PMTEntry, error) {
	if verifyCRC {
		if err := verifyCRC32(data); err != nil {
			return nil, fmt.Errorf("mpegts: PMT %w", err)
		}
	}

	buf := avbuf.Wrap(data)
	buf.Skip(3) // table_id + section header
	buf.Skip(2) // program_number

	syntax := buf.PullByte()
	if syntax&0xC0 != 0xC0 {
		return nil, fmt.Errorf("mpegts: PMT reserved bits 0x%02X: %w", syntax, ErrInvalidPacket)
	}
	buf.Skip(2) // section_number, last_section_number

	pcrPID := buf.PullUint16BE()
	if pcrPID&0xE000 != 0xE000 {
		return nil, fmt.Errorf("mpegts: PMT PCR PID reserved bits 0x%04X: %w", pcrPID, ErrInvalidPacket)
	}
	programInfoLength := int(buf.PullUint16BE() & 0x03FF)
	buf.Skip(programInfoLength)

	var entries []PMTEntry
	for buf.Size() > 4 { // 4 trailing CRC32 bytes
		streamType := buf.PullByte()
		elementaryPID := buf.PullUint16BE() & 0x1FFF
		esInfoLength := int(buf.PullUint16BE() & 0x03FF)
		buf.Skip(esInfoLength)
		entries = append(entries, PMTEntry{StreamType: streamType, ElementaryPID: elementaryPID})
	}
	if buf.Overflow() {
		return nil, fmt.Errorf("mpegts: PMT section truncated: %w", ErrInvalidPacket)
	}
	return entries, nil
}

// validateSectionHeader checks the fixed bits of a PSI section header: the
// two reserved bits immediately above section_length must both be set. It
// returns the 10-bit section_length carried in the low bits of the 16-bit
// header word (table_id's following two bytes).
func validateSectionHeader(tableID, b1, b2 byte) (sectionLength int, err error) {
	if b1&0x30 != 0x30 {
		return 0, fmt.Errorf("mpegts: PSI reserved bits 0x%02X: %w", b1, ErrInvalidPacket)
	}
	return int(b1&0x03)<<8 | int(b2), nil
}
