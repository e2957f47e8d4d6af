package mpegts

import (
	"fmt"
	"log/slog"

	"github.com/zsiec/tsdemux/internal/avbuf"
	"github.com/zsiec/tsdemux/internal/avstream"
)

// Program is a logical collection of elementary streams discovered via a
// single PAT entry and populated as its PMT is parsed.
type Program struct {
	ID      uint16
	Streams []*avstream.ElementaryStream
}

// Option configures a Demuxer at construction time.
type Option func(*Demuxer)

// WithLogger overrides the demuxer's structured logger. A nil logger falls
// back to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(d *Demuxer) {
		if log == nil {
			log = slog.Default()
		}
		d.log = log.With("component", "mpegts")
	}
}

// WithCRCVerification toggles PSI section CRC-32 verification (on by
// default; disable to tolerate historically-unverified streams).
func WithCRCVerification(enabled bool) Option {
	return func(d *Demuxer) { d.verifyCRC = enabled }
}

// Demuxer parses a sequence of 188-byte TS packets, reassembling PSI tables
// and PES payloads and delegating elementary-stream lifecycle to cb.
type Demuxer struct {
	log       *slog.Logger
	cb        StreamCallbacks
	pids      pidTable
	programs  map[uint16]*Program
	verifyCRC bool

	skippedPackets int
}

// New creates a Demuxer that reports discovered streams through cb. Without
// WithLogger (or with a nil logger) it logs through slog.Default().
func New(cb StreamCallbacks, opts ...Option) *Demuxer {
	if cb == nil {
		panic("mpegts: nil StreamCallbacks")
	}
	d := &Demuxer{
		cb:        cb,
		programs:  make(map[uint16]*Program),
		verifyCRC: true,
		log:       slog.Default().With("component", "mpegts"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Programs returns the programs discovered so far, keyed by program number.
func (d *Demuxer) Programs() map[uint16]*Program { return d.programs }

// SkippedPackets returns the number of transport-error-flagged packets
// dropped so far.
func (d *Demuxer) SkippedPackets() int { return d.skippedPackets }

// ReadPacket feeds exactly one 188-byte TS packet to the demuxer.
func (d *Demuxer) ReadPacket(buf []byte) (Result, error) {
	hdr, payloadOffset, err := parsePacketHeader(buf)
	if err != nil {
		return ResultInvalidPacket, err
	}

	if hdr.TransportErrorIndicator {
		d.skippedPackets++
		d.log.Debug("dropping transport-error packet", "pid", hdr.PID)
		return ResultContinue, nil
	}

	if hdr.PID == pidNull || !hdr.HasPayload {
		return ResultContinue, nil
	}

	payload := buf[payloadOffset:]
	node := d.pids.get(hdr.PID)

	switch {
	case hdr.PID == pidPAT:
		return d.handlePSI(hdr.PID, d.pids.getOrCreate(hdr.PID), hdr, payload)
	case node != nil && node.kind == pidKindPSI:
		return d.handlePSI(hdr.PID, node, hdr, payload)
	case node != nil && node.kind == pidKindPES:
		return d.handlePES(node, hdr, payload)
	default:
		return ResultContinue, nil
	}
}

func (d *Demuxer) handlePSI(pid uint16, node *pidNode, hdr PacketHeader, payload []byte) (Result, error) {
	if hdr.PayloadUnitStartIndicator {
		if len(payload) < 1 {
			return ResultInvalidPacket, fmt.Errorf("mpegts: empty PSI payload: %w", ErrInvalidPacket)
		}
		pointerField := int(payload[0])
		offset := 1 + pointerField
		if offset+3 > len(payload) {
			return ResultInvalidPacket, fmt.Errorf("mpegts: PSI pointer field out of range: %w", ErrInvalidPacket)
		}

		tableID := payload[offset]
		sectionLength, err := validateSectionHeader(tableID, payload[offset+1], payload[offset+2])
		if err != nil {
			return ResultInvalidPacket, err
		}

		node.tableID = tableID
		node.section = avbuf.New(3+sectionLength, 0, nil)
		node.section.PushBytes(payload[offset : offset+3])
		payload = payload[offset+3:]
	} else if node.section == nil {
		// Continuation packet with no section in progress: nothing to do.
		return ResultContinue, nil
	}

	node.section.PushBytes(payload)
	if node.section.Available() > 0 {
		return ResultContinue, nil
	}

	data := node.section.Bytes()
	node.section = nil

	switch node.tableID {
	case tableIDPAT:
		return d.handlePAT(data)
	case tableIDPMT:
		return d.handlePMT(node, data)
	default:
		d.log.Debug("unsupported PSI table", "pid", pid, "table_id", node.tableID)
		return ResultUnsupportedTable, fmt.Errorf("mpegts: table_id 0x%02X: %w", node.tableID, ErrUnsupportedTable)
	}
}

func (d *Demuxer) handlePAT(data []byte) (Result, error) {
	entries, err := parsePATSection(data, d.verifyCRC)
	if err != nil {
		return ResultInvalidPacket, err
	}
	for _, e := range entries {
		if _, ok := d.programs[e.ProgramNumber]; !ok {
			d.programs[e.ProgramNumber] = &Program{ID: e.ProgramNumber}
			d.log.Info("program discovered", "program", e.ProgramNumber, "pmt_pid", e.ProgramMapPID)
		}
		pmtNode := d.pids.getOrCreate(e.ProgramMapPID)
		pmtNode.kind = pidKindPSI
		pmtNode.tableID = tableIDPMT
		pmtNode.programID = e.ProgramNumber
	}
	return ResultContinue, nil
}

func (d *Demuxer) handlePMT(node *pidNode, data []byte) (Result, error) {
	entries, err := parsePMTSection(data, d.verifyCRC)
	if err != nil {
		return ResultInvalidPacket, err
	}
	prog, ok := d.programs[node.programID]
	if !ok {
		return ResultInternalError, fmt.Errorf("mpegts: PMT for unknown program %d: %w", node.programID, ErrInternal)
	}

	for _, e := range entries {
		typ, ok := avstream.Supported(e.StreamType)
		if !ok {
			d.log.Debug("unsupported stream_type", "stream_type", e.StreamType, "pid", e.ElementaryPID)
			continue
		}

		esNode := d.pids.getOrCreate(e.ElementaryPID)
		if esNode.kind != pidKindPES {
			stream := d.cb.CreateStream(typ, node.programID)
			if stream == nil {
				return ResultOutOfMemory, fmt.Errorf("mpegts: CreateStream refused: %w", ErrOutOfMemory)
			}
			esNode.kind = pidKindPES
			esNode.programID = node.programID
			esNode.streamIndex = stream.Index
			prog.Streams = append(prog.Streams, stream)
			d.log.Info("stream created", "program", node.programID, "pid", e.ElementaryPID, "type", typ, "index", stream.Index)
		}
	}
	return ResultContinue, nil
}

func (d *Demuxer) handlePES(node *pidNode, hdr PacketHeader, payload []byte) (Result, error) {
	stream := d.cb.GetStream(node.programID, node.streamIndex)
	if stream == nil {
		return ResultInternalError, fmt.Errorf("mpegts: no stream for program %d index %d: %w", node.programID, node.streamIndex, ErrInternal)
	}

	if hdr.PayloadUnitStartIndicator {
		start, err := parsePESStart(payload)
		if err != nil {
			return ResultInvalidPacket, err
		}
		stream.StreamID = start.streamID
		node.hdrFlags = start.hdrFlags
		node.header = newHeaderBuffer(start.hdrLength)
		payload = start.rest
	}

	frameBegin := hdr.PayloadUnitStartIndicator

	if node.header != nil {
		if node.header.Available() > 0 {
			n := node.header.PushBytes(payload)
			payload = payload[n:]
		}
		if node.header.Available() > 0 {
			return ResultContinue, nil
		}
		if err := applyPESHeader(node, stream.UpdatePTS, stream.UpdatePTSDTS); err != nil {
			return ResultInvalidPacket, err
		}
		node.header = nil
	}

	if len(payload) == 0 {
		return ResultContinue, nil
	}

	if short := stream.AppendPayload(payload, frameBegin); short > 0 {
		replacement := d.cb.OverflowStream(node.programID, node.streamIndex, short)
		if replacement == nil {
			return ResultStreamOverflow, fmt.Errorf("mpegts: stream overflow, need %d more bytes: %w", short, ErrStreamOverflow)
		}
		node.streamIndex = replacement.Index
		if second := replacement.AppendPayload(payload, frameBegin); second > 0 {
			return ResultStreamOverflow, fmt.Errorf("mpegts: replacement stream still short %d bytes: %w", second, ErrStreamOverflow)
		}
	}

	return ResultContinue, nil
}

// Finalize notifies the host, through FinalizeStream, that every discovered
// stream has received all payload for the current segment, flushing any
// pending H.264 access unit.
func (d *Demuxer) Finalize() {
	for _, prog := range d.programs {
		for _, s := range prog.Streams {
			s.Finalize()
			d.cb.FinalizeStream(prog.ID, s.Index)
		}
	}
}
