package main

import (
	"log/slog"

	"github.com/zsiec/tsdemux/internal/avbuf"
	"github.com/zsiec/tsdemux/internal/avstream"
)

// esKey identifies one elementary stream by the pair the demuxer callback
// bundle addresses it with.
type esKey struct {
	programID uint16
	index     uint8
}

const initialStreamBufferSize = 4 << 20

// streamRegistry implements mpegts.StreamCallbacks for a one-shot,
// whole-file demux: every discovered stream gets its own growable buffer
// (doubled on overflow rather than double-buffered against a fixed arena,
// since the CLI holds the entire input in memory already and has no
// segment-boundary ring to maintain).
type streamRegistry struct {
	log     *slog.Logger
	streams map[esKey]*avstream.ElementaryStream
	order   []esKey
}

func newStreamRegistry(log *slog.Logger) *streamRegistry {
	return &streamRegistry{
		log:     log,
		streams: make(map[esKey]*avstream.ElementaryStream),
	}
}

func (r *streamRegistry) CreateStream(typ avstream.Type, programID uint16) *avstream.ElementaryStream {
	index := uint8(avstream.VideoIndexBase)
	if typ == avstream.TypeAudioAAC {
		index = avstream.AudioIndexBase
	}
	for {
		key := esKey{programID, index}
		if _, exists := r.streams[key]; !exists {
			buf := avbuf.New(initialStreamBufferSize, 0, nil)
			es := avstream.New(typ, programID, index, buf)
			r.streams[key] = es
			r.order = append(r.order, key)
			return es
		}
		index++
	}
}

func (r *streamRegistry) GetStream(programID uint16, index uint8) *avstream.ElementaryStream {
	return r.streams[esKey{programID, index}]
}

func (r *streamRegistry) FinalizeStream(programID uint16, index uint8) {
	r.log.Info("stream finalized", "program", programID, "index", index)
}

// OverflowStream doubles the offending stream's buffer capacity, copies its
// already-written bytes across, and installs the replacement under the same
// key so subsequent GetStream calls see it.
func (r *streamRegistry) OverflowStream(programID uint16, index uint8, neededLen int) *avstream.ElementaryStream {
	key := esKey{programID, index}
	old, ok := r.streams[key]
	if !ok {
		return nil
	}
	newSize := old.Payload.Size() * 2
	for newSize-old.Payload.Size() < neededLen {
		newSize *= 2
	}
	buf := avbuf.New(newSize, 0, nil)
	buf.PushBytes(old.Payload.Bytes())
	replacement := avstream.New(old.Type, old.ProgramID, old.Index, buf)
	replacement.PTS, replacement.DTS = old.PTS, old.DTS
	r.streams[key] = replacement
	r.log.Warn("stream buffer grown after overflow", "program", programID, "index", index, "new_size", newSize)
	return replacement
}
