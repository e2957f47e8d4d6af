// Package hls implements the cooperative HLS playback orchestrator: it
// drives a StreamInput capability through a master-playlist → media-playlist
// → segment fetch/demux state machine, feeding downloaded segments to an
// mpegts.Demuxer and double-buffering the resulting elementary streams.
package hls

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/zsiec/tsdemux/internal/avbuf"
	"github.com/zsiec/tsdemux/internal/avstream"
	"github.com/zsiec/tsdemux/internal/hlsplaylist"
	"github.com/zsiec/tsdemux/internal/mpegts"
)

type state int

const (
	stateOpenRootList state = iota
	stateReadRootList
	stateOpenMediaList
	stateReadMediaList
	stateDownloadSegment
	stateOpenSegment
	stateReadSegment
	stateNoStreamError
	stateInStreamError
	stateMemoryError
	stateInternalError
)

func (s state) String() string {
	switch s {
	case stateOpenRootList:
		return "open_root_list"
	case stateReadRootList:
		return "read_root_list"
	case stateOpenMediaList:
		return "open_media_list"
	case stateReadMediaList:
		return "read_media_list"
	case stateDownloadSegment:
		return "download_segment"
	case stateOpenSegment:
		return "open_segment"
	case stateReadSegment:
		return "read_segment"
	case stateNoStreamError:
		return "no_stream_error"
	case stateInStreamError:
		return "in_stream_error"
	case stateMemoryError:
		return "memory_error"
	case stateInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// variant tracks one master-playlist entry's derived media playlist and
// whether it fetched successfully.
type variant struct {
	info      hlsplaylist.StreamInfo
	playlist  hlsplaylist.MediaPlaylist
	available bool
}

// Option configures a Stream at construction time.
type Option func(*Stream)

// WithLogger overrides the orchestrator's structured logger. A nil logger
// falls back to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Stream) {
		if log == nil {
			log = slog.Default()
		}
		s.log = log.With("component", "hls")
	}
}

// WithCRCVerification is forwarded to the underlying demuxer.
func WithCRCVerification(enabled bool) Option {
	return func(s *Stream) { s.crcVerify = enabled }
}

// Stream is a single-threaded cooperative state machine: each call to
// Update either advances an outstanding I/O request, consumes a completed
// response, or feeds bytes into the demuxer. It never blocks and spawns no
// goroutines, matching the single-threaded discipline of the packages it
// composes.
type Stream struct {
	log   *slog.Logger
	input StreamInput

	state     state
	reqHandle RequestHandle
	resHandle ResourceHandle
	inputBuf  []byte
	crcVerify bool

	master  hlsplaylist.MasterPlaylist
	masterParser hlsplaylist.MasterParser
	variants []variant

	toParseIdx int
	toPlayIdx  int
	rootURL    string

	segmentIndex int

	videoBuf *avbuf.Buffer
	audioBuf *avbuf.Buffer
	demux    *mpegts.Demuxer

	audioESIndex uint8
	videoESIndex uint8
	bufferCount  int

	audioStreams []*avstream.ElementaryStream
	videoStreams []*avstream.ElementaryStream

	audioPos StreamPosition
	videoPos StreamPosition

	lastErr error
}

// New constructs a Stream that will begin fetching url once Update is
// called. videoBuf and audioBuf are owned by the Stream for its lifetime and
// sub-let to at most two ElementaryStreams each (§5's shared-resource
// policy). A nil input, or a nil/zero-sized buffer, is a programmer error
// and panics rather than surfacing at the first Update call.
func New(input StreamInput, videoBuf, audioBuf *avbuf.Buffer, url string, opts ...Option) *Stream {
	if input == nil {
		panic("hls: nil StreamInput")
	}
	if videoBuf == nil || audioBuf == nil {
		panic("hls: nil video/audio buffer")
	}
	if videoBuf.Available() == 0 || audioBuf.Available() == 0 {
		panic("hls: zero-sized video/audio buffer")
	}

	s := &Stream{
		log:         slog.Default().With("component", "hls"),
		input:       input,
		state:       stateOpenRootList,
		rootURL:     deriveRootURL(url),
		videoBuf:    videoBuf,
		audioBuf:    audioBuf,
		bufferCount: 2,
		crcVerify:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.demux = mpegts.New(s, mpegts.WithLogger(s.log), mpegts.WithCRCVerification(s.crcVerify))
	s.resetStreams()
	s.reqHandle = input.Open(url)
	return s
}

// deriveRootURL strips a trailing filename from url, yielding the directory
// prefix that relative sub-URIs are resolved against: if the URL contains a
// "." after its last "/", everything after that "/" is dropped.
func deriveRootURL(url string) string {
	slash := strings.LastIndexByte(url, '/')
	if slash < 0 {
		return url
	}
	if strings.IndexByte(url[slash:], '.') >= 0 {
		return url[:slash+1]
	}
	return url
}

// resolveURI joins a playlist-relative URI against the root URL, unless it
// is already absolute.
func (s *Stream) resolveURI(uri string) string {
	if strings.HasPrefix(uri, "http:") || strings.HasPrefix(uri, "https:") {
		return uri
	}
	return s.rootURL + uri
}

func (s *Stream) resetStreams() {
	s.audioPos.Reset(s.bufferCount)
	s.videoPos.Reset(s.bufferCount)
	s.audioESIndex = 0
	s.videoESIndex = 0
	s.audioStreams = make([]*avstream.ElementaryStream, s.bufferCount)
	s.videoStreams = make([]*avstream.ElementaryStream, s.bufferCount)
	s.segmentIndex = 0
}

// State reports the orchestrator's current state, mainly for diagnostics.
func (s *Stream) State() string { return s.state.String() }

// Err returns the error that drove the orchestrator into a terminal error
// state, or nil if it is still running or finished cleanly.
func (s *Stream) Err() error { return s.lastErr }

// Done reports whether the orchestrator has reached a terminal error state
// or has drained every segment of the selected media playlist.
func (s *Stream) Done() bool {
	switch s.state {
	case stateNoStreamError, stateInStreamError, stateMemoryError, stateInternalError:
		return true
	case stateDownloadSegment:
		return s.toPlayIdx < len(s.variants) &&
			s.segmentIndex >= len(s.variants[s.toPlayIdx].playlist.Segments) &&
			!s.videoPos.HasReadSpace() && !s.audioPos.HasReadSpace()
	default:
		return false
	}
}

// Update advances the state machine by one step. It never blocks.
func (s *Stream) Update() {
	switch s.state {
	case stateOpenRootList, stateOpenMediaList, stateOpenSegment:
		s.updateOpen()
	case stateReadRootList:
		s.updateReadRootList()
	case stateReadMediaList:
		s.updateReadMediaList()
	case stateDownloadSegment:
		s.updateDownloadSegment()
	case stateReadSegment:
		s.updateReadSegment()
	default:
		// terminal error state: nothing to do.
	}
}

// updateOpen handles the three states that are waiting on an open+size+read
// sequence to complete: root playlist, one media playlist, or one segment.
func (s *Stream) updateOpen() {
	result, res := s.input.Poll(s.reqHandle)
	switch result {
	case PollComplete:
		s.resHandle = res
		size := s.input.Size(res)
		if size <= 0 {
			s.fail(stateNoStreamError, fmt.Errorf("hls: empty resource: %w", ErrNoStream))
			return
		}
		s.inputBuf = make([]byte, size)
		s.reqHandle = s.input.Read(res, s.inputBuf)
		switch s.state {
		case stateOpenRootList:
			s.state = stateReadRootList
		case stateOpenMediaList:
			s.state = stateReadMediaList
		case stateOpenSegment:
			s.state = stateReadSegment
		}
	case PollError, PollInvalid:
		s.handleOpenFailure()
	case PollPending:
		// nothing to do yet.
	}
}

// handleOpenFailure routes an open-request failure: the root playlist is
// fatal, a media-playlist open failure is skipped in favor of the next
// variant, and a segment open failure is treated as transient and retried.
func (s *Stream) handleOpenFailure() {
	switch s.state {
	case stateOpenRootList:
		s.fail(stateNoStreamError, fmt.Errorf("hls: opening root playlist: %w", ErrNoStream))
	case stateOpenMediaList:
		s.log.Warn("media playlist open failed, skipping variant", "index", s.toParseIdx)
		s.variants[s.toParseIdx].available = false
		s.advanceMediaListParse()
	case stateOpenSegment:
		s.log.Warn("segment open failed, retrying", "index", s.segmentIndex)
		s.state = stateDownloadSegment
	}
}

func (s *Stream) updateReadRootList() {
	result, _ := s.input.Poll(s.reqHandle)
	switch result {
	case PollComplete:
		s.parseMasterPlaylist()
		if len(s.master.Streams) == 0 {
			s.fail(stateNoStreamError, fmt.Errorf("hls: master playlist has no variants: %w", ErrNoStream))
			return
		}
		s.variants = make([]variant, len(s.master.Streams))
		for i, v := range s.master.Streams {
			s.variants[i].info = v
		}
		s.toParseIdx = 0
		s.openMediaList(s.toParseIdx)
	case PollError, PollInvalid:
		s.fail(stateNoStreamError, fmt.Errorf("hls: reading root playlist: %w", ErrNoStream))
	case PollPending:
	}
}

func (s *Stream) parseMasterPlaylist() {
	for _, line := range strings.Split(string(s.inputBuf), "\n") {
		// MasterParser.Feed only returns an error for a non-numeric
		// #EXT-X-VERSION value; that error is ignored here, leaving the
		// version unset and the rest of the playlist parsed as usual.
		_ = s.masterParser.Feed(&s.master, line)
	}
}

func (s *Stream) openMediaList(idx int) {
	url := s.resolveURI(s.variants[idx].info.URI)
	s.reqHandle = s.input.Open(url)
	s.state = stateOpenMediaList
}

// advanceMediaListParse moves to the next unparsed variant, or — once every
// variant has been attempted — selects the first available one for
// playback and begins segment downloading.
func (s *Stream) advanceMediaListParse() {
	s.toParseIdx++
	if s.toParseIdx < len(s.variants) {
		s.openMediaList(s.toParseIdx)
		return
	}
	for i := range s.variants {
		if s.variants[i].available {
			s.toPlayIdx = i
			s.resetStreams()
			s.state = stateDownloadSegment
			return
		}
	}
	s.fail(stateNoStreamError, fmt.Errorf("hls: no media playlist fetched successfully: %w", ErrNoStream))
}

func (s *Stream) updateReadMediaList() {
	result, _ := s.input.Poll(s.reqHandle)
	switch result {
	case PollComplete:
		var parser hlsplaylist.MediaParser
		v := &s.variants[s.toParseIdx]
		for _, line := range strings.Split(string(s.inputBuf), "\n") {
			if err := parser.Feed(&v.playlist, line); err != nil {
				s.log.Warn("media playlist parse error, skipping variant", "index", s.toParseIdx, "error", err)
				v.available = false
				s.advanceMediaListParse()
				return
			}
		}
		v.available = true
		s.advanceMediaListParse()
	case PollError, PollInvalid:
		s.log.Warn("media playlist read failed, skipping variant", "index", s.toParseIdx)
		s.variants[s.toParseIdx].available = false
		s.advanceMediaListParse()
	case PollPending:
	}
}

func (s *Stream) updateDownloadSegment() {
	playlist := &s.variants[s.toPlayIdx].playlist
	if s.segmentIndex >= len(playlist.Segments) {
		return
	}
	if !s.videoPos.HasWriteSpace() || !s.audioPos.HasWriteSpace() {
		return
	}
	seg := playlist.Segments[s.segmentIndex]
	url := s.resolveURI(seg.URI)
	s.reqHandle = s.input.Open(url)
	s.state = stateOpenSegment
}

func (s *Stream) updateReadSegment() {
	result, _ := s.input.Poll(s.reqHandle)
	switch result {
	case PollComplete:
		if err := s.demuxSegment(); err != nil {
			s.fail(stateInStreamError, fmt.Errorf("hls: demuxing segment %d: %w", s.segmentIndex, err))
			return
		}
		s.segmentIndex++
		s.state = stateDownloadSegment
	case PollError, PollInvalid:
		s.log.Warn("segment read failed, retrying", "index", s.segmentIndex)
		s.state = stateDownloadSegment
	case PollPending:
	}
}

const tsPacketSize = 188

func (s *Stream) demuxSegment() error {
	buf := s.inputBuf
	for len(buf) >= tsPacketSize {
		if _, err := s.demux.ReadPacket(buf[:tsPacketSize]); err != nil {
			return err
		}
		buf = buf[tsPacketSize:]
	}
	s.demux.Finalize()
	return nil
}

func (s *Stream) fail(st state, err error) {
	s.state = st
	s.lastErr = err
	s.log.Error("orchestrator entered terminal state", "state", st, "error", err)
}

// CreateStream implements mpegts.StreamCallbacks, carving a sub-buffer out
// of the write-side slot of the appropriate ring for typ.
func (s *Stream) CreateStream(typ avstream.Type, programID uint16) *avstream.ElementaryStream {
	switch typ {
	case avstream.TypeVideoH264:
		if s.videoESIndex == 0 {
			s.videoESIndex = avstream.VideoIndexBase
		}
		idx := s.videoESIndex
		s.videoESIndex++
		slot := s.videoPos.WriteToIndex()
		slotSize := s.videoBuf.Available() / s.bufferCount
		sub, err := s.videoBuf.SubBuffer(slot*slotSize, slotSize)
		if err != nil {
			s.log.Error("video sub-buffer allocation failed", "error", err)
			return nil
		}
		es := avstream.New(typ, programID, idx, sub)
		s.videoStreams[slot] = es
		return es
	case avstream.TypeAudioAAC:
		if s.audioESIndex == 0 {
			s.audioESIndex = avstream.AudioIndexBase
		}
		idx := s.audioESIndex
		s.audioESIndex++
		slot := s.audioPos.WriteToIndex()
		slotSize := s.audioBuf.Available() / s.bufferCount
		sub, err := s.audioBuf.SubBuffer(slot*slotSize, slotSize)
		if err != nil {
			s.log.Error("audio sub-buffer allocation failed", "error", err)
			return nil
		}
		es := avstream.New(typ, programID, idx, sub)
		s.audioStreams[slot] = es
		return es
	default:
		return nil
	}
}

// GetStream implements mpegts.StreamCallbacks.
func (s *Stream) GetStream(programID uint16, index uint8) *avstream.ElementaryStream {
	if index >= avstream.VideoIndexBase && index <= avstream.VideoIndexMax {
		for _, es := range s.videoStreams {
			if es != nil && es.Index == index {
				return es
			}
		}
	} else if index >= avstream.AudioIndexBase {
		for _, es := range s.audioStreams {
			if es != nil && es.Index == index {
				return es
			}
		}
	}
	return nil
}

// FinalizeStream implements mpegts.StreamCallbacks, advancing the
// appropriate ring's write cursor now that this stream's segment payload is
// fully demuxed.
func (s *Stream) FinalizeStream(programID uint16, index uint8) {
	es := s.GetStream(programID, index)
	if es == nil {
		return
	}
	if es.Index < avstream.AudioIndexBase {
		s.videoPos.AdvanceWrite()
	} else {
		s.audioPos.AdvanceWrite()
	}
}

// OverflowStream implements mpegts.StreamCallbacks. This orchestrator does
// not relocate an overflowing stream to a larger buffer; a segment whose
// elementary streams don't fit the configured double-buffer slot surfaces
// as a stream overflow error instead.
func (s *Stream) OverflowStream(programID uint16, index uint8, neededLen int) *avstream.ElementaryStream {
	return nil
}

// PullAccessUnit drains at most one pending video and one pending audio
// access unit from the current read slots, advancing the read cursors past
// any slot that is now fully consumed. It returns which of vau/aau were
// populated.
func (s *Stream) PullAccessUnit() (vau, aau *avstream.AccessUnit) {
	if s.videoPos.HasReadSpace() {
		stream := s.videoStreams[s.videoPos.ReadFromIndex()]
		if stream != nil && s.videoPos.ReadAUIndex() < len(stream.AccessUnits) {
			u := stream.AccessUnits[s.videoPos.ReadAUIndex()]
			vau = &u
			s.videoPos.AdvanceAUIndex()
		}
		if stream == nil || s.videoPos.ReadAUIndex() >= len(stream.AccessUnits) {
			if s.videoPos.AdvanceRead() {
				s.videoPos.ResetAUIndex()
			}
		}
	}
	if s.audioPos.HasReadSpace() {
		stream := s.audioStreams[s.audioPos.ReadFromIndex()]
		if stream != nil && s.audioPos.ReadAUIndex() < len(stream.AccessUnits) {
			u := stream.AccessUnits[s.audioPos.ReadAUIndex()]
			aau = &u
			s.audioPos.AdvanceAUIndex()
		}
		if stream == nil || s.audioPos.ReadAUIndex() >= len(stream.AccessUnits) {
			if s.audioPos.AdvanceRead() {
				s.audioPos.ResetAUIndex()
			}
		}
	}
	return vau, aau
}
