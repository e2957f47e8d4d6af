package hls

import (
	"testing"

	"github.com/zsiec/tsdemux/internal/avbuf"
)

// fakeOutcome is the pre-computed result of one fakeInput request, since
// this test double resolves every request synchronously at issue time.
type fakeOutcome struct {
	result PollResult
	res    ResourceHandle
}

// fakeInput is an in-memory StreamInput serving a fixed url->content map,
// used to drive Stream end to end without touching the network or the
// filesystem.
type fakeInput struct {
	content    map[string][]byte
	resContent map[ResourceHandle][]byte
	resPos     map[ResourceHandle]int
	outcomes   map[RequestHandle]fakeOutcome
	nextHandle uint32
}

func newFakeInput(content map[string][]byte) *fakeInput {
	return &fakeInput{
		content:    content,
		resContent: make(map[ResourceHandle][]byte),
		resPos:     make(map[ResourceHandle]int),
		outcomes:   make(map[RequestHandle]fakeOutcome),
	}
}

func (f *fakeInput) alloc() uint32 { f.nextHandle++; return f.nextHandle }

func (f *fakeInput) Open(url string) RequestHandle {
	req := RequestHandle(f.alloc())
	data, ok := f.content[url]
	if !ok {
		f.outcomes[req] = fakeOutcome{result: PollError}
		return req
	}
	res := ResourceHandle(f.alloc())
	f.resContent[res] = data
	f.outcomes[req] = fakeOutcome{result: PollComplete, res: res}
	return req
}

func (f *fakeInput) Size(res ResourceHandle) int64 { return int64(len(f.resContent[res])) }

func (f *fakeInput) Read(res ResourceHandle, dst []byte) RequestHandle {
	req := RequestHandle(f.alloc())
	data := f.resContent[res]
	pos := f.resPos[res]
	n := copy(dst, data[pos:])
	f.resPos[res] = pos + n
	f.outcomes[req] = fakeOutcome{result: PollComplete, res: res}
	return req
}

func (f *fakeInput) Close(res ResourceHandle) {
	delete(f.resContent, res)
	delete(f.resPos, res)
}

func (f *fakeInput) Poll(req RequestHandle) (PollResult, ResourceHandle) {
	o, ok := f.outcomes[req]
	if !ok {
		return PollInvalid, 0
	}
	delete(f.outcomes, req)
	return o.result, o.res
}

const (
	testSyncByte   = 0x47
	testPacketSize = 188
	testPIDPAT     = 0x0000
)

func makeTSPacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	buf := make([]byte, testPacketSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	buf[0] = testSyncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | (cc & 0x0F)
	if pusi {
		buf[1] |= 0x40
	}
	copy(buf[4:], payload)
	return buf
}

// buildPATSection and buildPMTSection mirror package mpegts's own test
// fixtures but leave the CRC field zeroed, relying on the test disabling CRC
// verification rather than reimplementing computeCRC32 here.
func buildPATSection(programNum, pmtPID uint16) []byte {
	sectionLength := 5 + 4 + 4
	data := make([]byte, 3+sectionLength)
	data[0] = 0x00 // table_id
	data[1] = 0xB0 | byte(sectionLength>>8)&0x0F
	data[2] = byte(sectionLength)
	data[3], data[4] = 0x00, 0x01 // transport_stream_id
	data[5] = 0xC1
	data[6], data[7] = 0x00, 0x00
	data[8] = byte(programNum >> 8)
	data[9] = byte(programNum)
	data[10] = 0xE0 | byte(pmtPID>>8)&0x1F
	data[11] = byte(pmtPID)
	return data
}

func buildPMTSection(programNum, videoPID uint16) []byte {
	sectionLength := 9 + 5 + 4
	data := make([]byte, 3+sectionLength)
	data[0] = 0x02 // table_id
	data[1] = 0xB0 | byte(sectionLength>>8)&0x0F
	data[2] = byte(sectionLength)
	data[3] = byte(programNum >> 8)
	data[4] = byte(programNum)
	data[5] = 0xC1
	data[6], data[7] = 0x00, 0x00
	data[8] = 0xE0 | byte(videoPID>>8)&0x1F
	data[9] = byte(videoPID)
	data[10] = 0xF0
	data[11] = 0x00
	data[12] = 0x1B // stream_type H264
	data[13] = 0xE0 | byte(videoPID>>8)&0x1F
	data[14] = byte(videoPID)
	data[15] = 0xF0
	data[16] = 0x00
	return data
}

// buildSegment assembles a minimal PAT+PMT+PES-with-one-AU segment: program
// 1 on PMT PID 0x100, one H264 stream on PID 0x200 carrying a single
// AUD/SPS/IDR access unit. No start code follows it, so the boundary scanner
// closes no AccessUnit while the segment is being read; Finalize closes it
// at end of segment.
func buildSegment() []byte {
	pat := append([]byte{0x00}, buildPATSection(1, 0x100)...)
	pmt := append([]byte{0x00}, buildPMTSection(1, 0x200)...)

	pes := []byte{0x00, 0x00, 0x01, 0xBE, 0x00, 0x00} // padding_stream: no optional header
	pes = append(pes,
		0x00, 0x00, 0x01, 0x09, 0xF0, 0xF0, 0xF0, // AUD + filler
		0x00, 0x00, 0x01, 0x67, 0xF0, 0xF0, 0xF0, 0xF0, 0xF0, // SPS + filler
		0x00, 0x00, 0x01, 0x65, 0x80, 0xF0, 0xF0, 0xF0, 0xF0, 0xF0, // IDR + filler
	)

	var segment []byte
	segment = append(segment, makeTSPacket(testPIDPAT, 0, true, pat)...)
	segment = append(segment, makeTSPacket(0x100, 0, true, pmt)...)
	segment = append(segment, makeTSPacket(0x200, 0, true, pes)...)
	return segment
}

func buildFakeContent() map[string][]byte {
	master := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nmedia.m3u8\n"
	media := "#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:0\n#EXTINF:6.0,\nseg0.ts\n"
	return map[string][]byte{
		"http://host/master.m3u8": []byte(master),
		"http://host/media.m3u8":  []byte(media),
		"http://host/seg0.ts":     buildSegment(),
	}
}

// runToCompletion drives Update, draining any access units produced along
// the way (mirroring the CLI's own loop): the ring only frees a slot once
// its access units have been pulled, so a caller that never drains would
// see Done() never return true past the last segment.
func runToCompletion(t *testing.T, s *Stream) (videoAUs, audioAUs int) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		s.Update()
		vau, aau := s.PullAccessUnit()
		if vau != nil {
			videoAUs++
		}
		if aau != nil {
			audioAUs++
		}
		if s.Done() {
			return videoAUs, audioAUs
		}
	}
	t.Fatalf("orchestrator never reached a terminal state, stuck in %s", s.State())
	return 0, 0
}

func TestStream_FetchesPlaylistsAndDemuxesOneSegment(t *testing.T) {
	t.Parallel()
	input := newFakeInput(buildFakeContent())
	videoBuf := avbuf.New(1<<16, 0, nil)
	audioBuf := avbuf.New(1<<16, 0, nil)

	s := New(input, videoBuf, audioBuf, "http://host/master.m3u8", WithCRCVerification(false))
	videoAUs, _ := runToCompletion(t, s)

	if err := s.Err(); err != nil {
		t.Fatalf("unexpected terminal error: %v", err)
	}
	if videoAUs == 0 {
		t.Error("expected at least one video access unit to have been produced")
	}
}

func TestStream_RootPlaylistFetchFailureIsFatal(t *testing.T) {
	t.Parallel()
	input := newFakeInput(map[string][]byte{})
	videoBuf := avbuf.New(4096, 0, nil)
	audioBuf := avbuf.New(4096, 0, nil)

	s := New(input, videoBuf, audioBuf, "http://host/missing.m3u8")
	runToCompletion(t, s)

	if s.State() != "no_stream_error" {
		t.Errorf("state = %s, want no_stream_error", s.State())
	}
}

func TestStream_UnavailableVariantIsSkipped(t *testing.T) {
	t.Parallel()
	content := buildFakeContent()
	master := "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=1\nbroken.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2\nmedia.m3u8\n"
	content["http://host/master.m3u8"] = []byte(master)
	input := newFakeInput(content)
	videoBuf := avbuf.New(1<<16, 0, nil)
	audioBuf := avbuf.New(1<<16, 0, nil)

	s := New(input, videoBuf, audioBuf, "http://host/master.m3u8", WithCRCVerification(false))
	runToCompletion(t, s)

	if err := s.Err(); err != nil {
		t.Fatalf("unexpected terminal error: %v", err)
	}
}

func TestDeriveRootURL(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"http://host/path/master.m3u8", "http://host/path/"},
		{"http://host/master.m3u8", "http://host/"},
		{"http://host/noextension", "http://host/noextension"},
	}
	for _, c := range cases {
		if got := deriveRootURL(c.in); got != c.want {
			t.Errorf("deriveRootURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
