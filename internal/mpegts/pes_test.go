package mpegts

import "testing"

// encodeTimestamp packs a 33-bit timestamp with the given 4-bit prefix,
// mirroring ISO/IEC 13818-1 §2.4.3.7. Used to build fixtures, not to test
// parseTimestamp's own bit layout.
func encodeTimestamp(prefix uint8, ts int64) [5]byte {
	var b [5]byte
	b[0] = prefix<<4 | byte(ts>>29)&0x0E | 0x01
	b[1] = byte(ts >> 22)
	b[2] = byte(ts>>14)&0xFE | 0x01
	b[3] = byte(ts >> 7)
	b[4] = byte(ts<<1)&0xFE | 0x01
	return b
}

func TestParseTimestamp_RoundTrip(t *testing.T) {
	t.Parallel()
	want := int64(90000)
	b := encodeTimestamp(ptsPrefix, want)
	got, err := parseTimestamp(b[:], ptsPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("timestamp = %d, want %d", got, want)
	}
}

func TestParseTimestamp_MaxValue(t *testing.T) {
	t.Parallel()
	want := int64(1)<<33 - 1
	b := encodeTimestamp(ptsDTSPrefix, want)
	got, err := parseTimestamp(b[:], ptsDTSPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("timestamp = %d, want %d", got, want)
	}
}

func TestParseTimestamp_WrongPrefix(t *testing.T) {
	t.Parallel()
	b := encodeTimestamp(ptsPrefix, 90000)
	_, err := parseTimestamp(b[:], dtsPrefix)
	if err == nil {
		t.Error("expected prefix mismatch error")
	}
}

func TestParseTimestamp_MissingMarkerBit(t *testing.T) {
	t.Parallel()
	b := encodeTimestamp(ptsPrefix, 90000)
	b[2] &^= 0x01
	_, err := parseTimestamp(b[:], ptsPrefix)
	if err == nil {
		t.Error("expected marker bit error")
	}
}

func TestParseTimestamp_Truncated(t *testing.T) {
	t.Parallel()
	_, err := parseTimestamp([]byte{0x21, 0x00, 0x01}, ptsPrefix)
	if err == nil {
		t.Error("expected truncated error")
	}
}

func TestParsePESStart_VideoNoOptionalHeader(t *testing.T) {
	t.Parallel()
	// A video stream_id still carries the flags and header-length bytes; here
	// they announce no optional fields (flags 0x8000, header length 0).
	payload := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x00, 0x00, 0xDE, 0xAD}
	start, err := parsePESStart(payload)
	if err != nil {
		t.Fatal(err)
	}
	if start.streamID != 0xE0 {
		t.Errorf("streamID = 0x%X, want 0xE0", start.streamID)
	}
	if hasOptionalHeader(start.streamID) != true {
		t.Fatal("video stream_id should carry an optional header")
	}
}

func TestParsePESStart_WithPTSOnlyHeader(t *testing.T) {
	t.Parallel()
	ts := encodeTimestamp(ptsPrefix, 90000)
	payload := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x80, 0x05}
	payload = append(payload, ts[:]...)
	payload = append(payload, 0xDE, 0xAD)

	start, err := parsePESStart(payload)
	if err != nil {
		t.Fatal(err)
	}
	if start.hdrFlags&0x00C0 != 0x0080 {
		t.Errorf("hdrFlags = 0x%04X, want PTS-only", start.hdrFlags)
	}
	if start.hdrLength != 5 {
		t.Errorf("hdrLength = %d, want 5", start.hdrLength)
	}
	if len(start.rest) != 5+2 {
		t.Errorf("rest length = %d, want 7", len(start.rest))
	}
}

func TestParsePESStart_BadStartCode(t *testing.T) {
	t.Parallel()
	payload := []byte{0x00, 0x00, 0x02, 0xE0, 0x00, 0x00}
	_, err := parsePESStart(payload)
	if err == nil {
		t.Error("expected start code error")
	}
}

func TestParsePESStart_BadMarkerBits(t *testing.T) {
	t.Parallel()
	payload := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x00, 0x00, 0x00}
	_, err := parsePESStart(payload)
	if err == nil {
		t.Error("expected marker bit error")
	}
}

func TestApplyPESHeader_PTSAndDTS(t *testing.T) {
	t.Parallel()
	pts := encodeTimestamp(ptsDTSPrefix, 180000)
	dts := encodeTimestamp(dtsPrefix, 90000)

	node := &pidNode{hdrFlags: 0x00C0}
	node.header = newHeaderBuffer(10)
	node.header.PushBytes(pts[:])
	node.header.PushBytes(dts[:])

	var gotPTS, gotDTS int64
	err := applyPESHeader(node,
		func(p int64) { t.Fatal("updatePTS should not be called for a PTS+DTS header") },
		func(p, d int64) { gotPTS, gotDTS = p, d },
	)
	if err != nil {
		t.Fatal(err)
	}
	if gotPTS != 180000 || gotDTS != 90000 {
		t.Errorf("PTS/DTS = %d/%d, want 180000/90000", gotPTS, gotDTS)
	}
}

func TestNewHeaderBuffer_ZeroSize(t *testing.T) {
	t.Parallel()
	if newHeaderBuffer(0) != nil {
		t.Error("expected nil buffer for zero size")
	}
}
