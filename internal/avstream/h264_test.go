package avstream

import (
	"bytes"
	"testing"

	"github.com/zsiec/tsdemux/internal/avbuf"
)

func newTestVideoES(t *testing.T, capacity int) *ElementaryStream {
	t.Helper()
	buf := avbuf.New(capacity, 0, nil)
	return New(TypeVideoH264, 1, 1, buf)
}

func TestH264Scanner_SingleAccessUnit(t *testing.T) {
	t.Parallel()
	es := newTestVideoES(t, 256)
	es.UpdatePTSDTS(180000, 90000)

	var payload []byte
	payload = append(payload, 0x00, 0x00, 0x01, 0x09)             // AUD, non-VCL type 9
	payload = append(payload, bytes.Repeat([]byte{0xAA}, 3)...)   // filler
	payload = append(payload, 0x00, 0x00, 0x01, 0x67)             // SPS, non-VCL type 7
	payload = append(payload, bytes.Repeat([]byte{0xBB}, 5)...)   // filler
	payload = append(payload, 0x00, 0x00, 0x01, 0x65, 0x80)       // IDR slice, VCL type 5, first_mb=1
	payload = append(payload, bytes.Repeat([]byte{0xCC}, 10)...) // filler
	secondAUDOffset := len(payload)
	payload = append(payload, 0x00, 0x00, 0x01, 0x09)             // next AUD
	payload = append(payload, bytes.Repeat([]byte{0xDD}, 8)...)   // trailing bytes so the scanner can see past the start code

	if short := es.AppendPayload(payload, true); short != 0 {
		t.Fatalf("AppendPayload short by %d bytes", short)
	}

	if len(es.AccessUnits) != 1 {
		t.Fatalf("got %d access units, want 1", len(es.AccessUnits))
	}
	au := es.AccessUnits[0]
	if len(au.Data) != secondAUDOffset {
		t.Errorf("AU length = %d, want %d", len(au.Data), secondAUDOffset)
	}
	if au.PTS != 180000 || au.DTS != 90000 {
		t.Errorf("AU PTS/DTS = %d/%d, want 180000/90000", au.PTS, au.DTS)
	}
}

func TestH264Scanner_NoZeroLengthAccessUnit(t *testing.T) {
	t.Parallel()
	es := newTestVideoES(t, 64)

	// Two start codes back-to-back with no bytes between them; a zero-length
	// AU must never be emitted, even after a flush.
	var payload []byte
	payload = append(payload, 0x00, 0x00, 0x01, 0x09)
	payload = append(payload, 0x00, 0x00, 0x01, 0x09)
	payload = append(payload, bytes.Repeat([]byte{0xEE}, 8)...)

	es.AppendPayload(payload, true)
	es.Finalize()

	for _, au := range es.AccessUnits {
		if len(au.Data) == 0 {
			t.Fatal("emitted a zero-length access unit")
		}
	}
}

func TestH264Scanner_FlushEmitsPendingAU(t *testing.T) {
	t.Parallel()
	es := newTestVideoES(t, 64)
	es.UpdatePTS(45000)

	var payload []byte
	payload = append(payload, 0x00, 0x00, 0x01, 0x09)
	payload = append(payload, bytes.Repeat([]byte{0x11}, 20)...)

	es.AppendPayload(payload, true)
	if len(es.AccessUnits) != 0 {
		t.Fatalf("AU emitted before flush: %d", len(es.AccessUnits))
	}

	es.Finalize()
	if len(es.AccessUnits) != 1 {
		t.Fatalf("got %d access units after flush, want 1", len(es.AccessUnits))
	}
	if es.AccessUnits[0].PTS != 45000 {
		t.Errorf("flushed AU PTS = %d, want 45000", es.AccessUnits[0].PTS)
	}
}

func TestElementaryStream_AppendPayloadOverflow(t *testing.T) {
	t.Parallel()
	buf := avbuf.New(4, 0, nil)
	es := New(TypeAudioAAC, 1, 0x80, buf)

	short := es.AppendPayload([]byte{1, 2, 3, 4, 5, 6}, false)
	if short != 2 {
		t.Fatalf("AppendPayload short = %d, want 2", short)
	}
}
