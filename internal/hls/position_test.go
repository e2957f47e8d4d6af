package hls

import "testing"

func TestStreamPosition_ResetEmpty(t *testing.T) {
	t.Parallel()
	var p StreamPosition
	p.Reset(2)
	if p.HasReadSpace() {
		t.Error("freshly reset ring should have no read space")
	}
	if !p.HasWriteSpace() {
		t.Error("freshly reset ring should have write space")
	}
}

func TestStreamPosition_WriteThenRead(t *testing.T) {
	t.Parallel()
	var p StreamPosition
	p.Reset(2)

	if !p.AdvanceWrite() {
		t.Fatal("expected write to advance into slot 1")
	}
	if !p.HasReadSpace() {
		t.Error("expected read space after one completed write")
	}
	if !p.AdvanceRead() {
		t.Fatal("expected read to advance")
	}
	if p.ReadFromIndex() != 1 {
		t.Errorf("readFromIdx = %d, want 1", p.ReadFromIndex())
	}
}

// TestAdvanceRead_WriteCursorCoupling locks in the exact writeToIdx
// reassignment inside AdvanceRead for a 2-slot ring, reached only when the
// consumer is one full lap behind the producer: both slots have been
// written and the read cursor is about to vacate the slot the write cursor
// would otherwise re-enter.
func TestAdvanceRead_WriteCursorCoupling(t *testing.T) {
	t.Parallel()
	var p StreamPosition
	p.Reset(2)

	// Fill slot 0, then attempt to advance into slot 1: writeToIdx becomes 1.
	if !p.AdvanceWrite() {
		t.Fatal("expected first write advance to succeed")
	}
	if p.WriteToIndex() != 1 {
		t.Fatalf("writeToIdx = %d, want 1", p.WriteToIndex())
	}

	// Fill slot 1 too. The ring is now full: (1+1)%2 == 0 == readFromIdx, so
	// AdvanceWrite refuses to move writeToIdx past 1.
	if p.AdvanceWrite() {
		t.Fatal("expected second write advance to report the ring full")
	}
	if p.WriteToIndex() != 1 {
		t.Fatalf("writeToIdx = %d, want 1 (unchanged when full)", p.WriteToIndex())
	}

	// Now drain: readFromIdx=0, writeToIdx=1, writeDoneIdx=1. AdvanceRead
	// sees writeDoneIdx == writeToIdx and (writeToIdx+1)%2 == readFromIdx,
	// so it pulls writeToIdx back to readFromIdx (0) before advancing the
	// read cursor to 1.
	if !p.AdvanceRead() {
		t.Fatal("expected read advance to succeed")
	}
	if p.WriteToIndex() != 0 {
		t.Errorf("writeToIdx = %d, want 0 after the coupled reassignment", p.WriteToIndex())
	}
	if p.ReadFromIndex() != 1 {
		t.Errorf("readFromIdx = %d, want 1", p.ReadFromIndex())
	}
}

func TestStreamPosition_AUIndexCycle(t *testing.T) {
	t.Parallel()
	var p StreamPosition
	p.Reset(2)
	p.AdvanceAUIndex()
	p.AdvanceAUIndex()
	if p.ReadAUIndex() != 2 {
		t.Errorf("readAUIdx = %d, want 2", p.ReadAUIndex())
	}
	p.ResetAUIndex()
	if p.ReadAUIndex() != 0 {
		t.Errorf("readAUIdx after reset = %d, want 0", p.ReadAUIndex())
	}
}
