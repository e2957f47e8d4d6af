package hls

// StreamPosition tracks a double(or N)-buffered ring of ElementaryStream
// slots for one media kind (audio or video): which slot is being read,
// which access unit within it, and which slot is being written.
//
// Invariants: writeToIdx and readFromIdx are indices modulo bufferCount.
// The ring is empty when readFromIdx == writeToIdx and writeDoneIdx !=
// writeToIdx; full when (writeToIdx+1) mod n == readFromIdx and
// writeDoneIdx == writeToIdx.
type StreamPosition struct {
	readFromIdx int
	readAUIdx   int

	writeToIdx   int
	writeDoneIdx int

	bufferCount int
}

// Reset rewinds the position to slot 0 with an empty ring of the given
// size.
func (p *StreamPosition) Reset(bufferCount int) {
	p.readFromIdx = 0
	p.readAUIdx = 0
	p.bufferCount = bufferCount
	p.writeToIdx = 0
	p.writeDoneIdx = -1
}

// ReadFromIndex returns the buffer slot currently being read.
func (p *StreamPosition) ReadFromIndex() int { return p.readFromIdx }

// WriteToIndex returns the buffer slot currently being written.
func (p *StreamPosition) WriteToIndex() int { return p.writeToIdx }

// ReadAUIndex returns the index of the next access unit to read within the
// current read slot.
func (p *StreamPosition) ReadAUIndex() int { return p.readAUIdx }

// AdvanceAUIndex moves to the next access unit within the current read
// slot.
func (p *StreamPosition) AdvanceAUIndex() { p.readAUIdx++ }

// ResetAUIndex rewinds the access-unit cursor, called after AdvanceRead
// moves to a new slot.
func (p *StreamPosition) ResetAUIndex() { p.readAUIdx = 0 }

// HasWriteSpace reports whether a new segment download may begin filling
// the next slot.
func (p *StreamPosition) HasWriteSpace() bool {
	return (p.writeToIdx+1)%p.bufferCount != p.readFromIdx || p.writeDoneIdx != p.writeToIdx
}

// HasReadSpace reports whether there is a completed slot available to
// drain.
func (p *StreamPosition) HasReadSpace() bool {
	return p.readFromIdx != p.writeToIdx
}

// AdvanceRead moves to the next read slot, reporting whether it did.
//
// When the ring was full at the moment of this call (the write cursor had
// finished its slot and the next slot after it is the one we're about to
// vacate), writeToIdx is pulled back to the slot we're vacating rather than
// left one ahead. This reassignment only fires when the consumer is
// draining strictly slower than the producer fills both ring slots — an
// already-degenerate case for a two-slot ring — and is preserved exactly as
// found rather than redesigned; see TestAdvanceRead_WriteCursorCoupling for
// the precise transition this locks in.
func (p *StreamPosition) AdvanceRead() bool {
	if p.readFromIdx == p.writeToIdx {
		return false
	}
	if p.writeDoneIdx == p.writeToIdx && (p.writeToIdx+1)%p.bufferCount == p.readFromIdx {
		p.writeToIdx = p.readFromIdx
	}
	p.readFromIdx = (p.readFromIdx + 1) % p.bufferCount
	return true
}

// AdvanceWrite marks the current write slot done and moves to the next one,
// reporting whether the ring had room to advance.
func (p *StreamPosition) AdvanceWrite() bool {
	p.writeDoneIdx = p.writeToIdx
	next := (p.writeToIdx + 1) % p.bufferCount
	if next == p.readFromIdx {
		return false
	}
	p.writeToIdx = next
	return true
}
