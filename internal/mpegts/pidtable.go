package mpegts

import "github.com/zsiec/tsdemux/internal/avbuf"

// pidKind classifies what a pidTable slot has been discovered to carry.
type pidKind int

const (
	pidKindUnset pidKind = iota
	pidKindPSI
	pidKindPES
)

// pidNode is one reassembly slot, indexed directly by its 13-bit PID rather
// than a sorted list, trading a fixed 8192-slot array for O(1) lookup at a
// bounded, small memory cost.
type pidNode struct {
	kind pidKind

	// PSI fields.
	tableID       uint8
	sectionSyntax bool
	programID     uint16
	section       *avbuf.Buffer

	// PES fields.
	streamIndex uint8
	hdrFlags    uint16
	header      *avbuf.Buffer
}

// pidTable is the fixed-size PID routing table: one optional slot per
// possible 13-bit PID value.
type pidTable struct {
	slots [8192]*pidNode
}

func (t *pidTable) get(pid uint16) *pidNode {
	return t.slots[pid]
}

func (t *pidTable) getOrCreate(pid uint16) *pidNode {
	n := t.slots[pid]
	if n == nil {
		n = &pidNode{}
		t.slots[pid] = n
	}
	return n
}

func (t *pidTable) isPMT(pid uint16) bool {
	n := t.slots[pid]
	return n != nil && n.kind == pidKindPSI && n.tableID == tableIDPMT
}
