package cog

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// TIFF field types.
const (
	tByte   = 1
	tAscii  = 2
	tShort  = 3
	tLong   = 4
	tDouble = 12
	tLong8  = 16
)

// layout knows the byte order and offset width of the file being written.
type layout struct {
	enc     binary.ByteOrder
	bigtiff bool
}

func (l layout) headerSize() uint64 {
	if l.bigtiff {
		return 16
	}
	return 8
}

func (l layout) tagSize() uint64 {
	if l.bigtiff {
		return 20
	}
	return 12
}

func (l layout) countSize() uint64 {
	if l.bigtiff {
		return 8
	}
	return 2
}

func (l layout) nextSize() uint64 {
	if l.bigtiff {
		return 8
	}
	return 4
}

// inlineSize is the number of value bytes that fit in a tag entry.
func (l layout) inlineSize() int {
	if l.bigtiff {
		return 8
	}
	return 4
}

// offsets converts tile offsets to LONG8 for bigtiff, LONG otherwise.
func (l layout) offsets(o []uint64) interface{} {
	if l.bigtiff {
		return o
	}
	o32 := make([]uint32, len(o))
	for i, v := range o {
		o32[i] = uint32(v)
	}
	return o32
}

// An entry is an encoded tag. Values larger than the entry are written to an
// overflow area, or to the strile area when strile is set.
type entry struct {
	tag    uint16
	typ    uint16
	count  uint64
	data   []byte
	strile bool
}

func (e entry) inline(l layout) bool {
	return len(e.data) <= l.inlineSize()
}

func (l layout) encode(tag uint16, v interface{}) entry {
	e := entry{tag: tag}
	var payload interface{}
	switch d := v.(type) {
	case uint16:
		e.typ, e.count, payload = tShort, 1, d
	case uint32:
		e.typ, e.count, payload = tLong, 1, d
	case []byte:
		e.typ, e.count, payload = tByte, uint64(len(d)), d
	case []uint16:
		e.typ, e.count, payload = tShort, uint64(len(d)), d
	case []uint32:
		e.typ, e.count, payload = tLong, uint64(len(d)), d
	case []uint64:
		e.typ, e.count, payload = tLong8, uint64(len(d)), d
	case []float64:
		e.typ, e.count, payload = tDouble, uint64(len(d)), d
	case string:
		e.typ, e.count, payload = tAscii, uint64(len(d)+1), append([]byte(d), 0)
	default:
		panic(fmt.Sprintf("cog: cannot encode %T", v))
	}
	buf := &bytes.Buffer{}
	// writes to a bytes.Buffer of fixed size values cannot fail
	_ = binary.Write(buf, l.enc, payload)
	e.data = buf.Bytes()
	return e
}

// An area accumulates out of line tag values starting at file offset off.
type area struct {
	bytes.Buffer
	off uint64
}

func (a *area) next() uint64 {
	return a.off + uint64(a.Len())
}

// put serializes e, storing its value in a when it does not fit inline.
func (l layout) put(w *bytes.Buffer, e entry, a *area) {
	var head [12]byte
	l.enc.PutUint16(head[0:], e.tag)
	l.enc.PutUint16(head[2:], e.typ)
	if l.bigtiff {
		l.enc.PutUint64(head[4:], e.count)
		w.Write(head[:12])
	} else {
		l.enc.PutUint32(head[4:], uint32(e.count))
		w.Write(head[:8])
	}
	value := make([]byte, l.inlineSize())
	if e.inline(l) {
		copy(value, e.data)
	} else {
		if l.bigtiff {
			l.enc.PutUint64(value, a.next())
		} else {
			l.enc.PutUint32(value, uint32(a.next()))
		}
		a.Write(e.data)
	}
	w.Write(value)
}
