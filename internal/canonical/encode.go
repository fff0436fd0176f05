// Package canonical produces deterministic byte projections of structured
// records. Every string field is written as a 4-byte big-endian length
// followed by its UTF-8 bytes, and map-valued fields are written as pairs
// sorted by key, so the same logical record always encodes to the same bytes
// regardless of map insertion order.
package canonical

import (
	"bytes"
	"encoding/binary"
)

type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) WriteString(s string) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(s)))
	e.buf.Write(length[:])
	e.buf.WriteString(s)
}

func (e *Encoder) WriteInt64(n int64) {
	e.WriteString(Int(n).Text())
}

func (e *Encoder) WriteValue(v Value) {
	e.WriteString(v.Text())
}

// WriteMap writes each (key, value projection) pair in ascending key order.
func (e *Encoder) WriteMap(m map[string]Value) {
	for _, k := range SortedKeys(m) {
		e.WriteString(k)
		e.WriteString(m[k].Text())
	}
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}
