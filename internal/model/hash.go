package model

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
	"image/color"
	"io"
	"math"

	"cogentcore.org/core/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Hashable is implemented by values whose render-affecting state can be
// reduced to a CRC. Implementations must skip bookkeeping fields such as ids
// and names.
type Hashable interface {
	WriteHash(h *Hasher)
}

// Hasher accumulates a CRC-32 (IEEE) over typed fields.
type Hasher struct {
	h   hash.Hash32
	buf [8]byte
}

func NewHasher() *Hasher {
	return &Hasher{h: crc32.NewIEEE()}
}

func (h *Hasher) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[:4], v)
	_, _ = h.h.Write(h.buf[:4])
}

func (h *Hasher) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.h.Write(h.buf[:])
}

func (h *Hasher) Int(v int) { h.Uint64(uint64(int64(v))) }

// Float32 writes v with -0 folded into +0 so value-equal inputs agree.
func (h *Hasher) Float32(v float32) {
	if v == 0 {
		v = 0
	}
	h.Uint32(math.Float32bits(v))
}

func (h *Hasher) Bool(v bool) {
	if v {
		h.buf[0] = 1
	} else {
		h.buf[0] = 0
	}
	_, _ = h.h.Write(h.buf[:1])
}

func (h *Hasher) String(s string) {
	h.Uint32(uint32(len(s)))
	_, _ = io.WriteString(h.h, s)
}

func (h *Hasher) ID(id ObjectID) { _, _ = h.h.Write(id[:]) }

func (h *Hasher) Color(c color.RGBA) {
	_, _ = h.h.Write([]byte{c.R, c.G, c.B, c.A})
}

func (h *Hasher) Vec3(v mgl32.Vec3) {
	for _, f := range v {
		h.Float32(f)
	}
}

func (h *Hasher) Mat4(m mgl32.Mat4) {
	for _, f := range m {
		h.Float32(f)
	}
}

func (h *Hasher) Vector3(v math32.Vector3) {
	h.Float32(v.X)
	h.Float32(v.Y)
	h.Float32(v.Z)
}

func (h *Hasher) Vector2(v math32.Vector2) {
	h.Float32(v.X)
	h.Float32(v.Y)
}

func (h *Hasher) Sum32() uint32 { return h.h.Sum32() }

// CRC returns the CRC-32 of v's render-affecting state.
func CRC(v Hashable) uint32 {
	h := NewHasher()
	v.WriteHash(h)
	return h.Sum32()
}

// ContentIDOf hashes v into a ContentID. A zero CRC is remapped to 1 because
// zero is reserved for "no content".
func ContentIDOf(v Hashable) ContentID {
	id := ContentID(CRC(v))
	if id == 0 {
		id = 1
	}
	return id
}
